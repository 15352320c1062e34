package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/orchestrator"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// Server is the API server for sending messages through the memory
// engine and inspecting the blocks, facts, and lineage it produces.
type Server struct {
	config  Config
	driver  storage.Driver
	orch    *orchestrator.Orchestrator
	lineage *lineage.Tracker
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server. The driver, orchestrator, and
// lineage tracker are injected so callers can share them with other
// entry points (e.g. a CLI chat command against the same storage).
func NewServer(config Config, driver storage.Driver, orch *orchestrator.Orchestrator, lin *lineage.Tracker, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		driver:  driver,
		orch:    orch,
		lineage: lin,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/v1/messages", s.handleSendMessage)
	app.Get("/v1/blocks", s.handleListBlocks)
	app.Get("/v1/blocks/:id", s.handleGetBlock)
	app.Get("/v1/blocks/:id/lineage", s.handleBlockLineage)
	app.Get("/v1/facts", s.handleListFacts)
	app.Get("/v1/search", s.handleSearchEndpoint)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Test runs req against the server's handler chain in-process, for tests.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req)
}
