package api_test

import (
	"context"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/api"
	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
)

var _ = Describe("Server", func() {
	var (
		driver *inmemory.Driver
		lin    *lineage.Tracker
		server *api.Server
		ctx    context.Context
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		lin = lineage.NewTracker(driver.Lineage())
		logger := zap.NewNop()
		server = api.NewServer(api.Config{ListenAddr: ":0"}, driver, nil, lin, logger)
		ctx = context.Background()
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			req, err := http.NewRequest(http.MethodGet, "/ping", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("GET /v1/blocks", func() {
		It("requires day_id", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/blocks", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("lists blocks for a day", func() {
			block := &model.BridgeBlock{BlockID: "block_1", DayID: "2026-08-06", Status: model.BlockActive}
			Expect(driver.Blocks().Create(ctx, block)).To(Succeed())

			req, err := http.NewRequest(http.MethodGet, "/v1/blocks?day_id=2026-08-06", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})
	})

	Describe("GET /v1/blocks/:id", func() {
		It("returns 404 for an unknown block", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/blocks/missing", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("POST /v1/messages", func() {
		It("requires user_id, day_id, and message", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/messages", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/facts", func() {
		It("returns an empty list when no facts are stored", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/facts", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"count":0`))
		})
	})
})
