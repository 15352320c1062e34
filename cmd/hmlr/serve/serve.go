// Package servecmder provides the serve command that wires storage,
// retrieval, and the chat orchestrator into a running API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/api"
	"github.com/bridgeware/hmlr/pkg/block"
	"github.com/bridgeware/hmlr/pkg/compressor"
	embeddingutils "github.com/bridgeware/hmlr/pkg/embeddings/utils"
	"github.com/bridgeware/hmlr/pkg/eventstream"
	"github.com/bridgeware/hmlr/pkg/eventstream/kafka"
	"github.com/bridgeware/hmlr/pkg/eventstream/nop"
	"github.com/bridgeware/hmlr/pkg/factstore"
	"github.com/bridgeware/hmlr/pkg/governor"
	"github.com/bridgeware/hmlr/pkg/hydrator"
	"github.com/bridgeware/hmlr/pkg/jobqueue"
	"github.com/bridgeware/hmlr/pkg/jobqueue/inproc"
	jobqueuekafka "github.com/bridgeware/hmlr/pkg/jobqueue/kafka"
	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/llm"
	"github.com/bridgeware/hmlr/pkg/llm/client"
	"github.com/bridgeware/hmlr/pkg/llm/client/anthropic"
	"github.com/bridgeware/hmlr/pkg/llm/client/ollama"
	"github.com/bridgeware/hmlr/pkg/llm/client/openai"
	"github.com/bridgeware/hmlr/pkg/logger"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/orchestrator"
	"github.com/bridgeware/hmlr/pkg/retrieval"
	"github.com/bridgeware/hmlr/pkg/scribe"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
	"github.com/bridgeware/hmlr/pkg/storage/postgres"
	"github.com/bridgeware/hmlr/pkg/storage/sqlite"
	"github.com/bridgeware/hmlr/pkg/vector"
	vectorutils "github.com/bridgeware/hmlr/pkg/vector/utils"
)

// ServeCommander holds the flags and collaborators for the running API
// server. Grounded on the teacher's ServeCommander (cmd/tapes/serve),
// generalized from "proxy + API server" to "single API server fronting
// the orchestrator" since HMLR has no upstream-proxying concern.
type ServeCommander struct {
	apiListen      string
	provider       string
	upstream       string
	defaultModel   string
	nanoModel      string
	embeddingProv  string
	embeddingURL   string
	embeddingModel string
	vectorProv       string
	vectorTarget     string
	vectorDimensions uint
	storageBackend   string
	sqlitePath       string
	postgresDSN      string
	eventBackend     string
	kafkaBrokers     []string
	kafkaTopic       string
	jobBackend       string
	jobKafkaTopic    string
	jobWorkers       uint
	debug          bool
	logger         *zap.Logger
}

const serveLongDesc string = `Run the HMLR API server.

Wires a storage driver, vector index, embedder, and Chat LLM client
into the chat orchestrator and serves it over HTTP.`

const serveShortDesc string = "Run the HMLR API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.apiListen, "api-listen", "a", ":8081", "Address for the API server to listen on")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", "http://localhost:11434", "Chat LLM provider URL (ollama only)")
	cmd.Flags().StringVar(&cmder.provider, "provider", "ollama", "Chat LLM provider (anthropic, openai, ollama)")
	cmd.Flags().StringVar(&cmder.defaultModel, "default-model", "llama3.1", "Model used for response generation")
	cmd.Flags().StringVar(&cmder.nanoModel, "nano-model", "llama3.2:1b", "Small model used for routing, filtering, and metadata tasks")
	cmd.Flags().StringVar(&cmder.embeddingProv, "embedding-provider", "ollama", "Embedding provider")
	cmd.Flags().StringVar(&cmder.embeddingURL, "embedding-target", "http://localhost:11434", "Embedding provider URL")
	cmd.Flags().StringVar(&cmder.embeddingModel, "embedding-model", "embeddinggemma", "Embedding model name")
	cmd.Flags().StringVar(&cmder.vectorProv, "vector-store-provider", "", "Vector store provider (chroma, sqlitevec, qdrant); empty disables vector search")
	cmd.Flags().StringVar(&cmder.vectorTarget, "vector-store-target", "", "Vector store target (URL, file path, or host:port depending on provider)")
	cmd.Flags().UintVar(&cmder.vectorDimensions, "vector-store-dimensions", 1536, "Embedding dimensionality for providers that require it upfront (sqlitevec, qdrant)")
	cmd.Flags().StringVar(&cmder.storageBackend, "storage", "inmemory", "Storage backend (inmemory, sqlite, postgres)")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database file (storage=sqlite)")
	cmd.Flags().StringVar(&cmder.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (storage=postgres)")
	cmd.Flags().StringVar(&cmder.eventBackend, "event-backend", "nop", "Turn event publisher backend (nop, kafka)")
	cmd.Flags().StringSliceVar(&cmder.kafkaBrokers, "kafka-brokers", nil, "Kafka broker addresses (event-backend=kafka)")
	cmd.Flags().StringVar(&cmder.kafkaTopic, "kafka-topic", "hmlr.turns", "Kafka topic for turn-persisted events (event-backend=kafka)")
	cmd.Flags().StringVar(&cmder.jobBackend, "job-backend", "inproc", "Turn-committed outbox scheduler backend (inproc, kafka)")
	cmd.Flags().StringVar(&cmder.jobKafkaTopic, "job-kafka-topic", "hmlr.jobs", "Kafka topic for the turn-committed outbox (job-backend=kafka, uses --kafka-brokers)")
	cmd.Flags().UintVar(&cmder.jobWorkers, "job-workers", 3, "Number of outbox worker goroutines (job-backend=inproc)")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	driver, err := c.createStorer(context.Background())
	if err != nil {
		return fmt.Errorf("creating storage driver: %w", err)
	}
	defer driver.Close()

	llmClient, err := c.createLLMClient()
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}
	defer llmClient.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.embeddingProv,
		TargetURL:    c.embeddingURL,
		Model:        c.embeddingModel,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	vec, err := c.createVectorDriver(context.Background())
	if err != nil {
		return fmt.Errorf("creating vector driver: %w", err)
	}
	if vec != nil {
		defer vec.Close()
	}

	idFn := newIDFunc()
	nowFn := time.Now

	blocks := block.New(driver.Blocks(), idFn, nowFn)
	facts := factstore.New(driver.Facts(), idFn, nowFn)
	gov := governor.New(llmClient, c.nanoModel, blocks, driver, facts, vec)
	hyd := hydrator.New()
	lin := lineage.NewTracker(driver.Lineage())
	comp := compressor.New(driver, nowFn)
	retriever := retrieval.New(driver, vec)

	events, err := c.createEventPublisher()
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer events.Close()

	turnCommittedHandler := orchestrator.NewTurnCommittedHandler(
		scribe.NewInProcessScheduler(llmClient, c.nanoModel, driver, c.logger),
		events,
		c.logger,
	)
	jobs, err := c.createJobScheduler(turnCommittedHandler)
	if err != nil {
		return fmt.Errorf("creating job scheduler: %w", err)
	}
	defer jobs.Close()

	orch := orchestrator.New(llmClient, c.defaultModel, c.nanoModel, embedder, vec, blocks, driver, facts, gov, hyd, lin, comp, idFn, nowFn, c.logger)
	orch = orch.WithJobs(jobs)

	apiServer := api.NewServer(api.Config{
		ListenAddr:   c.apiListen,
		Embedder:     embedder,
		VectorDriver: vec,
		Retriever:    retriever,
	}, driver, orch, lin, c.logger)

	c.logger.Info("starting api server",
		zap.String("api_addr", c.apiListen),
		zap.String("provider", c.provider),
		zap.String("default_model", c.defaultModel),
		zap.String("nano_model", c.nanoModel),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}

func (c *ServeCommander) createStorer(ctx context.Context) (storage.Driver, error) {
	switch c.storageBackend {
	case "", "inmemory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	case "sqlite":
		if c.sqlitePath == "" {
			return nil, fmt.Errorf("--sqlite path is required for storage=sqlite")
		}
		c.logger.Info("using sqlite storage", zap.String("path", c.sqlitePath))
		return sqlite.NewDriver(ctx, c.sqlitePath)
	case "postgres":
		if c.postgresDSN == "" {
			return nil, fmt.Errorf("--postgres-dsn is required for storage=postgres")
		}
		c.logger.Info("using postgres storage")
		return postgres.NewDriver(ctx, postgres.Config{ConnString: c.postgresDSN, Dimensions: int(c.vectorDimensions)})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.storageBackend)
	}
}

func (c *ServeCommander) createEventPublisher() (eventstream.Publisher, error) {
	switch c.eventBackend {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		if len(c.kafkaBrokers) == 0 {
			return nil, fmt.Errorf("--kafka-brokers is required for event-backend=kafka")
		}
		c.logger.Info("using kafka event publisher", zap.Strings("brokers", c.kafkaBrokers), zap.String("topic", c.kafkaTopic))
		return kafka.NewPublisher(kafka.Config{Brokers: c.kafkaBrokers, Topic: c.kafkaTopic}, c.logger)
	default:
		return nil, fmt.Errorf("unknown event backend %q", c.eventBackend)
	}
}

// createJobScheduler builds the outbox Scheduler the orchestrator
// durably enqueues turn-committed jobs onto. handler is run by the
// chosen backend's workers once a job has survived the queue.
func (c *ServeCommander) createJobScheduler(handler jobqueue.Handler) (jobqueue.Scheduler, error) {
	switch c.jobBackend {
	case "", "inproc":
		c.logger.Info("using in-process job scheduler", zap.Uint("workers", c.jobWorkers))
		return inproc.NewPool(handler, inproc.Config{NumWorkers: c.jobWorkers, Logger: c.logger}), nil
	case "kafka":
		if len(c.kafkaBrokers) == 0 {
			return nil, fmt.Errorf("--kafka-brokers is required for job-backend=kafka")
		}
		c.logger.Info("using kafka job scheduler", zap.Strings("brokers", c.kafkaBrokers), zap.String("topic", c.jobKafkaTopic))
		return jobqueuekafka.NewScheduler(jobqueuekafka.Config{Brokers: c.kafkaBrokers, Topic: c.jobKafkaTopic}, handler, c.logger)
	default:
		return nil, fmt.Errorf("unknown job backend %q", c.jobBackend)
	}
}

func (c *ServeCommander) createVectorDriver(ctx context.Context) (vector.VectorDriver, error) {
	if c.vectorProv == "" {
		c.logger.Info("vector search disabled: no vector-store-provider given")
		return nil, nil
	}
	return vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: c.vectorProv,
		TargetURL:    c.vectorTarget,
		Dimensions:   c.vectorDimensions,
		Logger:       c.logger,
	})
}

// createLLMClient builds the provider SDK adapter and wraps it in
// llm.ResilientClient, so retries, per-call timeouts, and circuit
// breaking apply uniformly to every role (default model, nano model)
// that shares this one underlying client.
func (c *ServeCommander) createLLMClient() (client.Client, error) {
	var inner client.Client
	switch c.provider {
	case "anthropic":
		inner = anthropic.New(os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		inner = openai.New(os.Getenv("OPENAI_API_KEY"))
	case "ollama":
		inner = ollama.New(ollama.Config{BaseURL: c.upstream})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.provider)
	}
	return llm.NewResilientClient(inner, llm.DefaultPolicy(), c.logger), nil
}

func newIDFunc() func(prefix string) string {
	var counter atomic.Int64
	return func(prefix string) string {
		idx := int(counter.Add(1))
		return model.NewID(prefix, time.Now().UnixNano(), idx)
	}
}
