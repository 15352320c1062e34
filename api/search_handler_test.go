package api_test

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/api"
	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/retrieval"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
	testutils "github.com/bridgeware/hmlr/pkg/utils/test"
)

var _ = Describe("handleSearchEndpoint", func() {
	var (
		driver       *inmemory.Driver
		vectorDriver *testutils.MockVectorDriver
		embedder     *testutils.MockEmbedder
		server       *api.Server
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		vectorDriver = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()
		lin := lineage.NewTracker(driver.Lineage())

		server = api.NewServer(api.Config{
			ListenAddr:   ":0",
			VectorDriver: vectorDriver,
			Embedder:     embedder,
			Retriever:    retrieval.New(driver, vectorDriver),
		}, driver, nil, lin, zap.NewNop())
	})

	Context("when search is not configured", func() {
		It("returns 503", func() {
			noSearch := api.NewServer(api.Config{ListenAddr: ":0"}, driver, nil, lineage.NewTracker(driver.Lineage()), zap.NewNop())

			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := noSearch.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Context("when query parameter is missing", func() {
		It("returns 400", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/search", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when top_k is invalid", func() {
		It("returns 400 for non-integer top_k", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test&top_k=abc", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for zero top_k", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test&top_k=0", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when search succeeds with no results", func() {
		It("returns 200 with an empty result set", func() {
			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=hello", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out map[string]any
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &out)).To(Succeed())

			Expect(out["query"]).To(Equal("hello"))
			Expect(out["count"]).To(BeNumerically("==", 0))
		})
	})

	Context("when the vector query fails", func() {
		It("returns 500", func() {
			vectorDriver.FailQuery = true

			req, err := http.NewRequest(http.MethodGet, "/v1/search?query=test", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusInternalServerError))
		})
	})
})
