// Package api provides an HTTP API server for sending messages through the
// memory engine and querying the data it has accumulated.
package api

import (
	"github.com/bridgeware/hmlr/pkg/embeddings"
	"github.com/bridgeware/hmlr/pkg/retrieval"
	"github.com/bridgeware/hmlr/pkg/vector"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Embedder, VectorDriver and Retriever, when all three are set,
	// enable GET /v1/search.
	Embedder    embeddings.Embedder
	VectorDriver vector.VectorDriver

	// Retriever runs the hybrid memory search behind GET /v1/search.
	Retriever *retrieval.Retriever
}
