// Package qdrant provides a vector.VectorDriver backed by Qdrant,
// wiring in the teacher's go.mod dependency on github.com/qdrant/go-client
// that the retrieved tree never exercised.
package qdrant

import (
	"context"
	"fmt"

	qc "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/vector"
)

// Config configures the Qdrant driver.
type Config struct {
	Host           string
	Port           int
	CollectionName string
	Dimensions     uint64
}

const defaultCollectionName = "hmlr"

// Driver implements vector.VectorDriver using the Qdrant gRPC client.
type Driver struct {
	client     *qc.Client
	collection string
	logger     *zap.Logger
}

// NewDriver connects to a Qdrant instance and ensures the target
// collection exists with the configured vector dimensionality.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	collection := c.CollectionName
	if collection == "" {
		collection = defaultCollectionName
	}

	client, err := qc.NewClient(&qc.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking qdrant collection %q: %w", collection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qc.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
				Size:     c.Dimensions,
				Distance: qc.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating qdrant collection %q: %w", collection, err)
		}
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.String("collection", collection),
	)

	return &Driver{client: client, collection: collection, logger: logger}, nil
}

// Add upserts documents as Qdrant points, using the document hash as
// the point's payload so Query results can be joined back to a
// memory/chunk id.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qc.PointStruct{
			Id:      qc.NewID(doc.ID),
			Vectors: qc.NewVectors(doc.Embedding...),
			Payload: qc.NewValueMap(map[string]any{"hash": doc.Hash}),
		}
	}

	_, err := d.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting to qdrant: %w", err)
	}

	d.logger.Debug("added documents to qdrant", zap.Int("count", len(docs)))
	return nil
}

// Query finds the topK most similar documents to embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	resp, err := d.client.Query(ctx, &qc.QueryPoints{
		CollectionName: d.collection,
		Query:          qc.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qc.NewWithPayload(true),
		WithVectors:    qc.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(resp))
	for _, point := range resp {
		hash := ""
		if payload := point.GetPayload(); payload != nil {
			if v, ok := payload["hash"]; ok {
				hash = v.GetStringValue()
			}
		}

		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:   point.GetId().GetUuid(),
				Hash: hash,
			},
			Score: point.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", zap.Int("results", len(results)))
	return results, nil
}

// Get retrieves documents by their point ids.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qc.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qc.NewID(id)
	}

	points, err := d.client.Get(ctx, &qc.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithVectors:    qc.NewWithVectors(true),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting from qdrant: %w", err)
	}

	docs := make([]vector.Document, 0, len(points))
	for _, p := range points {
		hash := ""
		if payload := p.GetPayload(); payload != nil {
			if v, ok := payload["hash"]; ok {
				hash = v.GetStringValue()
			}
		}

		docs = append(docs, vector.Document{
			ID:        p.GetId().GetUuid(),
			Hash:      hash,
			Embedding: p.GetVectors().GetVector().GetData(),
		})
	}

	return docs, nil
}

// Delete removes documents by their point ids.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qc.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qc.NewID(id)
	}

	_, err := d.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: d.collection,
		Points:         qc.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting from qdrant: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", zap.Int("count", len(ids)))
	return nil
}

// Close releases the underlying gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
