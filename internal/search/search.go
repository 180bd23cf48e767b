// Package search maintains a Qdrant similarity index over camp descriptions
// and answers free-text queries against it. Camps are indexed on create and
// update and removed on delete; search embeds the query and runs a cosine
// nearest-neighbour lookup.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/opencamphq/campd/internal/store"
)

// Config holds connection parameters for the Qdrant instance.
type Config struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: camps).
	Collection string

	// VectorSize is the dimensionality of the stored embeddings
	// (default: 1536, matching text-embedding-3-small).
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// applyDefaults fills unset fields in place.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "camps"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
}

// Match is one search hit: a camp ID with its similarity score and the
// indexed display fields.
type Match struct {
	// CampID is the matched camp's primary key.
	CampID int64 `json:"camp_id"`
	// Score is the cosine similarity of the match.
	Score float32 `json:"score"`
	// Name and Location are the indexed display fields, echoed back so list
	// views need no extra store round-trip.
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// Embedder converts texts into dense vector embeddings. The returned slice
// is parallel to the input slice.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// pointsAPI is the slice of the Qdrant client the index uses.
// The [qdrant.Client] type satisfies this interface; tests inject a fake.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Index is the camp similarity index. Safe for concurrent use.
type Index struct {
	// client is the Qdrant gRPC client.
	client pointsAPI

	// embed turns camp text and queries into vectors.
	embed Embedder

	// cfg holds the resolved configuration.
	cfg Config

	// log is the structured logger.
	log *slog.Logger
}

// NewIndex connects to Qdrant, ensures the collection exists (creating it if
// necessary), and returns a ready index.
func NewIndex(ctx context.Context, cfg Config, embed Embedder, log *slog.Logger) (*Index, error) {
	cfg.applyDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: failed to create qdrant client: %w", err)
	}

	idx := &Index{client: client, embed: embed, cfg: cfg, log: log}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (i *Index) ensureCollection(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.cfg.Collection)
	if err != nil {
		return fmt.Errorf("search: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     i.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("search: failed to create collection %q: %w", i.cfg.Collection, err)
	}
	return nil
}

// campText renders the text that represents a camp in the index.
func campText(c store.Camp) string {
	text := c.Name
	if c.Location != "" {
		text += " (" + c.Location + ")"
	}
	if c.Description != "" {
		text += ": " + c.Description
	}
	return text
}

// IndexCamp embeds the camp's text and upserts it under the camp's ID.
// Re-indexing an existing camp overwrites its point.
func (i *Index) IndexCamp(ctx context.Context, c store.Camp) error {
	vectors, err := i.embed.Embed(ctx, []string{campText(c)})
	if err != nil {
		return fmt.Errorf("search: embed camp %d: %w", c.ID, err)
	}

	_, err = i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(c.ID)),
			Vectors: qdrant.NewVectors(vectors[0]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"name":     c.Name,
				"location": c.Location,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("search: upsert camp %d: %w", c.ID, err)
	}

	i.log.Debug("camp indexed", slog.Int64("camp_id", c.ID))
	return nil
}

// RemoveCamp deletes the camp's point from the index.
func (i *Index) RemoveCamp(ctx context.Context, campID int64) error {
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.cfg.Collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDNum(uint64(campID))),
	})
	if err != nil {
		return fmt.Errorf("search: delete camp %d: %w", campID, err)
	}
	return nil
}

// Search embeds the query and returns the top-k most similar camps.
func (i *Index) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	vectors, err := i.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	limit := uint64(topK)
	results, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.cfg.Collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search: query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{
			CampID: int64(r.Id.GetNum()),
			Score:  r.Score,
		}
		if p := r.Payload; p != nil {
			if v, ok := p["name"]; ok {
				m.Name = v.GetStringValue()
			}
			if v, ok := p["location"]; ok {
				m.Location = v.GetStringValue()
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (i *Index) Close() error {
	return i.client.Close()
}
