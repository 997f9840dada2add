package store

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

// categoryPayloadKey is the Qdrant payload field carrying the paper's
// category, used to filter nearest-neighbor searches.
const categoryPayloadKey = "category"

// VectorConfig holds the configuration for connecting to a Qdrant instance.
type VectorConfig struct {
	// Address is the host:port of the Qdrant gRPC endpoint.
	Address string
	// CollectionName is the Qdrant collection holding paper embeddings.
	CollectionName string
	// VectorSize is the dimensionality of the embedding vectors.
	VectorSize uint64
}

// Validate checks that all required VectorConfig fields are set.
func (c VectorConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("qdrant config: address is required")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("qdrant config: collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("qdrant config: vector size must be > 0")
	}
	return nil
}

// PaperPoint is one paper embedding to store in the vector index.
type PaperPoint struct {
	// PaperID is the paper's UUID, used as the Qdrant point ID.
	PaperID uuid.UUID
	// Category is stored as payload and drives search filtering.
	Category string
	// Embedding is the dense vector representation of the paper.
	Embedding []float32
}

// VectorMatch is a single nearest-neighbor search result.
type VectorMatch struct {
	// PaperID is the matched paper's UUID.
	PaperID uuid.UUID
	// Score is the cosine similarity (higher is more similar).
	Score float32
	// Embedding is the stored vector, returned so callers can reuse it
	// without re-encoding.
	Embedding []float32
}

// VectorStore defines vector storage and nearest-neighbor retrieval.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not already exist.
	EnsureCollection(ctx context.Context) error
	// UpsertBatch inserts or updates paper embeddings in one call.
	UpsertBatch(ctx context.Context, points []PaperPoint) error
	// Search finds the topK nearest vectors, optionally filtered to a
	// category, returning stored vectors alongside scores.
	Search(ctx context.Context, vector []float32, category string, topK uint64) ([]VectorMatch, error)
	// Close releases the underlying gRPC connection.
	Close() error
}

// Compile-time check that QdrantStore implements VectorStore.
var _ VectorStore = (*QdrantStore)(nil)

// QdrantStore is a Qdrant-backed VectorStore over gRPC.
type QdrantStore struct {
	client         *pb.Client
	collectionName string
	vectorSize     uint64
}

// NewQdrantStore creates a vector store by dialing the configured gRPC
// address. The connection uses insecure credentials, suitable for internal
// network deployments.
func NewQdrantStore(cfg VectorConfig) (*QdrantStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, port, err := parseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid address %q: %w", cfg.Address, err)
	}

	client, err := pb.NewClient(&pb.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{
		client:         client,
		collectionName: cfg.CollectionName,
		vectorSize:     cfg.VectorSize,
	}, nil
}

// EnsureCollection checks whether the configured collection exists and
// creates it with cosine distance if it does not.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     s.vectorSize,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.collectionName, err)
	}

	return nil
}

// UpsertBatch inserts or updates paper embedding points. Each paper's UUID
// is the point ID, making the upsert idempotent.
func (s *QdrantStore) UpsertBatch(ctx context.Context, points []PaperPoint) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &pb.PointStruct{
			Id:      pb.NewIDUUID(p.PaperID.String()),
			Vectors: pb.NewVectors(p.Embedding...),
			Payload: pb.NewValueMap(map[string]any{
				categoryPayloadKey: p.Category,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to upsert %d points: %w", len(points), err)
	}

	return nil
}

// Search performs a nearest-neighbor query returning up to topK matches
// ordered by cosine similarity. A non-empty category restricts the search
// to points carrying that category payload.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, category string, topK uint64) ([]VectorMatch, error) {
	query := &pb.QueryPoints{
		CollectionName: s.collectionName,
		Query:          pb.NewQueryDense(vector),
		Limit:          &topK,
		WithVectors:    pb.NewWithVectors(true),
	}
	if category != "" {
		query.Filter = &pb.Filter{
			Must: []*pb.Condition{
				pb.NewMatch(categoryPayloadKey, category),
			},
		}
	}

	scored, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]VectorMatch, 0, len(scored))
	for _, sp := range scored {
		if sp.Id == nil {
			continue
		}
		uuidStr := sp.Id.GetUuid()
		if uuidStr == "" {
			continue
		}
		paperID, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid UUID in search result %q: %w", uuidStr, err)
		}

		match := VectorMatch{
			PaperID: paperID,
			Score:   sp.Score,
		}
		if v := sp.Vectors.GetVector(); v != nil {
			match.Embedding = v.GetData()
		}
		matches = append(matches, match)
	}

	return matches, nil
}

// Close releases the gRPC connection to Qdrant.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// parseAddress splits an address of the form "host:port" into components.
func parseAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}

	return host, port, nil
}
