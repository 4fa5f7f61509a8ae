package vectorstore

import "context"

// Payload tags a vector with the identifiers needed to enforce tenant
// isolation and to route deletes/searches at the source and bot level.
type Payload struct {
	TenantID     string
	BotProfileID string
	SourceID     string
	ChunkID      string
}

// Point is one vector plus its payload, as passed to Upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is one search hit, ordered by decreasing similarity.
type Match struct {
	ChunkID string
	Score   float64
	Payload Payload
}

// Store is the single logical vector collection shared by every tenant.
// Every operation that can leak data across tenants MUST take tenantID and
// enforce it as a hard filter, never just a default.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	DeleteBySource(ctx context.Context, tenantID, sourceID string) error
	Search(ctx context.Context, tenantID, botProfileID string, queryVector []float32, topK int) ([]Match, error)
	Ping(ctx context.Context) error
}
