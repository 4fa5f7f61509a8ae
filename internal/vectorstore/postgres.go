package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const collectionName = "minirag_chunks"

// pointModel is the single vector collection's row shape. GORM can't
// express a parametric vector(N) column, so the dimensionality is fixed up
// with a raw ALTER COLUMN after AutoMigrate creates the table.
type pointModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	TenantID     string `gorm:"column:tenant_id;not null;index"`
	BotProfileID string `gorm:"column:bot_profile_id;not null;index"`
	SourceID     string `gorm:"column:source_id;not null;index"`
	ChunkID      string `gorm:"column:chunk_id;not null"`
	Embedding    pgvector.Vector `gorm:"column:embedding"`
}

func (pointModel) TableName() string { return collectionName }

// PostgresStore implements vectorstore.Store over a pgvector-enabled
// Postgres table, reachable through a separate DSN (VECTOR_URL) even when
// it happens to point at the same cluster as the metadata store.
type PostgresStore struct {
	db  *gorm.DB
	dim int
}

// NewPostgresStore opens VECTOR_URL and creates the collection with the
// given embedding dimensionality if it does not already exist.
func NewPostgresStore(dsn string, embeddingDim int) (*PostgresStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("vectorstore: embedding dimension must be positive")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open db: %w", err)
	}
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("vectorstore: create extension: %w", err)
	}
	if err := db.AutoMigrate(&pointModel{}); err != nil {
		return nil, fmt.Errorf("vectorstore: migrate: %w", err)
	}
	alter := fmt.Sprintf(`
		DO $$
		BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = '%s' AND column_name = 'embedding' AND udt_name <> 'vector'
			) THEN
				ALTER TABLE %s ALTER COLUMN embedding TYPE vector(%d);
			END IF;
		END $$;
	`, collectionName, collectionName, embeddingDim)
	if err := db.Exec(alter).Error; err != nil {
		return nil, fmt.Errorf("vectorstore: size embedding column: %w", err)
	}
	return &PostgresStore{db: db, dim: embeddingDim}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	models := make([]pointModel, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != s.dim {
			return fmt.Errorf("vectorstore: vector dimension mismatch: got %d, want %d", len(p.Vector), s.dim)
		}
		models = append(models, pointModel{
			ID:           p.ID,
			TenantID:     p.Payload.TenantID,
			BotProfileID: p.Payload.BotProfileID,
			SourceID:     p.Payload.SourceID,
			ChunkID:      p.Payload.ChunkID,
			Embedding:    pgvector.NewVector(p.Vector),
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "bot_profile_id", "source_id", "chunk_id", "embedding"}),
	}).CreateInBatches(&models, 128).Error
}

// Ping verifies the underlying database connection is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	db, err := s.db.WithContext(ctx).DB()
	if err != nil {
		return fmt.Errorf("vectorstore: get sql.DB: %w", err)
	}
	return db.PingContext(ctx)
}

func (s *PostgresStore) DeleteBySource(ctx context.Context, tenantID, sourceID string) error {
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND source_id = ?", tenantID, sourceID).
		Delete(&pointModel{}).Error
}

// Search enforces tenant and bot isolation as a hard WHERE filter, not a
// post-filter on an unscoped top-k, so a cross-tenant vector can never
// surface regardless of its similarity score.
func (s *PostgresStore) Search(ctx context.Context, tenantID, botProfileID string, queryVector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("vectorstore: query vector dimension mismatch: got %d, want %d", len(queryVector), s.dim)
	}
	vec := pgvector.NewVector(queryVector)
	var rows []struct {
		pointModel
		Distance float64 `gorm:"column:distance"`
	}
	if err := s.db.WithContext(ctx).Model(&pointModel{}).
		Select("*, embedding <=> ? AS distance", vec).
		Where("tenant_id = ? AND bot_profile_id = ?", tenantID, botProfileID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(topK).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	out := make([]Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, Match{
			ChunkID: r.ChunkID,
			Score:   1 - r.Distance,
			Payload: Payload{
				TenantID:     r.TenantID,
				BotProfileID: r.BotProfileID,
				SourceID:     r.SourceID,
				ChunkID:      r.ChunkID,
			},
		})
	}
	return out, nil
}
