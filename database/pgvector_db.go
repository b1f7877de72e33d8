package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/types"
)

const DefaultPgTable = "company_knowledge"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PgVectorStore keeps records in a Postgres table with a pgvector column.
// The column is left untyped so the dimension is fixed by the first insert.
type PgVectorStore struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

var _ VectorBackend = (*PgVectorStore)(nil)

func NewPgVectorStore(ctx context.Context, dsn, table string, logger *zap.Logger) (*PgVectorStore, error) {
	if table == "" {
		table = DefaultPgTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgVectorStore{pool: pool, table: table, logger: logger}, nil
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			content      TEXT NOT NULL,
			file_name    TEXT NOT NULL,
			file_type    TEXT NOT NULL,
			chunk_index  INTEGER NOT NULL,
			page_number  INTEGER NOT NULL DEFAULT 0,
			processed_at TIMESTAMPTZ NOT NULL,
			embedding    vector NOT NULL
		)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare table %s: %w", s.table, err)
		}
	}
	return nil
}

// Upsert writes all records in one transaction.
func (s *PgVectorStore) Upsert(ctx context.Context, records []types.StoredRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`INSERT INTO %s
		(id, content, file_name, file_type, chunk_index, page_number, processed_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			file_name = EXCLUDED.file_name,
			file_type = EXCLUDED.file_type,
			chunk_index = EXCLUDED.chunk_index,
			page_number = EXCLUDED.page_number,
			processed_at = EXCLUDED.processed_at,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.ID, r.Text, r.Metadata.FileName, r.Metadata.FileType,
			r.Metadata.ChunkIndex, r.Metadata.PageNumber, r.Metadata.ProcessedAt,
			pgvector.NewVector(r.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Query(ctx context.Context, vector []float32, k int) ([]types.ScoredRecord, error) {
	query := fmt.Sprintf(`SELECT id, content, file_name, file_type, chunk_index, page_number, processed_at,
			(embedding <=> $1::vector)::real AS distance
		FROM %s
		ORDER BY distance, id
		LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []types.ScoredRecord
	for rows.Next() {
		var hit types.ScoredRecord
		if err := rows.Scan(
			&hit.ID, &hit.Text, &hit.Metadata.FileName, &hit.Metadata.FileType,
			&hit.Metadata.ChunkIndex, &hit.Metadata.PageNumber, &hit.Metadata.ProcessedAt,
			&hit.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return hits, nil
}

func (s *PgVectorStore) List(ctx context.Context) ([]types.StoredRecord, error) {
	query := fmt.Sprintf(`SELECT id, content, file_name, file_type, chunk_index, page_number, processed_at
		FROM %s ORDER BY id`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []types.StoredRecord
	for rows.Next() {
		var r types.StoredRecord
		if err := rows.Scan(
			&r.ID, &r.Text, &r.Metadata.FileName, &r.Metadata.FileType,
			&r.Metadata.ChunkIndex, &r.Metadata.PageNumber, &r.Metadata.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}

func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Dimension(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT vector_dims(embedding) FROM %s LIMIT 1`, s.table)
	var dim int
	err := s.pool.QueryRow(ctx, query).Scan(&dim)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read dimension: %w", err)
	}
	return dim, nil
}

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
