package database

import (
	"context"

	"github.com/tieubaoca/knowledge-be/types"
)

// VectorBackend is a persistent collection of embedded records.
type VectorBackend interface {
	// EnsureCollection creates the collection unless it already exists.
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []types.StoredRecord) error
	// Query returns up to k records ordered by increasing distance.
	Query(ctx context.Context, vector []float32, k int) ([]types.ScoredRecord, error)
	// List returns every record without its embedding.
	List(ctx context.Context) ([]types.StoredRecord, error)
	// Delete removes the given ids. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
	// Dimension reports the vector size of the collection, 0 when empty.
	Dimension(ctx context.Context) (int, error)
	Close() error
}

// UploadRegistry remembers which file names have been ingested.
type UploadRegistry interface {
	Contains(ctx context.Context, fileName string) (bool, error)
	// Add reports false when the name was already present.
	Add(ctx context.Context, fileName string) (bool, error)
	Remove(ctx context.Context, fileName string) error
	Reset(ctx context.Context) error
}
