package repository

import (
	"context"
	"time"

	"churnwatch_backend/internal/churn/domain"
)

// ListParams narrows a record listing. Scope is always enforced; Search
// matches rid, account name or owner.
type ListParams struct {
	Scope  domain.Scope
	Search string
}

// RecordReader provides read access to churn records with their attempts.
type RecordReader interface {
	GetByRID(ctx context.Context, rid string) (*domain.Record, error)
	List(ctx context.Context, params ListParams) ([]*domain.Record, error)
	ListReminderDue(ctx context.Context, asOf time.Time) ([]*domain.Record, error)
}

// RecordWriter creates records from bulk ingestion.
type RecordWriter interface {
	Insert(ctx context.Context, rec *domain.Record) error
	InsertBatch(ctx context.Context, recs []*domain.Record) (int, error)
}

// StateWriter persists workflow transitions under optimistic concurrency.
// UpdateState writes the record's mutable state conditioned on
// expectedVersion and appends newAttempt, when given, in the same
// transaction. A version mismatch surfaces as Conflict.
type StateWriter interface {
	UpdateState(ctx context.Context, rec *domain.Record, expectedVersion int64, newAttempt *domain.CallAttempt) error
}

// Store is the full persistence surface for the churn module.
type Store interface {
	RecordReader
	RecordWriter
	StateWriter
}
