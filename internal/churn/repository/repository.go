package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"churnwatch_backend/internal/churn/domain"
	"churnwatch_backend/platform/apperr"
)

// Repository is the Postgres-backed store for churn records and their call
// attempts. Attempts are kept in a child table keyed by (rid, call_number)
// so the sequence stays ordered and append-only.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const recordColumns = `rid, kam, account_name, reason, remarks, contact_phone, record_date,
	controlled_status, follow_up_status, is_follow_up_active, current_call,
	next_reminder_time, follow_up_completed_at, version, created_at, updated_at`

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var rec domain.Record
	err := row.Scan(
		&rec.RID, &rec.KAM, &rec.AccountName, &rec.Reason, &rec.Remarks, &rec.ContactPhone, &rec.RecordDate,
		&rec.ControlledStatus, &rec.FollowUpStatus, &rec.IsFollowUpActive, &rec.CurrentCall,
		&rec.NextReminderTime, &rec.FollowUpCompletedAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) GetByRID(ctx context.Context, rid string) (*domain.Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM churn_records
		WHERE rid = $1
	`, rid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("churn record not found")
		}
		return nil, fmt.Errorf("get churn record: %w", err)
	}

	if err := r.loadAttempts(ctx, map[string]*domain.Record{rec.RID: rec}, []string{rec.RID}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]*domain.Record, error) {
	if params.Scope.Empty() {
		return []*domain.Record{}, nil
	}

	query, args := buildListQuery(params)
	return r.queryRecords(ctx, query, args...)
}

// buildListQuery assembles the scope- and search-filtered listing. The scope
// filter is applied in SQL so restricted callers never pull rows they cannot
// see; an unrestricted scope simply omits the owner predicate.
func buildListQuery(params ListParams) (string, []any) {
	query := `SELECT ` + recordColumns + ` FROM churn_records WHERE 1=1`
	args := []any{}

	if !params.Scope.Unrestricted() {
		args = append(args, params.Scope.Owners())
		query += fmt.Sprintf(" AND kam = ANY($%d)", len(args))
	}
	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		idx := len(args)
		query += fmt.Sprintf(" AND (rid ILIKE $%d OR account_name ILIKE $%d OR kam ILIKE $%d)", idx, idx, idx)
	}
	query += " ORDER BY created_at DESC, rid"

	return query, args
}

// ListReminderDue returns records parked INACTIVE whose reminder has elapsed.
func (r *Repository) ListReminderDue(ctx context.Context, asOf time.Time) ([]*domain.Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM churn_records
		WHERE follow_up_status = $1 AND next_reminder_time IS NOT NULL AND next_reminder_time <= $2
		ORDER BY next_reminder_time
	`, domain.StatusInactive, asOf)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]*domain.Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list churn records: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.Record, 0)
	byRID := make(map[string]*domain.Record)
	rids := make([]string, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan churn record: %w", err)
		}
		records = append(records, rec)
		byRID[rec.RID] = rec
		rids = append(rids, rec.RID)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := r.loadAttempts(ctx, byRID, rids); err != nil {
		return nil, err
	}
	return records, nil
}

// loadAttempts attaches call attempts to the given records in call order.
func (r *Repository) loadAttempts(ctx context.Context, byRID map[string]*domain.Record, rids []string) error {
	if len(rids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT rid, call_number, attempted_at, response, notes, reason_at_call
		FROM churn_call_attempts
		WHERE rid = ANY($1)
		ORDER BY rid, call_number
	`, rids)
	if err != nil {
		return fmt.Errorf("load call attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rid string
		var attempt domain.CallAttempt
		if err := rows.Scan(&rid, &attempt.CallNumber, &attempt.AttemptedAt, &attempt.Response, &attempt.Notes, &attempt.ReasonAtCall); err != nil {
			return fmt.Errorf("scan call attempt: %w", err)
		}
		if rec, ok := byRID[rid]; ok {
			rec.Attempts = append(rec.Attempts, attempt)
		}
	}
	return rows.Err()
}

func (r *Repository) Insert(ctx context.Context, rec *domain.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO churn_records (
			rid, kam, account_name, reason, remarks, contact_phone, record_date,
			controlled_status, follow_up_status, is_follow_up_active, current_call,
			next_reminder_time, follow_up_completed_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`,
		rec.RID, rec.KAM, rec.AccountName, rec.Reason, rec.Remarks, rec.ContactPhone, rec.RecordDate,
		rec.ControlledStatus, rec.FollowUpStatus, rec.IsFollowUpActive, rec.CurrentCall,
		rec.NextReminderTime, rec.FollowUpCompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert churn record: %w", err)
	}
	rec.Version = 1
	return nil
}

// InsertBatch stores pre-validated new records, skipping rids that already
// exist. Returns the number actually inserted.
func (r *Repository) InsertBatch(ctx context.Context, recs []*domain.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, rec := range recs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO churn_records (
				rid, kam, account_name, reason, remarks, contact_phone, record_date,
				controlled_status, follow_up_status, is_follow_up_active, current_call,
				next_reminder_time, follow_up_completed_at, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
			ON CONFLICT (rid) DO NOTHING
		`,
			rec.RID, rec.KAM, rec.AccountName, rec.Reason, rec.Remarks, rec.ContactPhone, rec.RecordDate,
			rec.ControlledStatus, rec.FollowUpStatus, rec.IsFollowUpActive, rec.CurrentCall,
			rec.NextReminderTime, rec.FollowUpCompletedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert churn record %s: %w", rec.RID, err)
		}
		if tag.RowsAffected() > 0 {
			rec.Version = 1
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch insert: %w", err)
	}
	return inserted, nil
}

// UpdateState writes the record's workflow state conditioned on the version
// read by the caller, bumping the version on success. A stale version means
// another writer got there first, surfaced as Conflict so the caller can
// re-read and recompute. newAttempt, when given, lands in the same
// transaction so a crash never stores a transition without its attempt.
func (r *Repository) UpdateState(ctx context.Context, rec *domain.Record, expectedVersion int64, newAttempt *domain.CallAttempt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin state update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE churn_records
		SET reason = $1,
			remarks = $2,
			controlled_status = $3,
			follow_up_status = $4,
			is_follow_up_active = $5,
			current_call = $6,
			next_reminder_time = $7,
			follow_up_completed_at = $8,
			version = version + 1,
			updated_at = NOW()
		WHERE rid = $9 AND version = $10
	`,
		rec.Reason, rec.Remarks, rec.ControlledStatus,
		rec.FollowUpStatus, rec.IsFollowUpActive, rec.CurrentCall,
		rec.NextReminderTime, rec.FollowUpCompletedAt,
		rec.RID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update churn record %s: %w", rec.RID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM churn_records WHERE rid = $1)`, rec.RID).Scan(&exists); err != nil {
			return fmt.Errorf("check churn record %s: %w", rec.RID, err)
		}
		if !exists {
			return apperr.NotFound("churn record not found")
		}
		return apperr.Conflict("churn record was modified concurrently")
	}

	if newAttempt != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO churn_call_attempts (rid, call_number, attempted_at, response, notes, reason_at_call)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.RID, newAttempt.CallNumber, newAttempt.AttemptedAt, newAttempt.Response, newAttempt.Notes, newAttempt.ReasonAtCall)
		if err != nil {
			return fmt.Errorf("insert call attempt %s/%d: %w", rec.RID, newAttempt.CallNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit state update: %w", err)
	}
	rec.Version = expectedVersion + 1
	return nil
}
