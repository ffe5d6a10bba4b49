// Package roster manages the KAM roster: which owner identities exist, what
// role they hold and which team lead they report to. The churn module's
// visibility rules resolve team scopes against it.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"churnwatch_backend/platform/apperr"
)

// Member is one roster entry.
type Member struct {
	KAM       string
	TeamLead  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MembersOf returns the KAM identities reporting to the given team lead.
func (r *Repository) MembersOf(ctx context.Context, leadKAM string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kam FROM kam_roster WHERE team_lead = $1 ORDER BY kam
	`, leadKAM)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var kam string
		if err := rows.Scan(&kam); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, kam)
	}
	return members, rows.Err()
}

func (r *Repository) Get(ctx context.Context, kam string) (Member, error) {
	var m Member
	err := r.pool.QueryRow(ctx, `
		SELECT kam, team_lead, role, created_at, updated_at
		FROM kam_roster WHERE kam = $1
	`, kam).Scan(&m.KAM, &m.TeamLead, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, apperr.NotFound("roster entry not found")
		}
		return Member{}, fmt.Errorf("get roster entry: %w", err)
	}
	return m, nil
}

func (r *Repository) List(ctx context.Context) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kam, team_lead, role, created_at, updated_at
		FROM kam_roster ORDER BY team_lead, kam
	`)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.KAM, &m.TeamLead, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Upsert creates or updates a roster entry keyed by KAM identity.
func (r *Repository) Upsert(ctx context.Context, m Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO kam_roster (kam, team_lead, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (kam) DO UPDATE SET team_lead = $2, role = $3, updated_at = NOW()
	`, m.KAM, m.TeamLead, m.Role)
	if err != nil {
		return fmt.Errorf("upsert roster entry: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, kam string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM kam_roster WHERE kam = $1`, kam)
	if err != nil {
		return fmt.Errorf("delete roster entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("roster entry not found")
	}
	return nil
}
