package roster

import (
	"context"
	"strings"

	"churnwatch_backend/platform/apperr"
	"churnwatch_backend/platform/sanitize"
)

var knownRoles = map[string]bool{
	"admin":     true,
	"team_lead": true,
	"agent":     true,
}

// Store is the persistence surface the service needs; satisfied by
// *Repository and by test fakes.
type Store interface {
	MembersOf(ctx context.Context, leadKAM string) ([]string, error)
	Get(ctx context.Context, kam string) (Member, error)
	List(ctx context.Context) ([]Member, error)
	Upsert(ctx context.Context, m Member) error
	Delete(ctx context.Context, kam string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// MembersOf resolves a team lead's member identities for visibility scoping.
func (s *Service) MembersOf(ctx context.Context, leadKAM string) ([]string, error) {
	if strings.TrimSpace(leadKAM) == "" {
		return nil, nil
	}
	return s.store.MembersOf(ctx, leadKAM)
}

func (s *Service) Get(ctx context.Context, kam string) (Member, error) {
	return s.store.Get(ctx, kam)
}

func (s *Service) List(ctx context.Context) ([]Member, error) {
	return s.store.List(ctx)
}

func (s *Service) Upsert(ctx context.Context, m Member) (Member, error) {
	m.KAM = sanitize.Text(m.KAM)
	m.TeamLead = sanitize.Text(m.TeamLead)
	m.Role = strings.ToLower(strings.TrimSpace(m.Role))

	if m.KAM == "" {
		return Member{}, apperr.InvalidInput("kam identity is required")
	}
	if !knownRoles[m.Role] {
		return Member{}, apperr.InvalidInput("unknown role: " + m.Role)
	}
	if m.KAM == m.TeamLead {
		return Member{}, apperr.InvalidInput("a member cannot report to themselves")
	}

	if err := s.store.Upsert(ctx, m); err != nil {
		return Member{}, err
	}
	return s.store.Get(ctx, m.KAM)
}

func (s *Service) Delete(ctx context.Context, kam string) error {
	return s.store.Delete(ctx, kam)
}
