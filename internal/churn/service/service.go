// Package service implements the churn follow-up workflow operations behind
// the HTTP surface: scoped listing with categorization, reason updates, call
// attempt recording, the corrective heal sweep and bulk ingestion.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"churnwatch_backend/internal/churn/domain"
	"churnwatch_backend/internal/churn/repository"
	"churnwatch_backend/internal/churn/transport"
	appevents "churnwatch_backend/internal/events"
	"churnwatch_backend/platform/apperr"
	"churnwatch_backend/platform/config"
	"churnwatch_backend/platform/events"
	"churnwatch_backend/platform/logger"
	"churnwatch_backend/platform/phone"
	"churnwatch_backend/platform/sanitize"
)

const (
	// conflictRetries bounds the internal re-read-and-recompute loop on
	// optimistic write collisions before Conflict surfaces to the caller.
	conflictRetries = 3
	conflictBackoff = 50 * time.Millisecond

	// healWorkers bounds the parallelism of the corrective sweep.
	healWorkers = 8

	defaultPageSize = 50
	maxPageSize     = 200
)

// TeamRoster resolves a team lead's member identities. An empty slice means
// the lead has no team and their scope fails closed.
type TeamRoster interface {
	MembersOf(ctx context.Context, leadKAM string) ([]string, error)
}

type Service struct {
	repo   repository.Store
	roster TeamRoster
	tax    *domain.Taxonomy
	bus    events.Bus
	log    *logger.Logger
	cfg    config.FollowUpConfig

	// now is swappable in tests; every operation captures it exactly once.
	now func() time.Time
}

func New(repo repository.Store, roster TeamRoster, tax *domain.Taxonomy, bus events.Bus, log *logger.Logger, cfg config.FollowUpConfig) *Service {
	return &Service{
		repo:   repo,
		roster: roster,
		tax:    tax,
		bus:    bus,
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// resolveScope derives the caller's allowed-owner set, consulting the roster
// only for team leads.
func (s *Service) resolveScope(ctx context.Context, caller domain.Caller) (domain.Scope, error) {
	if caller.Role != domain.RoleTeamLead {
		return domain.ResolveScope(caller, nil), nil
	}
	members, err := s.roster.MembersOf(ctx, caller.KAM)
	if err != nil {
		return domain.EmptyScope(), fmt.Errorf("resolve team members: %w", err)
	}
	return domain.ResolveScope(caller, members), nil
}

// ListQuery narrows and pages the record listing.
type ListQuery struct {
	Filter   string
	Search   string
	Page     int
	PageSize int
}

// List returns the caller's visible records, healed, categorized and
// paginated. The bucket filter and the summary both run through the same
// classifier so the counts always partition the visible set.
func (s *Service) List(ctx context.Context, caller domain.Caller, query ListQuery) (transport.ListResponse, error) {
	now := s.now()

	scope, err := s.resolveScope(ctx, caller)
	if err != nil {
		return transport.ListResponse{}, err
	}

	var bucket domain.Bucket
	filtered := false
	if query.Filter != "" {
		parsed, ok := domain.ParseBucket(query.Filter)
		if !ok {
			return transport.ListResponse{}, apperr.InvalidInput("unknown filter: " + query.Filter)
		}
		bucket = parsed
		filtered = true
	}

	records, err := s.repo.List(ctx, repository.ListParams{Scope: scope, Search: query.Search})
	if err != nil {
		return transport.ListResponse{}, err
	}

	s.healVisible(ctx, records, now)

	summary := domain.Categorize(s.tax, records, now, s.cfg.GetNewRecordWindow())

	visible := records
	if filtered {
		visible = make([]*domain.Record, 0, len(records))
		for _, rec := range records {
			if domain.BucketOf(s.tax, rec, now, s.cfg.GetNewRecordWindow()) == bucket {
				visible = append(visible, rec)
			}
		}
	}

	page, pageSize := normalizePage(query.Page, query.PageSize)
	start := (page - 1) * pageSize
	if start > len(visible) {
		start = len(visible)
	}
	end := start + pageSize
	if end > len(visible) {
		end = len(visible)
	}

	items := make([]transport.RecordResponse, 0, end-start)
	for _, rec := range visible[start:end] {
		items = append(items, transport.FromRecord(rec, now))
	}

	return transport.ListResponse{
		Items:    items,
		Summary:  summary,
		Total:    len(visible),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// healVisible runs the corrective pass over an already-loaded record set and
// persists each correction best-effort. A failed persist is logged and
// skipped; the in-memory view stays corrected either way so the listing the
// caller sees is consistent.
func (s *Service) healVisible(ctx context.Context, records []*domain.Record, now time.Time) {
	for _, rec := range records {
		version := rec.Version
		if !domain.HealRecord(s.tax, rec, now) {
			continue
		}
		if err := s.repo.UpdateState(ctx, rec, version, nil); err != nil {
			s.log.HealSkip(rec.RID, err)
		}
	}
}

// GetStatus returns the full record view with isActive re-derived at read
// time.
func (s *Service) GetStatus(ctx context.Context, caller domain.Caller, rid string) (transport.RecordResponse, error) {
	now := s.now()

	rec, err := s.loadVisible(ctx, caller, rid)
	if err != nil {
		return transport.RecordResponse{}, err
	}
	return transport.FromRecord(rec, now), nil
}

// SetReason updates a record's churn reason and advances the workflow.
// Optimistic write collisions are retried by re-reading and recomputing the
// whole transition.
func (s *Service) SetReason(ctx context.Context, caller domain.Caller, rid string, req transport.SetReasonRequest) (transport.RecordResponse, error) {
	now := s.now()
	reason := sanitize.Text(req.Reason)

	var rec *domain.Record
	err := s.withConflictRetry(ctx, func() error {
		var err error
		rec, err = s.loadVisible(ctx, caller, rid)
		if err != nil {
			return err
		}

		version := rec.Version
		change := domain.ApplyReason(s.tax, rec, reason, now, s.cfg.GetReminderInterval())
		if req.Remarks != nil {
			rec.Remarks = sanitize.Text(*req.Remarks)
		}
		if err := s.repo.UpdateState(ctx, rec, version, nil); err != nil {
			return err
		}

		s.publishReasonChange(ctx, rec, change)
		return nil
	})
	if err != nil {
		return transport.RecordResponse{}, err
	}

	s.log.FollowUpTransition(rec.RID, string(rec.FollowUpStatus), rec.CurrentCall)
	return transport.FromRecord(rec, now), nil
}

// RecordAttempt appends a call attempt and advances the workflow.
func (s *Service) RecordAttempt(ctx context.Context, caller domain.Caller, rid string, req transport.RecordAttemptRequest) (transport.RecordResponse, error) {
	now := s.now()
	input := domain.AttemptInput{
		Response:     domain.CallResponse(req.Response),
		Notes:        sanitize.Text(req.Notes),
		ReasonAtCall: sanitize.Text(req.ReasonAtCall),
	}

	var rec *domain.Record
	err := s.withConflictRetry(ctx, func() error {
		var err error
		rec, err = s.loadVisible(ctx, caller, rid)
		if err != nil {
			return err
		}

		version := rec.Version
		result, err := domain.ApplyAttempt(s.tax, rec, input, now, s.cfg.GetReminderInterval())
		if err != nil {
			return err
		}

		attempt := rec.Attempts[len(rec.Attempts)-1]
		if err := s.repo.UpdateState(ctx, rec, version, &attempt); err != nil {
			return err
		}

		s.publishAttemptResult(ctx, rec, result)
		return nil
	})
	if err != nil {
		return transport.RecordResponse{}, err
	}

	s.log.FollowUpTransition(rec.RID, string(rec.FollowUpStatus), rec.CurrentCall)
	return transport.FromRecord(rec, now), nil
}

// ListActive returns the caller's records that are actionable right now,
// including stored-INACTIVE records whose reminder has elapsed.
func (s *Service) ListActive(ctx context.Context, caller domain.Caller) ([]transport.RecordResponse, error) {
	return s.listWhere(ctx, caller, func(rec *domain.Record, now time.Time) bool {
		return !rec.IsCompleted() && rec.ActiveAt(now)
	})
}

// ListOverdue returns records parked INACTIVE whose reminder has elapsed but
// not yet been processed.
func (s *Service) ListOverdue(ctx context.Context, caller domain.Caller) ([]transport.RecordResponse, error) {
	return s.listWhere(ctx, caller, func(rec *domain.Record, now time.Time) bool {
		return rec.ReminderOverdueAt(now)
	})
}

func (s *Service) listWhere(ctx context.Context, caller domain.Caller, keep func(*domain.Record, time.Time) bool) ([]transport.RecordResponse, error) {
	now := s.now()

	scope, err := s.resolveScope(ctx, caller)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.List(ctx, repository.ListParams{Scope: scope})
	if err != nil {
		return nil, err
	}

	items := make([]transport.RecordResponse, 0)
	for _, rec := range records {
		if keep(rec, now) {
			items = append(items, transport.FromRecord(rec, now))
		}
	}
	return items, nil
}

// Import stores pre-validated, de-duplicated new records from a bulk
// ingestion. Phone numbers are normalized and free-text fields sanitized;
// each record's initial workflow state comes from classifying its reason.
func (s *Service) Import(ctx context.Context, req transport.ImportRequest) (transport.ImportResponse, error) {
	now := s.now()

	seen := make(map[string]struct{}, len(req.Records))
	recs := make([]*domain.Record, 0, len(req.Records))
	for _, row := range req.Records {
		if _, dup := seen[row.RID]; dup {
			continue
		}
		seen[row.RID] = struct{}{}

		rec := &domain.Record{
			RID:            row.RID,
			KAM:            sanitize.Text(row.KAM),
			AccountName:    sanitize.Text(row.AccountName),
			Remarks:        sanitize.Text(row.Remarks),
			ContactPhone:   phone.NormalizeE164(row.ContactPhone),
			RecordDate:     row.RecordDate,
			FollowUpStatus: domain.StatusInactive,
			CurrentCall:    1,
		}
		domain.ApplyReason(s.tax, rec, sanitize.Text(row.Reason), now, s.cfg.GetReminderInterval())
		recs = append(recs, rec)
	}

	inserted, err := s.repo.InsertBatch(ctx, recs)
	if err != nil {
		return transport.ImportResponse{}, err
	}

	resp := transport.ImportResponse{
		Received: len(req.Records),
		Inserted: inserted,
		Skipped:  len(req.Records) - inserted,
	}
	s.bus.Publish(ctx, appevents.RecordsImported{
		BaseEvent: events.NewBaseEvent(),
		Inserted:  resp.Inserted,
		Skipped:   resp.Skipped,
	})

	for _, rec := range recs {
		if rec.Version == 0 {
			// Skipped as a duplicate; nothing was stored for it.
			continue
		}
		if rec.NextReminderTime != nil {
			s.publishReminderScheduled(ctx, rec.RID, *rec.NextReminderTime)
		}
	}

	return resp, nil
}

// HealAll runs the corrective sweep over every record. Per-record failures
// are logged and skipped; the sweep itself never fails because of one bad
// record.
func (s *Service) HealAll(ctx context.Context) (transport.HealResponse, error) {
	now := s.now()

	records, err := s.repo.List(ctx, repository.ListParams{Scope: domain.UnrestrictedScope()})
	if err != nil {
		return transport.HealResponse{}, err
	}

	resp := transport.HealResponse{Scanned: len(records)}

	var group errgroup.Group
	group.SetLimit(healWorkers)
	results := make([]int, len(records))
	for i, rec := range records {
		group.Go(func() error {
			version := rec.Version
			if !domain.HealRecord(s.tax, rec, now) {
				return nil
			}
			if err := s.repo.UpdateState(ctx, rec, version, nil); err != nil {
				s.log.HealSkip(rec.RID, err)
				results[i] = -1
				return nil
			}
			results[i] = 1
			return nil
		})
	}
	// Workers never return errors; Wait only fences completion.
	_ = group.Wait()

	for _, r := range results {
		switch r {
		case 1:
			resp.Corrected++
		case -1:
			resp.Skipped++
		}
	}
	return resp, nil
}

// ActivateDueRecord persists the INACTIVE-to-ACTIVE flip for a record whose
// reminder has elapsed. Called by the scheduler when a reminder task fires;
// a record no longer in the due window is left untouched.
func (s *Service) ActivateDueRecord(ctx context.Context, rid string) error {
	return s.withConflictRetry(ctx, func() error {
		rec, err := s.repo.GetByRID(ctx, rid)
		if err != nil {
			return err
		}

		version := rec.Version
		if !domain.MarkReminderDue(rec, s.now()) {
			return nil
		}
		if err := s.repo.UpdateState(ctx, rec, version, nil); err != nil {
			return err
		}

		s.log.FollowUpTransition(rec.RID, string(rec.FollowUpStatus), rec.CurrentCall)
		s.bus.Publish(ctx, appevents.FollowUpActivated{
			BaseEvent: events.NewBaseEvent(),
			RID:       rec.RID,
			KAM:       rec.KAM,
		})
		return nil
	})
}

// ProcessDueReminders activates every record whose reminder has elapsed.
// Used by the periodic sweep as a safety net under the per-record tasks.
func (s *Service) ProcessDueReminders(ctx context.Context) (int, error) {
	records, err := s.repo.ListReminderDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, rec := range records {
		if err := s.ActivateDueRecord(ctx, rec.RID); err != nil {
			s.log.HealSkip(rec.RID, err)
			continue
		}
		activated++
	}
	return activated, nil
}

// loadVisible fetches a record and enforces the caller's scope against its
// owner. Records outside the scope surface as Forbidden, never as a silent
// miss, so ownership changes stay diagnosable.
func (s *Service) loadVisible(ctx context.Context, caller domain.Caller, rid string) (*domain.Record, error) {
	scope, err := s.resolveScope(ctx, caller)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByRID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(rec.KAM) {
		return nil, apperr.Forbidden("record belongs to another owner")
	}
	return rec, nil
}

// withConflictRetry re-runs the whole read-modify-write on optimistic write
// collisions, a bounded number of times. Every other error aborts
// immediately.
func (s *Service) withConflictRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(conflictBackoff), conflictRetries),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if apperr.Is(err, apperr.KindConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (s *Service) publishReasonChange(ctx context.Context, rec *domain.Record, change domain.ReasonChange) {
	if change.Activated {
		s.bus.Publish(ctx, appevents.FollowUpActivated{
			BaseEvent: events.NewBaseEvent(),
			RID:       rec.RID,
			KAM:       rec.KAM,
		})
	}
	if change.ReminderAt != nil {
		s.publishReminderScheduled(ctx, rec.RID, *change.ReminderAt)
	}
	if change.Completed {
		s.publishCompleted(ctx, rec)
	}
}

func (s *Service) publishAttemptResult(ctx context.Context, rec *domain.Record, result domain.AttemptResult) {
	if result.NextReminderTime != nil {
		s.publishReminderScheduled(ctx, rec.RID, *result.NextReminderTime)
	}
	if result.Completed {
		s.publishCompleted(ctx, rec)
	}
}

func (s *Service) publishReminderScheduled(ctx context.Context, rid string, runAt time.Time) {
	s.bus.Publish(ctx, appevents.ReminderScheduled{
		BaseEvent: events.NewBaseEvent(),
		RID:       rid,
		RunAt:     runAt,
	})
}

func (s *Service) publishCompleted(ctx context.Context, rec *domain.Record) {
	s.bus.Publish(ctx, appevents.FollowUpCompleted{
		BaseEvent: events.NewBaseEvent(),
		RID:       rec.RID,
		KAM:       rec.KAM,
		Reason:    rec.Reason,
	})
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
