package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"churnwatch_backend/internal/churn/domain"
	"churnwatch_backend/internal/churn/repository"
	"churnwatch_backend/internal/churn/transport"
	"churnwatch_backend/platform/apperr"
	"churnwatch_backend/platform/events"
	"churnwatch_backend/platform/logger"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// fakeStore is an in-memory repository.Store enforcing the same optimistic
// versioning contract as the Postgres implementation.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*domain.Record

	// failUpdates makes the next N UpdateState calls return Conflict
	// without applying, to exercise the retry loop.
	failUpdates int
	updateCalls int
}

func newFakeStore(recs ...*domain.Record) *fakeStore {
	s := &fakeStore{records: make(map[string]*domain.Record)}
	for _, rec := range recs {
		if rec.Version == 0 {
			rec.Version = 1
		}
		s.records[rec.RID] = cloneRecord(rec)
	}
	return s
}

func cloneRecord(rec *domain.Record) *domain.Record {
	clone := *rec
	if rec.NextReminderTime != nil {
		t := *rec.NextReminderTime
		clone.NextReminderTime = &t
	}
	if rec.FollowUpCompletedAt != nil {
		t := *rec.FollowUpCompletedAt
		clone.FollowUpCompletedAt = &t
	}
	clone.Attempts = append([]domain.CallAttempt(nil), rec.Attempts...)
	return &clone
}

func (s *fakeStore) GetByRID(_ context.Context, rid string) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[rid]
	if !ok {
		return nil, apperr.NotFound("churn record not found")
	}
	return cloneRecord(rec), nil
}

func (s *fakeStore) List(_ context.Context, params repository.ListParams) ([]*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if params.Scope.Empty() {
		return []*domain.Record{}, nil
	}
	result := make([]*domain.Record, 0)
	for _, rec := range s.records {
		if params.Scope.Allows(rec.KAM) {
			result = append(result, cloneRecord(rec))
		}
	}
	return result, nil
}

func (s *fakeStore) ListReminderDue(_ context.Context, asOf time.Time) ([]*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*domain.Record, 0)
	for _, rec := range s.records {
		if rec.ReminderOverdueAt(asOf) {
			result = append(result, cloneRecord(rec))
		}
	}
	return result, nil
}

func (s *fakeStore) Insert(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Version = 1
	s.records[rec.RID] = cloneRecord(rec)
	return nil
}

func (s *fakeStore) InsertBatch(_ context.Context, recs []*domain.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, rec := range recs {
		if _, exists := s.records[rec.RID]; exists {
			continue
		}
		rec.Version = 1
		s.records[rec.RID] = cloneRecord(rec)
		inserted++
	}
	return inserted, nil
}

func (s *fakeStore) UpdateState(_ context.Context, rec *domain.Record, expectedVersion int64, newAttempt *domain.CallAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdates > 0 {
		s.failUpdates--
		return apperr.Conflict("churn record was modified concurrently")
	}
	stored, ok := s.records[rec.RID]
	if !ok {
		return apperr.NotFound("churn record not found")
	}
	if stored.Version != expectedVersion {
		return apperr.Conflict("churn record was modified concurrently")
	}
	updated := cloneRecord(rec)
	updated.Version = expectedVersion + 1
	if newAttempt != nil && len(updated.Attempts) == 0 {
		updated.Attempts = []domain.CallAttempt{*newAttempt}
	}
	s.records[rec.RID] = updated
	rec.Version = updated.Version
	return nil
}

type fakeRoster struct {
	teams map[string][]string
}

func (r *fakeRoster) MembersOf(_ context.Context, leadKAM string) ([]string, error) {
	return r.teams[leadKAM], nil
}

// captureBus records published events synchronously.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	matched := make([]events.Event, 0)
	for _, e := range b.events {
		if e.EventName() == name {
			matched = append(matched, e)
		}
	}
	return matched
}

type followUpSettings struct{}

func (followUpSettings) GetReminderInterval() time.Duration { return 24 * time.Hour }
func (followUpSettings) GetNewRecordWindow() time.Duration  { return 72 * time.Hour }

func newTestService(store *fakeStore, roster *fakeRoster, bus events.Bus) *Service {
	if roster == nil {
		roster = &fakeRoster{}
	}
	if bus == nil {
		bus = &captureBus{}
	}
	svc := New(store, roster, domain.DefaultTaxonomy(), bus, logger.New("development"), followUpSettings{})
	svc.now = func() time.Time { return testNow }
	return svc
}

func record(rid, kam string) *domain.Record {
	return &domain.Record{
		RID:            rid,
		KAM:            kam,
		AccountName:    "Account " + rid,
		FollowUpStatus: domain.StatusInactive,
		CurrentCall:    1,
		RecordDate:     testNow.Add(-24 * time.Hour).Format(time.RFC3339),
	}
}

var admin = domain.Caller{KAM: "admin.user", Role: domain.RoleAdmin}

func TestSetReasonBlankActivatesAndSchedulesReminder(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	bus := &captureBus{}
	svc := newTestService(store, nil, bus)

	resp, err := svc.SetReason(context.Background(), admin, "CHN-1", transport.SetReasonRequest{Reason: ""})
	if err != nil {
		t.Fatal(err)
	}

	if resp.FollowUpStatus != string(domain.StatusActive) || !resp.IsActive {
		t.Fatalf("status = %s isActive=%v, want ACTIVE", resp.FollowUpStatus, resp.IsActive)
	}
	if resp.NextReminderTime == nil || !resp.NextReminderTime.Equal(testNow.Add(24*time.Hour)) {
		t.Fatalf("reminder = %v", resp.NextReminderTime)
	}

	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if stored.FollowUpStatus != domain.StatusActive || stored.Version != 2 {
		t.Fatalf("persisted status=%s version=%d", stored.FollowUpStatus, stored.Version)
	}

	if got := bus.named("churn.reminder.scheduled"); len(got) != 1 {
		t.Fatalf("reminder events = %d, want 1", len(got))
	}
	if got := bus.named("churn.followup.activated"); len(got) != 1 {
		t.Fatalf("activation events = %d, want 1", len(got))
	}
}

func TestSetReasonUpdatesRemarksOnlyWhenPresent(t *testing.T) {
	rec := record("CHN-1", "ravi.kumar")
	rec.Remarks = "met owner last week"
	store := newFakeStore(rec)
	svc := newTestService(store, nil, nil)

	if _, err := svc.SetReason(context.Background(), admin, "CHN-1", transport.SetReasonRequest{Reason: "Pricing Issue"}); err != nil {
		t.Fatal(err)
	}
	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if stored.Remarks != "met owner last week" {
		t.Fatalf("absent remarks field overwrote stored remarks: %q", stored.Remarks)
	}

	remarks := "owner asked for a callback on Monday"
	if _, err := svc.SetReason(context.Background(), admin, "CHN-1", transport.SetReasonRequest{Reason: "Pricing Issue", Remarks: &remarks}); err != nil {
		t.Fatal(err)
	}
	stored, _ = store.GetByRID(context.Background(), "CHN-1")
	if stored.Remarks != remarks {
		t.Fatalf("remarks = %q, want updated", stored.Remarks)
	}
}

func TestSetReasonRetriesConflictThenSucceeds(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	store.failUpdates = 2
	svc := newTestService(store, nil, nil)

	_, err := svc.SetReason(context.Background(), admin, "CHN-1", transport.SetReasonRequest{Reason: "Permanently Closed"})
	if err != nil {
		t.Fatalf("conflict not retried away: %v", err)
	}
	if store.updateCalls != 3 {
		t.Fatalf("update calls = %d, want 3", store.updateCalls)
	}

	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if stored.FollowUpStatus != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", stored.FollowUpStatus)
	}
}

func TestSetReasonSurfacesConflictAfterRetriesExhausted(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	store.failUpdates = 10
	svc := newTestService(store, nil, nil)

	_, err := svc.SetReason(context.Background(), admin, "CHN-1", transport.SetReasonRequest{Reason: "x"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want Conflict", err)
	}
}

func TestSetReasonForbiddenOutsideScope(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	svc := newTestService(store, nil, nil)

	agent := domain.Caller{KAM: "priya.nair", Role: domain.RoleAgent}
	_, err := svc.SetReason(context.Background(), agent, "CHN-1", transport.SetReasonRequest{Reason: "x"})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
}

func TestSetReasonNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), nil, nil)

	_, err := svc.SetReason(context.Background(), admin, "CHN-404", transport.SetReasonRequest{Reason: "x"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestRecordAttemptPersistsAttempt(t *testing.T) {
	rec := record("CHN-1", "ravi.kumar")
	rec.FollowUpStatus = domain.StatusActive
	rec.IsFollowUpActive = true
	store := newFakeStore(rec)
	bus := &captureBus{}
	svc := newTestService(store, nil, bus)

	resp, err := svc.RecordAttempt(context.Background(), admin, "CHN-1", transport.RecordAttemptRequest{
		Response: "NoResponse",
		Notes:    "rang twice, no answer",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(resp.CallAttempts) != 1 || resp.CallAttempts[0].CallNumber != 1 {
		t.Fatalf("attempts = %+v", resp.CallAttempts)
	}
	if resp.FollowUpStatus != string(domain.StatusInactive) {
		t.Fatalf("status = %s, want INACTIVE between attempts", resp.FollowUpStatus)
	}
	if got := bus.named("churn.reminder.scheduled"); len(got) != 1 {
		t.Fatalf("reminder events = %d, want 1", len(got))
	}

	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if len(stored.Attempts) != 1 {
		t.Fatalf("stored attempts = %d", len(stored.Attempts))
	}
}

func TestRecordAttemptRejectsBadResponse(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	svc := newTestService(store, nil, nil)

	_, err := svc.RecordAttempt(context.Background(), admin, "CHN-1", transport.RecordAttemptRequest{Response: "Voicemail"})
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
	if store.updateCalls != 0 {
		t.Fatal("invalid attempt reached the store")
	}
}

func TestListScopesAndCategorizes(t *testing.T) {
	r1 := record("CHN-1", "ravi.kumar")
	r1.Reason = "Permanently Closed"
	r2 := record("CHN-2", "ravi.kumar")
	r3 := record("CHN-3", "priya.nair")
	store := newFakeStore(r1, r2, r3)
	roster := &fakeRoster{teams: map[string][]string{"lead.north": {"ravi.kumar"}}}
	svc := newTestService(store, roster, nil)

	lead := domain.Caller{KAM: "lead.north", Role: domain.RoleTeamLead}
	resp, err := svc.List(context.Background(), lead, ListQuery{})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Total != 2 || resp.Summary.Total != 2 {
		t.Fatalf("total = %d summary=%+v, want team records only", resp.Total, resp.Summary)
	}
	if resp.Summary.Completed != 1 || resp.Summary.New != 1 {
		t.Fatalf("summary = %+v", resp.Summary)
	}

	sum := resp.Summary.New + resp.Summary.Overdue + resp.Summary.FollowUps + resp.Summary.Completed + resp.Summary.Invalid
	if sum != resp.Summary.Total {
		t.Fatalf("partition broken: %+v", resp.Summary)
	}
}

func TestListHealsDriftedRecordsInPlace(t *testing.T) {
	drifted := record("CHN-1", "ravi.kumar")
	drifted.Reason = "Switched to Another POS"
	drifted.FollowUpStatus = domain.StatusActive
	store := newFakeStore(drifted)
	svc := newTestService(store, nil, nil)

	resp, err := svc.List(context.Background(), admin, ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Items[0].FollowUpStatus != string(domain.StatusCompleted) {
		t.Fatalf("listed status = %s, want healed COMPLETED", resp.Items[0].FollowUpStatus)
	}

	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if stored.FollowUpStatus != domain.StatusCompleted {
		t.Fatalf("heal not persisted: %s", stored.FollowUpStatus)
	}
}

func TestListBucketFilterMatchesSummary(t *testing.T) {
	r1 := record("CHN-1", "ravi.kumar")
	r1.Reason = "Ownership Transfer"
	r2 := record("CHN-2", "ravi.kumar")
	store := newFakeStore(r1, r2)
	svc := newTestService(store, nil, nil)

	resp, err := svc.List(context.Background(), admin, ListQuery{Filter: "completed"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != resp.Summary.Completed {
		t.Fatalf("filtered total %d != summary.Completed %d", resp.Total, resp.Summary.Completed)
	}

	if _, err := svc.List(context.Background(), admin, ListQuery{Filter: "everything"}); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("unknown filter err = %v, want InvalidInput", err)
	}
}

func TestListFailsClosedForUnknownRole(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	svc := newTestService(store, nil, nil)

	resp, err := svc.List(context.Background(), domain.Caller{KAM: "x", Role: "auditor"}, ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || len(resp.Items) != 0 {
		t.Fatalf("unknown role saw %d records", resp.Total)
	}
}

func TestListFailsClosedForTeamLeadWithoutTeam(t *testing.T) {
	store := newFakeStore(record("CHN-1", "ravi.kumar"))
	svc := newTestService(store, &fakeRoster{}, nil)

	lead := domain.Caller{KAM: "lead.alone", Role: domain.RoleTeamLead}
	resp, err := svc.List(context.Background(), lead, ListQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Fatalf("team lead without team saw %d records", resp.Total)
	}
}

func TestGetStatusRederivesActive(t *testing.T) {
	rec := record("CHN-1", "ravi.kumar")
	due := testNow.Add(-time.Minute)
	rec.NextReminderTime = &due
	store := newFakeStore(rec)
	svc := newTestService(store, nil, nil)

	resp, err := svc.GetStatus(context.Background(), admin, "CHN-1")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsActive {
		t.Fatal("elapsed reminder must read as active")
	}
	if resp.FollowUpStatus != string(domain.StatusInactive) {
		t.Fatalf("stored status leaked as %s", resp.FollowUpStatus)
	}
}

func TestListActiveAndOverdue(t *testing.T) {
	active := record("CHN-1", "ravi.kumar")
	active.FollowUpStatus = domain.StatusActive

	overdue := record("CHN-2", "ravi.kumar")
	due := testNow.Add(-time.Hour)
	overdue.NextReminderTime = &due

	waiting := record("CHN-3", "ravi.kumar")
	future := testNow.Add(time.Hour)
	waiting.NextReminderTime = &future

	done := record("CHN-4", "ravi.kumar")
	done.FollowUpStatus = domain.StatusCompleted

	store := newFakeStore(active, overdue, waiting, done)
	svc := newTestService(store, nil, nil)

	gotActive, err := svc.ListActive(context.Background(), admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotActive) != 2 {
		t.Fatalf("active = %d, want stored-ACTIVE plus elapsed reminder", len(gotActive))
	}

	gotOverdue, err := svc.ListOverdue(context.Background(), admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotOverdue) != 1 || gotOverdue[0].RID != "CHN-2" {
		t.Fatalf("overdue = %+v", gotOverdue)
	}
}

func TestImportClassifiesAndSkipsDuplicates(t *testing.T) {
	existing := record("CHN-1", "ravi.kumar")
	store := newFakeStore(existing)
	bus := &captureBus{}
	svc := newTestService(store, nil, bus)

	resp, err := svc.Import(context.Background(), transport.ImportRequest{Records: []transport.ImportRecord{
		{RID: "CHN-1", KAM: "ravi.kumar", AccountName: "Dup"},
		{RID: "CHN-2", KAM: "priya.nair", AccountName: "Fresh", Reason: ""},
		{RID: "CHN-3", KAM: "priya.nair", AccountName: "Closed", Reason: "Permanently Closed"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Inserted != 2 || resp.Skipped != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	fresh, _ := store.GetByRID(context.Background(), "CHN-2")
	if fresh.FollowUpStatus != domain.StatusActive || fresh.NextReminderTime == nil {
		t.Fatalf("blank-reason import not activated: %+v", fresh)
	}

	closed, _ := store.GetByRID(context.Background(), "CHN-3")
	if closed.FollowUpStatus != domain.StatusCompleted {
		t.Fatalf("terminal-reason import not completed: %s", closed.FollowUpStatus)
	}

	if got := bus.named("churn.records.imported"); len(got) != 1 {
		t.Fatalf("import events = %d", len(got))
	}
	if got := bus.named("churn.reminder.scheduled"); len(got) != 1 {
		t.Fatalf("reminder events = %d, want 1 for the activated import", len(got))
	}
}

func TestHealAllIdempotent(t *testing.T) {
	r1 := record("CHN-1", "ravi.kumar")
	r1.Reason = "Demo Account"
	r2 := record("CHN-2", "ravi.kumar")
	r2.Attempts = []domain.CallAttempt{{CallNumber: 1}, {CallNumber: 2}, {CallNumber: 3}}
	r3 := record("CHN-3", "priya.nair")
	store := newFakeStore(r1, r2, r3)
	svc := newTestService(store, nil, nil)

	first, err := svc.HealAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first.Corrected != 2 || first.Scanned != 3 {
		t.Fatalf("first sweep = %+v", first)
	}

	second, err := svc.HealAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Corrected != 0 {
		t.Fatalf("second sweep corrected %d, want 0", second.Corrected)
	}
}

func TestActivateDueRecord(t *testing.T) {
	rec := record("CHN-1", "ravi.kumar")
	due := testNow.Add(-time.Minute)
	rec.NextReminderTime = &due
	store := newFakeStore(rec)
	bus := &captureBus{}
	svc := newTestService(store, nil, bus)

	if err := svc.ActivateDueRecord(context.Background(), "CHN-1"); err != nil {
		t.Fatal(err)
	}

	stored, _ := store.GetByRID(context.Background(), "CHN-1")
	if stored.FollowUpStatus != domain.StatusActive || stored.NextReminderTime != nil {
		t.Fatalf("flip not persisted: %+v", stored)
	}
	if got := bus.named("churn.followup.activated"); len(got) != 1 {
		t.Fatalf("activation events = %d", len(got))
	}

	// Not due anymore; a second fire is a no-op.
	if err := svc.ActivateDueRecord(context.Background(), "CHN-1"); err != nil {
		t.Fatal(err)
	}
}

func TestProcessDueReminders(t *testing.T) {
	due1 := record("CHN-1", "ravi.kumar")
	past := testNow.Add(-time.Hour)
	due1.NextReminderTime = &past
	due2 := record("CHN-2", "ravi.kumar")
	past2 := testNow.Add(-2 * time.Hour)
	due2.NextReminderTime = &past2
	waiting := record("CHN-3", "ravi.kumar")
	future := testNow.Add(time.Hour)
	waiting.NextReminderTime = &future
	store := newFakeStore(due1, due2, waiting)
	svc := newTestService(store, nil, nil)

	activated, err := svc.ProcessDueReminders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if activated != 2 {
		t.Fatalf("activated = %d, want 2", activated)
	}

	still, _ := store.GetByRID(context.Background(), "CHN-3")
	if still.FollowUpStatus != domain.StatusInactive {
		t.Fatalf("future reminder flipped early: %s", still.FollowUpStatus)
	}
}
