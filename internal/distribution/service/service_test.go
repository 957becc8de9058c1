package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"salesops_backend/internal/distribution/domain"
	"salesops_backend/internal/distribution/ports"
	"salesops_backend/internal/distribution/transport"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/events"
	"salesops_backend/platform/logger"
)

// fakeRepo is an in-memory Repository good enough for exercising the
// rotation engine without Postgres. Like the real store, ReplaceEntries
// refuses entries for vendors that are no longer members.
type fakeRepo struct {
	mu        sync.Mutex
	unit      domain.Unit
	queue     domain.UnitQueue
	members   map[uuid.UUID]bool
	logs      []domain.LogEntry
	appendErr error
}

func newFakeRepo(active bool, vendorNames ...string) *fakeRepo {
	unitID := uuid.New()
	entries := make([]domain.QueueEntry, len(vendorNames))
	members := make(map[uuid.UUID]bool, len(vendorNames))
	for i, name := range vendorNames {
		entries[i] = domain.QueueEntry{
			ID:          uuid.New(),
			VendorID:    uuid.New(),
			DisplayName: name,
			Sequence:    i + 1,
		}
		members[entries[i].VendorID] = true
	}
	return &fakeRepo{
		unit:    domain.Unit{ID: unitID, Name: "Unidade Centro", ExternalDepartmentID: "77", Active: active},
		queue:   domain.UnitQueue{UnitID: unitID, Active: active, Entries: entries},
		members: members,
	}
}

func (f *fakeRepo) addMember(vendorID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[vendorID] = true
}

func (f *fakeRepo) GetUnit(_ context.Context, unitID uuid.UUID) (domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if unitID != f.unit.ID {
		return domain.Unit{}, apperr.NotFound("unit not found")
	}
	return f.unit, nil
}

func (f *fakeRepo) GetQueue(_ context.Context, unitID uuid.UUID) (domain.UnitQueue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if unitID != f.unit.ID {
		return domain.UnitQueue{}, apperr.NotFound("unit not found")
	}
	out := f.queue
	out.Entries = append([]domain.QueueEntry(nil), f.queue.Entries...)
	return out, nil
}

func (f *fakeRepo) ReplaceEntries(_ context.Context, unitID uuid.UUID, entries []domain.QueueEntry) ([]domain.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		if !f.members[e.VendorID] {
			return nil, apperr.Validation("vendor is not a member of this unit").
				WithCode("vendor_not_member")
		}
	}
	renumbered := domain.Renumber(entries)
	for i := range renumbered {
		if renumbered[i].ID == uuid.Nil {
			renumbered[i].ID = uuid.New()
		}
	}
	f.queue.Entries = append([]domain.QueueEntry(nil), renumbered...)
	return renumbered, nil
}

func (f *fakeRepo) AddVendor(_ context.Context, unitID, vendorID uuid.UUID) (domain.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := domain.QueueEntry{ID: uuid.New(), VendorID: vendorID, Sequence: len(f.queue.Entries) + 1}
	f.queue.Entries = append(f.queue.Entries, entry)
	return entry, nil
}

func (f *fakeRepo) RemoveEntry(_ context.Context, unitID, entryID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.queue.Entries {
		if e.ID == entryID {
			f.queue.Entries = domain.Renumber(append(f.queue.Entries[:i], f.queue.Entries[i+1:]...))
			return nil
		}
	}
	return apperr.NotFound("queue entry not found")
}

func (f *fakeRepo) RemoveVendorEntries(_ context.Context, unitID, vendorID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.queue.Entries[:0]
	for _, e := range f.queue.Entries {
		if e.VendorID != vendorID {
			kept = append(kept, e)
		}
	}
	f.queue.Entries = domain.Renumber(kept)
	delete(f.members, vendorID)
	return nil
}

func (f *fakeRepo) RecordAbsence(_ context.Context, unitID, vendorID uuid.UUID, returnAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for i, e := range f.queue.Entries {
		if e.VendorID == vendorID {
			t := returnAt
			f.queue.Entries[i].AbsenceReturnAt = &t
			found = true
		}
	}
	if !found {
		return apperr.NotFound("vendor has no entry in this unit's queue")
	}
	return nil
}

func (f *fakeRepo) EligibleVendorIDs(_ context.Context, unitID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, e := range f.queue.Entries {
		if e.EligibleAt(now) && !seen[e.VendorID] {
			seen[e.VendorID] = true
			ids = append(ids, e.VendorID)
		}
	}
	return ids, nil
}

func (f *fakeRepo) AppendLog(_ context.Context, entry domain.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeRepo) ListLogs(_ context.Context, unitID uuid.UUID, limit int, before *time.Time) ([]domain.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < 1 {
		limit = 50
	}
	sorted := append([]domain.LogEntry(nil), f.logs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DistributedAt.After(sorted[j].DistributedAt) })
	var out []domain.LogEntry
	for _, e := range sorted {
		if before != nil && !e.DistributedAt.Before(*before) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) LastDistribution(ctx context.Context, unitID uuid.UUID) (*domain.LogEntry, error) {
	entries, err := f.ListLogs(ctx, unitID, 1, nil)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (f *fakeRepo) ClearLogs(_ context.Context, unitID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.logs))
	f.logs = nil
	return n, nil
}

type stubCRM struct {
	mu      sync.Mutex
	fetch   ports.LeadFetch
	fetchErr error
	result  ports.AssignResult
	pushes  int
}

func (s *stubCRM) FetchLead(_ context.Context, _ string) (ports.LeadFetch, error) {
	return s.fetch, s.fetchErr
}

func (s *stubCRM) PushAssignment(_ context.Context, _, _ uuid.UUID, _ string, _ ports.LeadState) ports.AssignResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	return s.result
}

func (s *stubCRM) SyncMembership(_ context.Context, _ uuid.UUID) error { return nil }

type stubScheduler struct {
	mu      sync.Mutex
	retries int
}

func (s *stubScheduler) ScheduleMembershipSync(_ context.Context, _ uuid.UUID) error { return nil }

func (s *stubScheduler) ScheduleAssignmentRetry(_ context.Context, _, _ uuid.UUID, _ string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	log := logger.New("test")
	return New(repo, events.NewInMemoryBus(log), log)
}

func TestAssignLead_RotatesLogsAndResponds(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2", "v3")
	svc := newTestService(repo)
	svc.SetCRM(&stubCRM{
		fetch: ports.LeadFetch{State: ports.LeadState{"owner_id": "900"}, OwnerID: "900"},
		result: ports.AssignResult{
			Synced:           true,
			LeadUpdated:      true,
			DepartmentAccess: []string{"42"},
			After:            ports.LeadState{"owner_id": "42"},
		},
	})

	resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.AssignedVendor.Name != "v1" {
		t.Fatalf("expected v1 assigned, got %s", resp.AssignedVendor.Name)
	}
	if resp.PositionInQueue != 1 || resp.QueueSize != 3 {
		t.Fatalf("expected position 1 of 3, got %d of %d", resp.PositionInQueue, resp.QueueSize)
	}
	if !resp.CRM.Success || !resp.LeadUpdated {
		t.Fatalf("expected crm success, got %+v", resp.CRM)
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", resp.Warnings)
	}

	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if queue.Entries[2].DisplayName != "v1" {
		t.Fatalf("expected v1 at tail after rotation, got %s", queue.Entries[2].DisplayName)
	}
	if queue.Entries[2].TotalDistributions != 1 {
		t.Fatalf("expected counter 1, got %d", queue.Entries[2].TotalDistributions)
	}
	if !domain.HasDenseSequences(queue.Entries) {
		t.Fatalf("dense sequence invariant broken: %v", queue.Entries)
	}

	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(repo.logs))
	}
	log := repo.logs[0]
	if log.PreviousOwnerID == nil || *log.PreviousOwnerID != "900" {
		t.Fatalf("expected previous owner 900, got %v", log.PreviousOwnerID)
	}
	if log.PositionInQueue != 1 || log.QueueSize != 3 {
		t.Fatalf("expected log position 1 of 3, got %d of %d", log.PositionInQueue, log.QueueSize)
	}
}

func TestAssignLead_NoQueueConfigured(t *testing.T) {
	repo := newFakeRepo(true)
	svc := newTestService(repo)

	_, err := svc.AssignLead(context.Background(), repo.unit.ID, "1")
	if err == nil {
		t.Fatal("expected error for empty queue")
	}
	if apperr.GetCode(err) != "no_queue_configured" {
		t.Fatalf("expected no_queue_configured, got %q", apperr.GetCode(err))
	}
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not-found kind, got %v", apperr.GetKind(err))
	}
}

func TestAssignLead_InactiveUnit(t *testing.T) {
	repo := newFakeRepo(false, "v1")
	svc := newTestService(repo)

	_, err := svc.AssignLead(context.Background(), repo.unit.ID, "1")
	if apperr.GetCode(err) != "no_queue_configured" {
		t.Fatalf("expected no_queue_configured for inactive unit, got %v", err)
	}
}

func TestAssignLead_NoEligibleVendor(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2")
	returnAt := time.Now().Add(time.Hour)
	for i := range repo.queue.Entries {
		repo.queue.Entries[i].AbsenceReturnAt = &returnAt
	}
	svc := newTestService(repo)

	_, err := svc.AssignLead(context.Background(), repo.unit.ID, "1")
	if apperr.GetCode(err) != "no_eligible_vendor" {
		t.Fatalf("expected no_eligible_vendor, got %v", err)
	}
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict kind, got %v", apperr.GetKind(err))
	}

	// A refused assignment must not advance the rotation.
	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if queue.Entries[0].DisplayName != "v1" || queue.Entries[0].TotalDistributions != 0 {
		t.Fatalf("expected untouched queue, got %+v", queue.Entries)
	}
}

func TestAssignLead_CRMFailureIsWarningNotError(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2")
	svc := newTestService(repo)
	svc.SetCRM(&stubCRM{result: ports.AssignResult{Reason: "crm returned 502"}})
	sched := &stubScheduler{}
	svc.SetScheduler(sched)

	resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !resp.Success {
		t.Fatal("local assignment must succeed despite crm failure")
	}
	if resp.CRM.Success {
		t.Fatal("expected crm failure in response")
	}
	if resp.CRM.Error != "crm returned 502" {
		t.Fatalf("expected crm error surfaced, got %q", resp.CRM.Error)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != WarnCRMSyncFailed {
		t.Fatalf("expected [%s], got %v", WarnCRMSyncFailed, resp.Warnings)
	}
	if sched.retries != 1 {
		t.Fatalf("expected 1 scheduled retry, got %d", sched.retries)
	}

	// The rotation advanced; the log recorded the assignment.
	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if queue.Entries[0].DisplayName != "v2" {
		t.Fatalf("expected rotation advanced, head is %s", queue.Entries[0].DisplayName)
	}
	if len(repo.logs) != 1 {
		t.Fatalf("expected log entry despite crm failure, got %d", len(repo.logs))
	}
}

func TestAssignLead_FetchFailureStillLogsWithoutPreviousOwner(t *testing.T) {
	repo := newFakeRepo(true, "v1")
	svc := newTestService(repo)
	crm := &stubCRM{fetchErr: errors.New("timeout")}
	svc.SetCRM(crm)

	resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.CRM.Success {
		t.Fatal("expected crm marked failed after fetch error")
	}
	if crm.pushes != 0 {
		t.Fatal("push must not run on a failed before-fetch")
	}
	if len(repo.logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(repo.logs))
	}
	if repo.logs[0].PreviousOwnerID != nil {
		t.Fatalf("expected no previous owner, got %v", *repo.logs[0].PreviousOwnerID)
	}
}

func TestAssignLead_LogFailureIsWarningNotError(t *testing.T) {
	repo := newFakeRepo(true, "v1")
	repo.appendErr = errors.New("disk full")
	svc := newTestService(repo)

	resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success despite audit failure")
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != WarnAuditWriteFailed {
		t.Fatalf("expected [%s], got %v", WarnAuditWriteFailed, resp.Warnings)
	}
}

func TestAssignLead_NoCRMConfiguredSkipsPush(t *testing.T) {
	repo := newFakeRepo(true, "v1")
	svc := newTestService(repo)

	resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.CRM.Skipped {
		t.Fatal("expected skipped crm result without an adapter")
	}
	if len(resp.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", resp.Warnings)
	}
}

func TestAssignLead_ConcurrentAssignmentsStayFair(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2", "v3", "v4")
	svc := newTestService(repo)

	const rounds = 40
	var wg sync.WaitGroup
	results := make(chan uuid.UUID, rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.AssignLead(context.Background(), repo.unit.ID, "")
			if err != nil {
				t.Errorf("assign failed: %v", err)
				return
			}
			results <- resp.AssignedVendor.ID
		}()
	}
	wg.Wait()
	close(results)

	counts := make(map[uuid.UUID]int)
	for id := range results {
		counts[id]++
	}
	if len(counts) != 4 {
		t.Fatalf("expected all 4 vendors assigned, got %d", len(counts))
	}
	for id, n := range counts {
		if n != 10 {
			t.Fatalf("expected 10 assignments per vendor, vendor %s got %d", id, n)
		}
	}

	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if !domain.HasDenseSequences(queue.Entries) {
		t.Fatalf("dense sequence invariant broken: %v", queue.Entries)
	}
	total := 0
	for _, e := range queue.Entries {
		total += e.TotalDistributions
	}
	if total != rounds {
		t.Fatalf("expected %d total distributions, got %d", rounds, total)
	}
}

func TestRemoveVendorEntries_DropsAllEntriesAndRenumbers(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2", "v3")
	// v2 also holds a second, weighted slot.
	v2 := repo.queue.Entries[1]
	repo.queue.Entries = append(repo.queue.Entries, domain.QueueEntry{
		ID: uuid.New(), VendorID: v2.VendorID, DisplayName: "v2", Sequence: 4,
	})
	svc := newTestService(repo)

	if err := svc.RemoveVendorEntries(context.Background(), repo.unit.ID, v2.VendorID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if len(queue.Entries) != 2 {
		t.Fatalf("expected 2 entries after removal, got %d", len(queue.Entries))
	}
	for _, e := range queue.Entries {
		if e.VendorID == v2.VendorID {
			t.Fatalf("expected all of v2's entries gone, found %+v", e)
		}
	}
	if !domain.HasDenseSequences(queue.Entries) {
		t.Fatalf("dense sequence invariant broken: %v", queue.Entries)
	}
}

func TestRemoveVendorEntries_SerializesWithAssignment(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2", "v3")
	removed := repo.queue.Entries[1].VendorID
	svc := newTestService(repo)

	// Membership removal must wait for the unit lock: an assignment that
	// already read the queue would otherwise write the departed vendor's
	// entries back and trip the membership check.
	const rounds = 30
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AssignLead(context.Background(), repo.unit.ID, ""); err != nil {
				t.Errorf("assign failed during member removal: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.RemoveVendorEntries(context.Background(), repo.unit.ID, removed); err != nil {
			t.Errorf("remove vendor entries failed: %v", err)
		}
	}()
	wg.Wait()

	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if len(queue.Entries) != 2 {
		t.Fatalf("expected 2 entries after removal, got %d", len(queue.Entries))
	}
	for _, e := range queue.Entries {
		if e.VendorID == removed {
			t.Fatalf("expected removed vendor out of the queue, found %+v", e)
		}
	}
	if !domain.HasDenseSequences(queue.Entries) {
		t.Fatalf("dense sequence invariant broken: %v", queue.Entries)
	}
}

func TestRecordAbsence_RejectsPastReturn(t *testing.T) {
	repo := newFakeRepo(true, "v1")
	svc := newTestService(repo)

	err := svc.RecordAbsence(context.Background(), repo.unit.ID, repo.queue.Entries[0].VendorID, time.Now().Add(-time.Minute))
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReplaceQueue_PreservesCountersByEntryID(t *testing.T) {
	repo := newFakeRepo(true, "v1", "v2")
	repo.queue.Entries[0].TotalDistributions = 7
	svc := newTestService(repo)

	first := repo.queue.Entries[0]
	second := repo.queue.Entries[1]

	// Reverse the order, keep v1's entry id, add a fresh vendor.
	newVendor := uuid.New()
	repo.addMember(newVendor)
	_, err := svc.ReplaceQueue(context.Background(), repo.unit.ID, transport.ReplaceQueueRequest{
		Entries: []transport.ReplaceQueueEntry{
			{EntryID: &second.ID, VendorID: second.VendorID},
			{EntryID: &first.ID, VendorID: first.VendorID},
			{VendorID: newVendor},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	queue, _ := repo.GetQueue(context.Background(), repo.unit.ID)
	if len(queue.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(queue.Entries))
	}
	if queue.Entries[1].TotalDistributions != 7 {
		t.Fatalf("expected counter preserved through reorder, got %d", queue.Entries[1].TotalDistributions)
	}
	if queue.Entries[2].TotalDistributions != 0 {
		t.Fatalf("expected fresh entry counter 0, got %d", queue.Entries[2].TotalDistributions)
	}
	if !domain.HasDenseSequences(queue.Entries) {
		t.Fatalf("dense sequence invariant broken: %v", queue.Entries)
	}
}

func TestListLogs_CursorOnlyWhenPageFull(t *testing.T) {
	repo := newFakeRepo(true, "v1")
	base := time.Now()
	for i := 0; i < 3; i++ {
		repo.logs = append(repo.logs, domain.LogEntry{
			ID:            uuid.New(),
			UnitID:        repo.unit.ID,
			VendorID:      repo.queue.Entries[0].VendorID,
			DistributedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	svc := newTestService(repo)

	page, err := svc.ListLogs(context.Background(), repo.unit.ID, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Entries) != 2 || page.NextCursor == nil {
		t.Fatalf("expected full page with cursor, got %d entries cursor=%v", len(page.Entries), page.NextCursor)
	}
	if !page.Entries[0].DistributedAt.After(page.Entries[1].DistributedAt) {
		t.Fatal("expected newest-first ordering")
	}

	rest, err := svc.ListLogs(context.Background(), repo.unit.ID, 2, page.NextCursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest.Entries) != 1 || rest.NextCursor != nil {
		t.Fatalf("expected final partial page without cursor, got %d entries cursor=%v", len(rest.Entries), rest.NextCursor)
	}
}
