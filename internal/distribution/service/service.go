// Package service implements the rotation engine: the serialization point
// for a unit's queue and the orchestration of log append and CRM push.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salesops_backend/internal/distribution/domain"
	"salesops_backend/internal/distribution/ports"
	"salesops_backend/internal/distribution/repository"
	"salesops_backend/internal/distribution/transport"
	"salesops_backend/internal/events"
	"salesops_backend/platform/apperr"
	"salesops_backend/platform/logger"
)

// Warning codes attached to partially successful assignments.
const (
	WarnAuditWriteFailed = "audit_write_failed"
	WarnCRMSyncFailed    = "crm_sync_failed"
)

const crmRetryDelay = 30 * time.Second

// Service is the rotation engine. All writes to a unit's queue go through
// its per-unit lock, whether they come from rotation or queue administration.
type Service struct {
	repo      repository.Repository
	bus       events.Bus
	log       *logger.Logger
	locks     *unitLocks
	crm       ports.CRMSync
	scheduler ports.SyncScheduler
	now       func() time.Time
}

// New creates the rotation engine.
func New(repo repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		bus:   bus,
		log:   log,
		locks: newUnitLocks(),
		now:   time.Now,
	}
}

// SetCRM injects the CRM sync adapter. Wired by the composition root to
// break the cycle between distribution and crm.
func (s *Service) SetCRM(crm ports.CRMSync) {
	s.crm = crm
}

// SetScheduler injects the deferred-sync scheduler. Optional: without it,
// failed pushes are not retried.
func (s *Service) SetScheduler(sched ports.SyncScheduler) {
	s.scheduler = sched
}

// =============================================================================
// Assignment
// =============================================================================

// AssignLead selects and advances the next eligible vendor for the unit and
// pushes the assignment to the CRM. The critical section covers exactly one
// read-modify-write of the queue; the CRM round trips happen outside it so a
// slow CRM cannot serialize a unit's leads behind one call.
func (s *Service) AssignLead(ctx context.Context, unitID uuid.UUID, leadID string) (transport.AssignmentResponse, error) {
	unlock := s.locks.Lock(unitID)

	unit, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		unlock()
		return transport.AssignmentResponse{}, err
	}

	queue, err := s.repo.GetQueue(ctx, unitID)
	if err != nil {
		unlock()
		return transport.AssignmentResponse{}, err
	}

	now := s.now()

	if !queue.Active || len(queue.Entries) == 0 {
		unlock()
		return transport.AssignmentResponse{}, apperr.NotFound("unit has no active lead queue").
			WithCode("no_queue_configured")
	}

	selected, ok := domain.SelectNext(queue.Entries, now)
	if !ok {
		unlock()
		return transport.AssignmentResponse{}, apperr.Conflict("all vendors in the queue are absent").
			WithCode("no_eligible_vendor")
	}

	rotated := domain.Rotate(queue.Entries, selected.ID)
	if _, err := s.repo.ReplaceEntries(ctx, unitID, rotated); err != nil {
		unlock()
		return transport.AssignmentResponse{}, apperr.Wrap(apperr.KindInternal, "failed to persist rotation", err)
	}

	unlock()

	// Rotation is committed. Everything from here on is surfaced as a
	// warning, never rolled back: undoing the advancement would double-skip
	// the next vendor.
	var warnings []string
	queueSize := len(queue.Entries)

	// Read-only before-fetch so the audit record can carry the previous
	// owner. The mutating push happens only after the log is written.
	fetch, fetchErr := s.fetchBefore(ctx, leadID)

	logEntry := domain.LogEntry{
		ID:              uuid.New(),
		UnitID:          unitID,
		VendorID:        selected.VendorID,
		LeadID:          nullable(leadID),
		PositionInQueue: selected.Sequence,
		QueueSize:       queueSize,
		PreviousOwnerID: nullable(fetch.OwnerID),
		DistributedAt:   now,
	}
	if err := s.repo.AppendLog(ctx, logEntry); err != nil {
		warnings = append(warnings, WarnAuditWriteFailed)
		s.log.Error("distribution log append failed", "unit_id", unitID, "vendor_id", selected.VendorID, "error", err)
	}

	crmResult := s.pushToCRM(ctx, unitID, selected.VendorID, leadID, fetch, fetchErr)
	if !crmResult.Skipped && !crmResult.Synced {
		warnings = append(warnings, WarnCRMSyncFailed)
		s.log.CRMSyncFailure("assignment", unitID.String(), errCRM(crmResult.Reason))
		s.scheduleRetry(ctx, unitID, selected.VendorID, leadID)
	}

	s.log.Distribution(unitID.String(), selected.VendorID.String(), leadID, selected.Sequence, queueSize, crmResult.Synced)

	s.bus.Publish(ctx, events.LeadDistributed{
		BaseEvent:  events.NewBaseEvent(),
		UnitID:     unitID,
		UnitName:   unit.Name,
		VendorID:   selected.VendorID,
		VendorName: selected.DisplayName,
		LeadID:     leadID,
		Position:   selected.Sequence,
		QueueSize:  queueSize,
		CRMSynced:  crmResult.Skipped || crmResult.Synced,
		CRMError:   crmResult.Reason,
	})

	return transport.AssignmentResponse{
		Success: true,
		Unit: transport.UnitSummary{
			ID:                   unit.ID,
			Name:                 unit.Name,
			ExternalDepartmentID: unit.ExternalDepartmentID,
		},
		LeadID: leadID,
		AssignedVendor: transport.VendorSummary{
			ID:   selected.VendorID,
			Name: selected.DisplayName,
		},
		PositionInQueue:  selected.Sequence,
		QueueSize:        queueSize,
		DepartmentAccess: crmResult.DepartmentAccess,
		LeadUpdated:      crmResult.LeadUpdated,
		LeadBefore:       fetch.State,
		LeadAfter:        crmResult.After,
		CRM: transport.CRMResult{
			Success: crmResult.Synced,
			Skipped: crmResult.Skipped,
			Error:   crmResult.Reason,
		},
		Warnings: warnings,
	}, nil
}

// fetchBefore reads the lead's CRM state ahead of the push. Tolerant: a
// fetch failure yields an empty snapshot, never an aborted assignment.
func (s *Service) fetchBefore(ctx context.Context, leadID string) (ports.LeadFetch, error) {
	if s.crm == nil || leadID == "" {
		return ports.LeadFetch{}, nil
	}
	return s.crm.FetchLead(ctx, leadID)
}

// pushToCRM issues the ownership push. A failed before-fetch folds into the
// result as a sync failure; the push itself needs the before snapshot for
// its idempotency check.
func (s *Service) pushToCRM(ctx context.Context, unitID, vendorID uuid.UUID, leadID string, fetch ports.LeadFetch, fetchErr error) ports.AssignResult {
	if s.crm == nil || leadID == "" {
		return ports.AssignResult{Skipped: true}
	}
	if fetchErr != nil {
		return ports.AssignResult{Reason: fetchErr.Error()}
	}
	return s.crm.PushAssignment(ctx, unitID, vendorID, leadID, fetch.State)
}

func (s *Service) scheduleRetry(ctx context.Context, unitID, vendorID uuid.UUID, leadID string) {
	if s.scheduler == nil || leadID == "" {
		return
	}
	if err := s.scheduler.ScheduleAssignmentRetry(ctx, unitID, vendorID, leadID, crmRetryDelay); err != nil {
		s.log.Error("failed to schedule crm assignment retry", "unit_id", unitID, "error", err)
	}
}

// =============================================================================
// Queue administration
// =============================================================================

// GetQueue returns the unit's rotation with computed stats.
func (s *Service) GetQueue(ctx context.Context, unitID uuid.UUID) (transport.QueueResponse, error) {
	queue, err := s.repo.GetQueue(ctx, unitID)
	if err != nil {
		return transport.QueueResponse{}, err
	}

	last, err := s.repo.LastDistribution(ctx, unitID)
	if err != nil {
		return transport.QueueResponse{}, err
	}

	return toQueueResponse(queue, last, s.now()), nil
}

// ReplaceQueue replaces the full ordered entry list. Existing entries
// referenced by id keep their counters and absence windows; order in the
// request is authoritative.
func (s *Service) ReplaceQueue(ctx context.Context, unitID uuid.UUID, req transport.ReplaceQueueRequest) (transport.QueueResponse, error) {
	unlock := s.locks.Lock(unitID)

	current, err := s.repo.GetQueue(ctx, unitID)
	if err != nil {
		unlock()
		return transport.QueueResponse{}, err
	}

	existing := make(map[uuid.UUID]domain.QueueEntry, len(current.Entries))
	for _, e := range current.Entries {
		existing[e.ID] = e
	}

	entries := make([]domain.QueueEntry, 0, len(req.Entries))
	for _, item := range req.Entries {
		if item.EntryID != nil {
			if prev, ok := existing[*item.EntryID]; ok {
				prev.VendorID = item.VendorID
				entries = append(entries, prev)
				continue
			}
		}
		entries = append(entries, domain.QueueEntry{VendorID: item.VendorID})
	}

	persisted, err := s.repo.ReplaceEntries(ctx, unitID, entries)
	unlock()
	if err != nil {
		return transport.QueueResponse{}, err
	}

	s.log.Info("queue replaced", "unit_id", unitID, "entries", len(persisted))
	s.notifyMembershipChanged(ctx, unitID)

	return s.GetQueue(ctx, unitID)
}

// AddVendor appends a vendor at the tail of the rotation.
func (s *Service) AddVendor(ctx context.Context, unitID, vendorID uuid.UUID) (transport.QueueEntryResponse, error) {
	unlock := s.locks.Lock(unitID)
	entry, err := s.repo.AddVendor(ctx, unitID, vendorID)
	unlock()
	if err != nil {
		return transport.QueueEntryResponse{}, err
	}

	s.log.Info("vendor added to queue", "unit_id", unitID, "vendor_id", vendorID, "sequence", entry.Sequence)
	s.notifyMembershipChanged(ctx, unitID)

	return toEntryResponse(entry, s.now()), nil
}

// RemoveEntry removes one queue position and closes the gap.
func (s *Service) RemoveEntry(ctx context.Context, unitID, entryID uuid.UUID) error {
	unlock := s.locks.Lock(unitID)
	err := s.repo.RemoveEntry(ctx, unitID, entryID)
	unlock()
	if err != nil {
		return err
	}

	s.log.Info("queue entry removed", "unit_id", unitID, "entry_id", entryID)
	s.notifyMembershipChanged(ctx, unitID)

	return nil
}

// RemoveVendorEntries drops every entry a vendor holds in the unit's queue.
// Called when the vendor leaves the unit; it takes the same per-unit lock as
// assignment, so an in-flight rotation can never write the departed vendor's
// entries back. The membership event is published by the caller that owns the
// membership mutation.
func (s *Service) RemoveVendorEntries(ctx context.Context, unitID, vendorID uuid.UUID) error {
	unlock := s.locks.Lock(unitID)
	err := s.repo.RemoveVendorEntries(ctx, unitID, vendorID)
	unlock()
	if err != nil {
		return err
	}

	s.log.Info("vendor entries removed from queue", "unit_id", unitID, "vendor_id", vendorID)
	return nil
}

// RecordAbsence registers the vendor's return timestamp. The vendor keeps
// their queue position and is skipped until the window expires.
func (s *Service) RecordAbsence(ctx context.Context, unitID, vendorID uuid.UUID, returnAt time.Time) error {
	if !returnAt.After(s.now()) {
		return apperr.Validation("returnAt must be in the future")
	}

	unlock := s.locks.Lock(unitID)
	err := s.repo.RecordAbsence(ctx, unitID, vendorID, returnAt)
	unlock()
	if err != nil {
		return err
	}

	s.log.Info("absence recorded", "unit_id", unitID, "vendor_id", vendorID, "return_at", returnAt)
	s.bus.Publish(ctx, events.AbsenceRecorded{
		BaseEvent: events.NewBaseEvent(),
		UnitID:    unitID,
		VendorID:  vendorID,
	})
	s.notifyMembershipChanged(ctx, unitID)

	return nil
}

// EligibleVendorIDs exposes the current eligible set for the CRM membership
// sync, in rotation order.
func (s *Service) EligibleVendorIDs(ctx context.Context, unitID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.EligibleVendorIDs(ctx, unitID, s.now())
}

// =============================================================================
// Distribution log
// =============================================================================

// ListLogs reads audit records newest first.
func (s *Service) ListLogs(ctx context.Context, unitID uuid.UUID, limit int, before *time.Time) (transport.LogListResponse, error) {
	entries, err := s.repo.ListLogs(ctx, unitID, limit, before)
	if err != nil {
		return transport.LogListResponse{}, err
	}

	resp := transport.LogListResponse{Entries: make([]transport.LogEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, transport.LogEntryResponse{
			ID:              e.ID,
			UnitID:          e.UnitID,
			VendorID:        e.VendorID,
			VendorName:      e.VendorName,
			LeadID:          e.LeadID,
			PositionInQueue: e.PositionInQueue,
			QueueSize:       e.QueueSize,
			PreviousOwnerID: e.PreviousOwnerID,
			DistributedAt:   e.DistributedAt,
		})
	}

	if len(entries) > 0 && limit > 0 && len(entries) == limit {
		cursor := entries[len(entries)-1].DistributedAt
		resp.NextCursor = &cursor
	}

	return resp, nil
}

// ClearLogs removes all audit records for a unit.
func (s *Service) ClearLogs(ctx context.Context, unitID uuid.UUID) (transport.ClearLogsResponse, error) {
	removed, err := s.repo.ClearLogs(ctx, unitID)
	if err != nil {
		return transport.ClearLogsResponse{}, err
	}

	s.log.Info("distribution logs cleared", "unit_id", unitID, "removed", removed)
	return transport.ClearLogsResponse{Removed: removed}, nil
}

// =============================================================================
// Helpers
// =============================================================================

// notifyMembershipChanged announces a membership mutation. The CRM adapter
// subscribes and resyncs the external rotation; a sync failure never rolls
// back the local write.
func (s *Service) notifyMembershipChanged(ctx context.Context, unitID uuid.UUID) {
	s.bus.Publish(ctx, events.QueueMembershipChanged{
		BaseEvent: events.NewBaseEvent(),
		UnitID:    unitID,
	})
}

func toQueueResponse(queue domain.UnitQueue, last *domain.LogEntry, now time.Time) transport.QueueResponse {
	resp := transport.QueueResponse{
		UnitID:  queue.UnitID,
		Active:  queue.Active,
		Entries: make([]transport.QueueEntryResponse, 0, len(queue.Entries)),
	}

	for _, e := range queue.Entries {
		resp.TotalDistributions += e.TotalDistributions
		resp.Entries = append(resp.Entries, toEntryResponse(e, now))
	}

	if last != nil {
		resp.LastDistribution = &transport.LastDistribution{
			VendorID:      last.VendorID,
			VendorName:    last.VendorName,
			LeadID:        last.LeadID,
			QueueSize:     last.QueueSize,
			DistributedAt: last.DistributedAt,
		}
	}

	return resp
}

func toEntryResponse(e domain.QueueEntry, now time.Time) transport.QueueEntryResponse {
	return transport.QueueEntryResponse{
		ID:                 e.ID,
		VendorID:           e.VendorID,
		Name:               e.DisplayName,
		Sequence:           e.Sequence,
		TotalDistributions: e.TotalDistributions,
		AbsenceReturnAt:    e.AbsenceReturnAt,
		Absent:             !e.EligibleAt(now),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type crmError string

func (e crmError) Error() string { return string(e) }

func errCRM(reason string) error { return crmError(reason) }
