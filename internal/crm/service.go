package crm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"salesops_backend/internal/distribution/ports"
	"salesops_backend/internal/events"
	"salesops_backend/platform/logger"
)

// Directory resolves local entities to their external CRM identifiers.
// Implemented by the units service.
type Directory interface {
	UnitExternalDepartment(ctx context.Context, unitID uuid.UUID) (string, error)
	VendorExternalUser(ctx context.Context, vendorID uuid.UUID) (string, error)
}

// RotationSource yields a unit's currently eligible vendors in rotation
// order. Implemented by the distribution service.
type RotationSource interface {
	EligibleVendorIDs(ctx context.Context, unitID uuid.UUID) ([]uuid.UUID, error)
}

// Service implements the CRM sync port: assignment pushes with before/after
// snapshots, membership sync into the legacy rotation construct, and rotation
// teardown when a unit goes away.
type Service struct {
	client    *Client
	dir       Directory
	rotation  RotationSource
	scheduler ports.SyncScheduler
	log       *logger.Logger
}

// NewService creates the CRM sync adapter. A nil client disables every
// outbound call; pushes then report Skipped.
func NewService(client *Client, dir Directory, rotation RotationSource, log *logger.Logger) *Service {
	return &Service{
		client:   client,
		dir:      dir,
		rotation: rotation,
		log:      log,
	}
}

// SetScheduler routes membership syncs through the task queue instead of
// running them inline on the event handler goroutine.
func (s *Service) SetScheduler(sched ports.SyncScheduler) {
	s.scheduler = sched
}

// Enabled reports whether the CRM integration is configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// RegisterHandlers subscribes the adapter to the domain events that require
// an external sync.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.QueueMembershipChanged{}.EventName(), events.HandlerFunc(s.onMembershipChanged))
	bus.Subscribe(events.UnitDeleted{}.EventName(), events.HandlerFunc(s.onUnitDeleted))
}

func (s *Service) onMembershipChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QueueMembershipChanged)
	if !ok {
		return nil
	}
	if !s.Enabled() {
		return nil
	}

	if s.scheduler != nil {
		return s.scheduler.ScheduleMembershipSync(ctx, e.UnitID)
	}
	return s.SyncMembership(ctx, e.UnitID)
}

func (s *Service) onUnitDeleted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.UnitDeleted)
	if !ok {
		return nil
	}
	if !s.Enabled() || e.ExternalDepartmentID == "" {
		return nil
	}

	if err := s.client.DeleteRotation(ctx, e.ExternalDepartmentID); err != nil {
		s.log.CRMSyncFailure("rotation_teardown", e.UnitID.String(), err)
		return err
	}

	s.log.Info("crm rotation removed", "unit_id", e.UnitID, "department_id", e.ExternalDepartmentID)
	return nil
}

// =============================================================================
// ports.CRMSync
// =============================================================================

// FetchLead reads the lead's current CRM state for the before snapshot.
func (s *Service) FetchLead(ctx context.Context, leadID string) (ports.LeadFetch, error) {
	if !s.Enabled() {
		return ports.LeadFetch{}, nil
	}

	id := SanitizeLeadID(leadID)
	if id == "" {
		return ports.LeadFetch{}, fmt.Errorf("lead id %q contains no digits", leadID)
	}

	lead, err := s.client.GetLead(ctx, id)
	if err != nil {
		return ports.LeadFetch{}, err
	}

	return ports.LeadFetch{
		State:   ports.LeadState(lead),
		OwnerID: lead.OwnerID(),
	}, nil
}

// PushAssignment transfers lead ownership to the vendor and grants the
// vendor access alongside the unit's department. The push is idempotent: a
// lead already owned by the vendor in the right department is left alone.
func (s *Service) PushAssignment(ctx context.Context, unitID, vendorID uuid.UUID, leadID string, before ports.LeadState) ports.AssignResult {
	if !s.Enabled() {
		return ports.AssignResult{Skipped: true}
	}

	id := SanitizeLeadID(leadID)
	if id == "" {
		return ports.AssignResult{Reason: fmt.Sprintf("lead id %q contains no digits", leadID)}
	}

	deptID, err := s.dir.UnitExternalDepartment(ctx, unitID)
	if err != nil {
		return ports.AssignResult{Reason: fmt.Sprintf("resolve unit department: %v", err)}
	}
	userID, err := s.dir.VendorExternalUser(ctx, vendorID)
	if err != nil {
		return ports.AssignResult{Reason: fmt.Sprintf("resolve vendor user: %v", err)}
	}
	if deptID == "" || userID == "" {
		return ports.AssignResult{Skipped: true, Reason: "unit or vendor has no external crm id"}
	}

	current := Lead(before)
	access := mergeAccess(current.Access(), userID)

	if current.OwnerID() == userID && current.DepartmentID() == deptID {
		return ports.AssignResult{
			Synced:           true,
			LeadUpdated:      false,
			DepartmentAccess: access,
			After:            before,
		}
	}

	after, err := s.client.UpdateLead(ctx, id, LeadUpdate{
		OwnerID:      userID,
		DepartmentID: deptID,
		Access:       access,
	})
	if err != nil {
		return ports.AssignResult{Reason: err.Error()}
	}

	return ports.AssignResult{
		Synced:           true,
		LeadUpdated:      true,
		DepartmentAccess: after.Access(),
		After:            ports.LeadState(after),
	}
}

// SyncMembership replaces the unit's external rotation with the currently
// eligible vendors, in rotation order. Vendor ids resolve concurrently; one
// unresolvable vendor fails the whole sync so the rotation is never written
// half-empty.
func (s *Service) SyncMembership(ctx context.Context, unitID uuid.UUID) error {
	if !s.Enabled() {
		return nil
	}

	deptID, err := s.dir.UnitExternalDepartment(ctx, unitID)
	if err != nil {
		return fmt.Errorf("resolve unit department: %w", err)
	}
	if deptID == "" {
		return nil
	}

	vendorIDs, err := s.rotation.EligibleVendorIDs(ctx, unitID)
	if err != nil {
		return fmt.Errorf("load eligible vendors: %w", err)
	}

	userIDs := make([]string, len(vendorIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, vendorID := range vendorIDs {
		i, vendorID := i, vendorID
		g.Go(func() error {
			userID, err := s.dir.VendorExternalUser(gctx, vendorID)
			if err != nil {
				return fmt.Errorf("resolve vendor %s: %w", vendorID, err)
			}
			userIDs[i] = userID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Vendors without an external id simply do not appear in the rotation.
	compact := userIDs[:0]
	for _, id := range userIDs {
		if id != "" {
			compact = append(compact, id)
		}
	}

	compact = s.filterKnownUsers(ctx, unitID, compact)

	if err := s.client.PutRotation(ctx, deptID, compact); err != nil {
		return fmt.Errorf("put rotation: %w", err)
	}

	s.log.Info("crm rotation synced", "unit_id", unitID, "department_id", deptID, "members", len(compact))
	return nil
}

// filterKnownUsers drops external user ids the CRM no longer knows, so a
// stale id left on a vendor cannot fail the whole rotation write. A roster
// fetch failure keeps the list as-is; the CRM then rejects or accepts it on
// its own.
func (s *Service) filterKnownUsers(ctx context.Context, unitID uuid.UUID, userIDs []string) []string {
	if len(userIDs) == 0 {
		return userIDs
	}

	roster, err := s.client.ListUsers(ctx)
	if err != nil {
		s.log.Warn("crm user roster unavailable, pushing rotation unfiltered", "unit_id", unitID, "error", err)
		return userIDs
	}

	known := make(map[string]bool, len(roster))
	for _, u := range roster {
		known[u.ID] = true
	}

	kept := userIDs[:0]
	for _, id := range userIDs {
		if known[id] {
			kept = append(kept, id)
			continue
		}
		s.log.Warn("vendor external id not in crm roster, dropped from rotation", "unit_id", unitID, "user_id", id)
	}
	return kept
}

func mergeAccess(existing []string, userID string) []string {
	for _, id := range existing {
		if id == userID {
			return existing
		}
	}
	return append(append([]string{}, existing...), userID)
}

// Compile-time check that Service implements the distribution sync port.
var _ ports.CRMSync = (*Service)(nil)
