// Package ports declares the outbound interfaces the distribution module
// depends on. Concrete implementations live in internal/crm and
// internal/scheduler and are wired in the composition root.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadState is the raw lead document as the external CRM returns it. It is
// captured for before/after snapshots and never re-interpreted downstream.
type LeadState map[string]interface{}

// LeadFetch is the result of reading a lead from the CRM before assignment.
type LeadFetch struct {
	State   LeadState
	OwnerID string
}

// AssignResult reports the outcome of pushing an assignment to the CRM.
// A failed push is data, not an error: the local rotation already advanced
// and must be returned to the caller regardless.
type AssignResult struct {
	Synced           bool
	Skipped          bool
	LeadUpdated      bool
	DepartmentAccess []string
	After            LeadState
	Reason           string
}

// CRMSync pushes local assignment decisions to the external CRM.
type CRMSync interface {
	// FetchLead reads the lead's current CRM state. Lead ids may arrive
	// wrapped in template placeholder syntax and are sanitized first.
	FetchLead(ctx context.Context, leadID string) (LeadFetch, error)

	// PushAssignment transfers lead ownership to the vendor and grants
	// department access. The push is idempotent on (unit, vendor, lead):
	// a lead already in the target state is not updated again.
	PushAssignment(ctx context.Context, unitID, vendorID uuid.UUID, leadID string, before LeadState) AssignResult

	// SyncMembership pushes the unit's currently eligible vendor set to the
	// external rotation construct.
	SyncMembership(ctx context.Context, unitID uuid.UUID) error
}

// SyncScheduler enqueues deferred CRM work. Implementations must tolerate a
// nil receiver so the scheduler can be absent in development.
type SyncScheduler interface {
	ScheduleMembershipSync(ctx context.Context, unitID uuid.UUID) error
	ScheduleAssignmentRetry(ctx context.Context, unitID, vendorID uuid.UUID, leadID string, delay time.Duration) error
}
