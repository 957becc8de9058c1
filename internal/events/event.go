// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"salesops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Distribution Domain Events
// =============================================================================

// LeadDistributed is published after a rotation advanced and the assignment
// was logged, regardless of whether the CRM push succeeded.
type LeadDistributed struct {
	BaseEvent
	UnitID     uuid.UUID `json:"unitId"`
	UnitName   string    `json:"unitName"`
	VendorID   uuid.UUID `json:"vendorId"`
	VendorName string    `json:"vendorName"`
	LeadID     string    `json:"leadId,omitempty"`
	Position   int       `json:"position"`
	QueueSize  int       `json:"queueSize"`
	CRMSynced  bool      `json:"crmSynced"`
	CRMError   string    `json:"crmError,omitempty"`
}

func (e LeadDistributed) EventName() string { return "distribution.lead.distributed" }

// QueueMembershipChanged is published when a unit queue's membership changes
// (vendor added, removed, or the queue replaced). The CRM rotation construct
// is synced in response.
type QueueMembershipChanged struct {
	BaseEvent
	UnitID uuid.UUID `json:"unitId"`
}

func (e QueueMembershipChanged) EventName() string { return "distribution.queue.membership_changed" }

// AbsenceRecorded is published when a vendor's absence window is registered.
type AbsenceRecorded struct {
	BaseEvent
	UnitID   uuid.UUID `json:"unitId"`
	VendorID uuid.UUID `json:"vendorId"`
}

func (e AbsenceRecorded) EventName() string { return "distribution.absence.recorded" }

// =============================================================================
// Units Domain Events
// =============================================================================

// UnitDeleted is published when a sales unit is removed; the CRM rotation
// construct for its external department is torn down in response.
type UnitDeleted struct {
	BaseEvent
	UnitID               uuid.UUID `json:"unitId"`
	ExternalDepartmentID string    `json:"externalDepartmentId"`
}

func (e UnitDeleted) EventName() string { return "units.unit.deleted" }
