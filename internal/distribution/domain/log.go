package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is one immutable distribution audit record. It survives queue
// mutations: entries reference vendors by id, not by queue position.
type LogEntry struct {
	ID              uuid.UUID
	UnitID          uuid.UUID
	VendorID        uuid.UUID
	VendorName      string
	LeadID          *string
	PositionInQueue int
	QueueSize       int
	PreviousOwnerID *string
	DistributedAt   time.Time
}

// Unit is the slice of the sales-unit record the distribution subsystem
// needs: identity, the external CRM department it maps to, and whether its
// queue is live.
type Unit struct {
	ID                   uuid.UUID
	Name                 string
	ExternalDepartmentID string
	Active               bool
}
