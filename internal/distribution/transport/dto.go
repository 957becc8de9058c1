// Package transport defines the request/response DTOs for the distribution
// module. Legacy field name variants are normalized in the handler; the
// service layer only ever sees the canonical shapes defined here.
package transport

import (
	"time"

	"github.com/google/uuid"

	"salesops_backend/internal/distribution/ports"
)

// AssignLeadRequest carries the distribution invocation. Canonical keys are
// "unit" and "leadId"; the legacy dashboard also posted "unidade" and
// "idlead", accepted here for backward compatibility and collapsed by
// Normalize before anything else sees them.
type AssignLeadRequest struct {
	Unit    string `json:"unit" form:"unit"`
	Unidade string `json:"unidade" form:"unidade"`
	LeadID  string `json:"leadId" form:"leadId"`
	IDLead  string `json:"idlead" form:"idlead"`
}

// Normalize collapses legacy key variants into the canonical pair.
func (r AssignLeadRequest) Normalize() (unit string, leadID string) {
	unit = r.Unit
	if unit == "" {
		unit = r.Unidade
	}
	leadID = r.LeadID
	if leadID == "" {
		leadID = r.IDLead
	}
	return unit, leadID
}

// UnitSummary identifies the unit an assignment was made for.
type UnitSummary struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	ExternalDepartmentID string    `json:"externalDepartmentId"`
}

// VendorSummary identifies the assigned vendor.
type VendorSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CRMResult reports the outcome of the external CRM push.
type CRMResult struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AssignmentResponse is the Distribution API result. Success refers to the
// local rotation; a failed CRM push or audit write is surfaced through the
// CRM block and Warnings without negating the assignment.
type AssignmentResponse struct {
	Success          bool            `json:"success"`
	Unit             UnitSummary     `json:"unit"`
	LeadID           string          `json:"leadId,omitempty"`
	AssignedVendor   VendorSummary   `json:"assignedVendor"`
	PositionInQueue  int             `json:"positionInQueue"`
	QueueSize        int             `json:"queueSize"`
	DepartmentAccess []string        `json:"departmentAccess,omitempty"`
	LeadUpdated      bool            `json:"leadUpdated"`
	LeadBefore       ports.LeadState `json:"leadBefore,omitempty"`
	LeadAfter        ports.LeadState `json:"leadAfter,omitempty"`
	CRM              CRMResult       `json:"crm"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// QueueEntryResponse is one vendor position in the queue read endpoint.
type QueueEntryResponse struct {
	ID                 uuid.UUID  `json:"id"`
	VendorID           uuid.UUID  `json:"vendorId"`
	Name               string     `json:"name"`
	Sequence           int        `json:"sequence"`
	TotalDistributions int        `json:"totalDistributions"`
	AbsenceReturnAt    *time.Time `json:"absenceReturnAt,omitempty"`
	Absent             bool       `json:"absent"`
}

// LastDistribution summarizes the unit's most recent assignment.
type LastDistribution struct {
	VendorID      uuid.UUID `json:"vendorId"`
	VendorName    string    `json:"vendorName"`
	LeadID        *string   `json:"leadId,omitempty"`
	QueueSize     int       `json:"queueSize"`
	DistributedAt time.Time `json:"distributedAt"`
}

// QueueResponse is the admin queue read result with computed stats.
type QueueResponse struct {
	UnitID             uuid.UUID            `json:"unitId"`
	Active             bool                 `json:"active"`
	Entries            []QueueEntryResponse `json:"entries"`
	TotalDistributions int                  `json:"totalDistributions"`
	LastDistribution   *LastDistribution    `json:"lastDistribution,omitempty"`
}

// ReplaceQueueEntry is one position in a full queue replace. EntryID links
// back to an existing entry so its distribution counter and absence window
// survive the reorder; a nil EntryID creates a fresh entry.
type ReplaceQueueEntry struct {
	EntryID  *uuid.UUID `json:"entryId,omitempty"`
	VendorID uuid.UUID  `json:"vendorId" validate:"required"`
}

// ReplaceQueueRequest replaces the full ordered entry list. Order in the
// slice is authoritative.
type ReplaceQueueRequest struct {
	Entries []ReplaceQueueEntry `json:"entries" validate:"dive"`
}

// AddVendorRequest appends a vendor at the tail of the rotation.
type AddVendorRequest struct {
	VendorID uuid.UUID `json:"vendorId" validate:"required"`
}

// RecordAbsenceRequest registers a vendor's absence window.
type RecordAbsenceRequest struct {
	VendorID uuid.UUID `json:"vendorId" validate:"required"`
	ReturnAt time.Time `json:"returnAt" validate:"required"`
}

// LogEntryResponse is one audit record in the distribution log endpoint.
type LogEntryResponse struct {
	ID              uuid.UUID `json:"id"`
	UnitID          uuid.UUID `json:"unitId"`
	VendorID        uuid.UUID `json:"vendorId"`
	VendorName      string    `json:"vendorName,omitempty"`
	LeadID          *string   `json:"leadId,omitempty"`
	PositionInQueue int       `json:"positionInQueue"`
	QueueSize       int       `json:"queueSize"`
	PreviousOwnerID *string   `json:"previousOwnerId,omitempty"`
	DistributedAt   time.Time `json:"distributedAt"`
}

// LogListResponse is a paginated slice of audit records, newest first.
type LogListResponse struct {
	Entries    []LogEntryResponse `json:"entries"`
	NextCursor *time.Time         `json:"nextCursor,omitempty"`
}

// ClearLogsResponse reports how many audit records were removed.
type ClearLogsResponse struct {
	Removed int64 `json:"removed"`
}
