package repository

import (
	"context"
	"time"

	"salesops_backend/internal/distribution/domain"

	"github.com/google/uuid"
)

// Repository is the durable store for unit queues and distribution logs.
// Every queue mutation re-establishes the dense 1..N sequence invariant.
type Repository interface {
	// GetUnit loads the unit record the queue belongs to.
	GetUnit(ctx context.Context, unitID uuid.UUID) (domain.Unit, error)

	// GetQueue loads the unit's ordered rotation, absent a queue it returns
	// an empty entry list, not an error.
	GetQueue(ctx context.Context, unitID uuid.UUID) (domain.UnitQueue, error)

	// ReplaceEntries replaces the full ordered list in one transaction.
	// Caller order is authoritative; sequences are renumbered 1..N. Every
	// vendor must be a member of the unit.
	ReplaceEntries(ctx context.Context, unitID uuid.UUID, entries []domain.QueueEntry) ([]domain.QueueEntry, error)

	// AddVendor appends a new entry at the tail (sequence N+1).
	AddVendor(ctx context.Context, unitID, vendorID uuid.UUID) (domain.QueueEntry, error)

	// RemoveEntry deletes one entry and renumbers the remainder,
	// preserving relative order.
	RemoveEntry(ctx context.Context, unitID, entryID uuid.UUID) error

	// RemoveVendorEntries deletes every entry a vendor holds in the unit's
	// queue and renumbers the remainder. A vendor without entries is a no-op.
	RemoveVendorEntries(ctx context.Context, unitID, vendorID uuid.UUID) error

	// RecordAbsence sets the vendor's return timestamp on all of the
	// vendor's entries in the unit's queue.
	RecordAbsence(ctx context.Context, unitID, vendorID uuid.UUID, returnAt time.Time) error

	// EligibleVendorIDs returns the distinct vendors currently eligible in
	// the unit's queue, in rotation order. Consumed by the CRM membership sync.
	EligibleVendorIDs(ctx context.Context, unitID uuid.UUID, now time.Time) ([]uuid.UUID, error)

	// AppendLog writes one immutable distribution audit record.
	AppendLog(ctx context.Context, entry domain.LogEntry) error

	// ListLogs reads audit records for a unit, newest first, using keyset
	// pagination on distributed_at.
	ListLogs(ctx context.Context, unitID uuid.UUID, limit int, before *time.Time) ([]domain.LogEntry, error)

	// LastDistribution returns the unit's most recent audit record, or nil.
	LastDistribution(ctx context.Context, unitID uuid.UUID) (*domain.LogEntry, error)

	// ClearLogs removes all audit records for a unit. Out-of-band admin
	// maintenance, not part of normal operation.
	ClearLogs(ctx context.Context, unitID uuid.UUID) (int64, error)
}
