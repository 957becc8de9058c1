package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesops_backend/internal/distribution/domain"
	"salesops_backend/platform/apperr"
)

const (
	unitNotFoundMessage  = "unit not found"
	entryNotFoundMessage = "queue entry not found"
)

// Repo implements the Repository interface with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new distribution repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// GetUnit loads the unit record by ID.
func (r *Repo) GetUnit(ctx context.Context, unitID uuid.UUID) (domain.Unit, error) {
	query := `
		SELECT id, name, external_department_id, active
		FROM units
		WHERE id = $1`

	var u domain.Unit
	err := r.pool.QueryRow(ctx, query, unitID).Scan(&u.ID, &u.Name, &u.ExternalDepartmentID, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Unit{}, apperr.NotFound(unitNotFoundMessage)
		}
		return domain.Unit{}, fmt.Errorf("get unit: %w", err)
	}

	return u, nil
}

// GetQueue loads the unit's rotation ordered by sequence.
func (r *Repo) GetQueue(ctx context.Context, unitID uuid.UUID) (domain.UnitQueue, error) {
	unit, err := r.GetUnit(ctx, unitID)
	if err != nil {
		return domain.UnitQueue{}, err
	}

	query := `
		SELECT qe.id, qe.vendor_id, v.name, qe.seq, qe.total_distributions, qe.absence_return_at
		FROM queue_entries qe
		JOIN vendors v ON v.id = qe.vendor_id
		WHERE qe.unit_id = $1
		ORDER BY qe.seq ASC`

	rows, err := r.pool.Query(ctx, query, unitID)
	if err != nil {
		return domain.UnitQueue{}, fmt.Errorf("get queue: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return domain.UnitQueue{}, err
	}

	return domain.UnitQueue{UnitID: unitID, Active: unit.Active, Entries: entries}, nil
}

// ReplaceEntries swaps the full ordered list in one transaction, renumbering
// sequences 1..N and validating unit membership.
func (r *Repo) ReplaceEntries(ctx context.Context, unitID uuid.UUID, entries []domain.QueueEntry) ([]domain.QueueEntry, error) {
	renumbered := domain.Renumber(entries)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("replace entries begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, e := range renumbered {
		member, err := isMemberTx(ctx, tx, unitID, e.VendorID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, apperr.Validation("vendor is not a member of this unit").
				WithCode("vendor_not_member").
				WithDetails(map[string]string{"vendorId": e.VendorID.String()})
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM queue_entries WHERE unit_id = $1`, unitID); err != nil {
		return nil, fmt.Errorf("replace entries delete: %w", err)
	}

	insert := `
		INSERT INTO queue_entries (id, unit_id, vendor_id, seq, total_distributions, absence_return_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i := range renumbered {
		if renumbered[i].ID == uuid.Nil {
			renumbered[i].ID = uuid.New()
		}
		e := renumbered[i]
		if _, err := tx.Exec(ctx, insert, e.ID, unitID, e.VendorID, e.Sequence, e.TotalDistributions, e.AbsenceReturnAt); err != nil {
			return nil, fmt.Errorf("replace entries insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("replace entries commit: %w", err)
	}

	return renumbered, nil
}

// AddVendor appends a new entry at the tail.
func (r *Repo) AddVendor(ctx context.Context, unitID, vendorID uuid.UUID) (domain.QueueEntry, error) {
	member, err := r.isMember(ctx, unitID, vendorID)
	if err != nil {
		return domain.QueueEntry{}, err
	}
	if !member {
		return domain.QueueEntry{}, apperr.Validation("vendor is not a member of this unit").
			WithCode("vendor_not_member")
	}

	query := `
		INSERT INTO queue_entries (id, unit_id, vendor_id, seq, total_distributions)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM queue_entries WHERE unit_id = $2),
			0)
		RETURNING seq`

	entry := domain.QueueEntry{ID: uuid.New(), VendorID: vendorID}
	if err := r.pool.QueryRow(ctx, query, entry.ID, unitID, vendorID).Scan(&entry.Sequence); err != nil {
		return domain.QueueEntry{}, fmt.Errorf("add vendor to queue: %w", err)
	}

	nameQuery := `SELECT name FROM vendors WHERE id = $1`
	if err := r.pool.QueryRow(ctx, nameQuery, vendorID).Scan(&entry.DisplayName); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.QueueEntry{}, fmt.Errorf("add vendor name lookup: %w", err)
	}

	return entry, nil
}

// RemoveEntry deletes one entry and renumbers the remainder in the same
// transaction, preserving relative order.
func (r *Repo) RemoveEntry(ctx context.Context, unitID, entryID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("remove entry begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM queue_entries WHERE unit_id = $1 AND id = $2`, unitID, entryID)
	if err != nil {
		return fmt.Errorf("remove entry delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(entryNotFoundMessage)
	}

	renumber := `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY seq ASC) AS rn
			FROM queue_entries
			WHERE unit_id = $1
		)
		UPDATE queue_entries q
		SET seq = ranked.rn
		FROM ranked
		WHERE q.id = ranked.id`

	if _, err := tx.Exec(ctx, renumber, unitID); err != nil {
		return fmt.Errorf("remove entry renumber: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("remove entry commit: %w", err)
	}

	return nil
}

// RemoveVendorEntries deletes all of a vendor's entries in the unit's queue
// and renumbers the remainder in the same transaction.
func (r *Repo) RemoveVendorEntries(ctx context.Context, unitID, vendorID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("remove vendor entries begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM queue_entries WHERE unit_id = $1 AND vendor_id = $2`, unitID, vendorID)
	if err != nil {
		return fmt.Errorf("remove vendor entries delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	renumber := `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY seq ASC) AS rn
			FROM queue_entries
			WHERE unit_id = $1
		)
		UPDATE queue_entries q
		SET seq = ranked.rn
		FROM ranked
		WHERE q.id = ranked.id`

	if _, err := tx.Exec(ctx, renumber, unitID); err != nil {
		return fmt.Errorf("remove vendor entries renumber: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("remove vendor entries commit: %w", err)
	}

	return nil
}

// RecordAbsence sets the return timestamp on all of the vendor's entries in
// this unit's queue.
func (r *Repo) RecordAbsence(ctx context.Context, unitID, vendorID uuid.UUID, returnAt time.Time) error {
	query := `
		UPDATE queue_entries
		SET absence_return_at = $3
		WHERE unit_id = $1 AND vendor_id = $2`

	tag, err := r.pool.Exec(ctx, query, unitID, vendorID, returnAt)
	if err != nil {
		return fmt.Errorf("record absence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("vendor has no entry in this unit's queue")
	}

	return nil
}

// EligibleVendorIDs returns distinct eligible vendors in rotation order.
func (r *Repo) EligibleVendorIDs(ctx context.Context, unitID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT vendor_id
		FROM queue_entries
		WHERE unit_id = $1
		  AND (absence_return_at IS NULL OR absence_return_at <= $2)
		ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, unitID, now)
	if err != nil {
		return nil, fmt.Errorf("eligible vendor ids: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("eligible vendor ids scan: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, rows.Err()
}

// AppendLog writes one immutable audit record.
func (r *Repo) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	query := `
		INSERT INTO distribution_logs
			(id, unit_id, vendor_id, lead_id, position_in_queue, queue_size, previous_owner_id, distributed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.UnitID, entry.VendorID, entry.LeadID,
		entry.PositionInQueue, entry.QueueSize, entry.PreviousOwnerID, entry.DistributedAt,
	)
	if err != nil {
		return fmt.Errorf("append distribution log: %w", err)
	}

	return nil
}

// ListLogs reads audit records newest first with keyset pagination.
func (r *Repo) ListLogs(ctx context.Context, unitID uuid.UUID, limit int, before *time.Time) ([]domain.LogEntry, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT dl.id, dl.unit_id, dl.vendor_id, COALESCE(v.name, ''), dl.lead_id,
		       dl.position_in_queue, dl.queue_size, dl.previous_owner_id, dl.distributed_at
		FROM distribution_logs dl
		LEFT JOIN vendors v ON v.id = dl.vendor_id
		WHERE dl.unit_id = $1
		  AND ($2::timestamptz IS NULL OR dl.distributed_at < $2)
		ORDER BY dl.distributed_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, unitID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list distribution logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.UnitID, &e.VendorID, &e.VendorName, &e.LeadID,
			&e.PositionInQueue, &e.QueueSize, &e.PreviousOwnerID, &e.DistributedAt); err != nil {
			return nil, fmt.Errorf("list distribution logs scan: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// LastDistribution returns the unit's most recent audit record, or nil.
func (r *Repo) LastDistribution(ctx context.Context, unitID uuid.UUID) (*domain.LogEntry, error) {
	entries, err := r.ListLogs(ctx, unitID, 1, nil)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// ClearLogs removes all audit records for a unit.
func (r *Repo) ClearLogs(ctx context.Context, unitID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM distribution_logs WHERE unit_id = $1`, unitID)
	if err != nil {
		return 0, fmt.Errorf("clear distribution logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) isMember(ctx context.Context, unitID, vendorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unit_members WHERE unit_id = $1 AND vendor_id = $2)`,
		unitID, vendorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return exists, nil
}

func isMemberTx(ctx context.Context, tx pgx.Tx, unitID, vendorID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unit_members WHERE unit_id = $1 AND vendor_id = $2)`,
		unitID, vendorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return exists, nil
}

func scanEntries(rows pgx.Rows) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(&e.ID, &e.VendorID, &e.DisplayName, &e.Sequence, &e.TotalDistributions, &e.AbsenceReturnAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
