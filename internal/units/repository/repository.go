// Package repository provides PostgreSQL persistence for sales units,
// vendors, and unit membership.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"salesops_backend/platform/apperr"
)

const (
	unitNotFoundMessage   = "unit not found"
	vendorNotFoundMessage = "vendor not found"
)

// Unit is a sales branch that owns one lead-distribution queue.
type Unit struct {
	ID                   uuid.UUID
	Name                 string
	ExternalDepartmentID string
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Vendor is a salesperson eligible to receive leads for one or more units.
type Vendor struct {
	ID             uuid.UUID
	Name           string
	Phone          string
	ExternalUserID string
	Active         bool
	CreatedAt      time.Time
}

// Repo implements unit/vendor persistence with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new units repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// =============================================================================
// Units
// =============================================================================

// GetUnit retrieves a unit by ID.
func (r *Repo) GetUnit(ctx context.Context, id uuid.UUID) (Unit, error) {
	query := `
		SELECT id, name, external_department_id, active, created_at, updated_at
		FROM units
		WHERE id = $1`

	var u Unit
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.ExternalDepartmentID, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, apperr.NotFound(unitNotFoundMessage)
		}
		return Unit{}, fmt.Errorf("get unit: %w", err)
	}

	return u, nil
}

// ListUnits retrieves all units ordered by name.
func (r *Repo) ListUnits(ctx context.Context) ([]Unit, error) {
	query := `
		SELECT id, name, external_department_id, active, created_at, updated_at
		FROM units
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.ExternalDepartmentID, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list units scan: %w", err)
		}
		units = append(units, u)
	}

	return units, rows.Err()
}

// CreateUnit inserts a new unit.
func (r *Repo) CreateUnit(ctx context.Context, name, externalDepartmentID string) (Unit, error) {
	query := `
		INSERT INTO units (id, name, external_department_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, true, now(), now())
		RETURNING id, name, external_department_id, active, created_at, updated_at`

	var u Unit
	err := r.pool.QueryRow(ctx, query, uuid.New(), name, externalDepartmentID).Scan(
		&u.ID, &u.Name, &u.ExternalDepartmentID, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return Unit{}, fmt.Errorf("create unit: %w", err)
	}

	return u, nil
}

// UpdateUnit updates a unit's name, external department, and active flag.
func (r *Repo) UpdateUnit(ctx context.Context, id uuid.UUID, name, externalDepartmentID string, active bool) (Unit, error) {
	query := `
		UPDATE units
		SET name = $2, external_department_id = $3, active = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, external_department_id, active, created_at, updated_at`

	var u Unit
	err := r.pool.QueryRow(ctx, query, id, name, externalDepartmentID, active).Scan(
		&u.ID, &u.Name, &u.ExternalDepartmentID, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, apperr.NotFound(unitNotFoundMessage)
		}
		return Unit{}, fmt.Errorf("update unit: %w", err)
	}

	return u, nil
}

// DeleteUnit removes a unit; queue entries and membership cascade.
func (r *Repo) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(unitNotFoundMessage)
	}
	return nil
}

// =============================================================================
// Vendors
// =============================================================================

// GetVendor retrieves a vendor by ID.
func (r *Repo) GetVendor(ctx context.Context, id uuid.UUID) (Vendor, error) {
	query := `
		SELECT id, name, phone, external_user_id, active, created_at
		FROM vendors
		WHERE id = $1`

	var v Vendor
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.Phone, &v.ExternalUserID, &v.Active, &v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, apperr.NotFound(vendorNotFoundMessage)
		}
		return Vendor{}, fmt.Errorf("get vendor: %w", err)
	}

	return v, nil
}

// ListVendors retrieves all vendors ordered by name.
func (r *Repo) ListVendors(ctx context.Context) ([]Vendor, error) {
	query := `
		SELECT id, name, phone, external_user_id, active, created_at
		FROM vendors
		ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	return scanVendors(rows)
}

// CreateVendor inserts a new vendor.
func (r *Repo) CreateVendor(ctx context.Context, name, phone, externalUserID string) (Vendor, error) {
	query := `
		INSERT INTO vendors (id, name, phone, external_user_id, active, created_at)
		VALUES ($1, $2, $3, $4, true, now())
		RETURNING id, name, phone, external_user_id, active, created_at`

	var v Vendor
	err := r.pool.QueryRow(ctx, query, uuid.New(), name, phone, externalUserID).Scan(
		&v.ID, &v.Name, &v.Phone, &v.ExternalUserID, &v.Active, &v.CreatedAt,
	)
	if err != nil {
		return Vendor{}, fmt.Errorf("create vendor: %w", err)
	}

	return v, nil
}

// DeleteVendor removes a vendor; membership and queue entries cascade.
func (r *Repo) DeleteVendor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vendor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(vendorNotFoundMessage)
	}
	return nil
}

// =============================================================================
// Membership
// =============================================================================

// ListMembers retrieves the vendors belonging to a unit, ordered by name.
func (r *Repo) ListMembers(ctx context.Context, unitID uuid.UUID) ([]Vendor, error) {
	query := `
		SELECT v.id, v.name, v.phone, v.external_user_id, v.active, v.created_at
		FROM vendors v
		JOIN unit_members um ON um.vendor_id = v.id
		WHERE um.unit_id = $1
		ORDER BY v.name ASC`

	rows, err := r.pool.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("list unit members: %w", err)
	}
	defer rows.Close()

	return scanVendors(rows)
}

// AddMember attaches a vendor to a unit. Adding twice is a no-op.
func (r *Repo) AddMember(ctx context.Context, unitID, vendorID uuid.UUID) error {
	query := `
		INSERT INTO unit_members (unit_id, vendor_id)
		VALUES ($1, $2)
		ON CONFLICT (unit_id, vendor_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, unitID, vendorID); err != nil {
		return fmt.Errorf("add unit member: %w", err)
	}
	return nil
}

// RemoveMember detaches a vendor from a unit. Queue entries are not touched
// here: the caller removes them through the distribution service, which owns
// the unit's queue lock.
func (r *Repo) RemoveMember(ctx context.Context, unitID, vendorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM unit_members WHERE unit_id = $1 AND vendor_id = $2`, unitID, vendorID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("vendor is not a member of this unit")
	}
	return nil
}

func scanVendors(rows pgx.Rows) ([]Vendor, error) {
	var vendors []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.ExternalUserID, &v.Active, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
