// Package transport defines the request/response DTOs for unit and vendor
// administration.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// UnitResponse is one sales unit.
type UnitResponse struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	ExternalDepartmentID string    `json:"externalDepartmentId"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// CreateUnitRequest creates a sales unit.
type CreateUnitRequest struct {
	Name                 string `json:"name" validate:"required,min=2,max=120"`
	ExternalDepartmentID string `json:"externalDepartmentId" validate:"required"`
}

// UpdateUnitRequest updates a sales unit.
type UpdateUnitRequest struct {
	Name                 string `json:"name" validate:"required,min=2,max=120"`
	ExternalDepartmentID string `json:"externalDepartmentId" validate:"required"`
	Active               bool   `json:"active"`
}

// VendorResponse is one salesperson.
type VendorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	ExternalUserID string    `json:"externalUserId,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreateVendorRequest creates a vendor. Phone is normalized to E.164 at
// ingestion.
type CreateVendorRequest struct {
	Name           string `json:"name" validate:"required,min=2,max=120"`
	Phone          string `json:"phone"`
	ExternalUserID string `json:"externalUserId"`
}

// AddMemberRequest attaches a vendor to a unit.
type AddMemberRequest struct {
	VendorID uuid.UUID `json:"vendorId" validate:"required"`
}
