// Package service provides business logic for unit and vendor administration.
package service

import (
	"context"

	"github.com/google/uuid"

	"salesops_backend/internal/events"
	"salesops_backend/internal/units/repository"
	"salesops_backend/internal/units/transport"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/phone"
)

// QueueMaintainer removes a vendor's rotation entries under the queue's
// per-unit exclusion. Implemented by the distribution service; membership
// never touches queue_entries directly because that would race a rotation
// holding the unit's lock.
type QueueMaintainer interface {
	RemoveVendorEntries(ctx context.Context, unitID, vendorID uuid.UUID) error
}

// Service provides business logic for units and vendors.
type Service struct {
	repo  *repository.Repo
	bus   events.Bus
	queue QueueMaintainer
	log   *logger.Logger
}

// New creates a new units service.
func New(repo *repository.Repo, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// SetQueueMaintainer injects the distribution service. Wired by the
// composition root to break the cycle between the two contexts.
func (s *Service) SetQueueMaintainer(queue QueueMaintainer) {
	s.queue = queue
}

// =============================================================================
// Units
// =============================================================================

// GetUnit retrieves a unit by ID.
func (s *Service) GetUnit(ctx context.Context, id uuid.UUID) (transport.UnitResponse, error) {
	u, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return transport.UnitResponse{}, err
	}
	return toUnitResponse(u), nil
}

// ListUnits retrieves all units.
func (s *Service) ListUnits(ctx context.Context) ([]transport.UnitResponse, error) {
	units, err := s.repo.ListUnits(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]transport.UnitResponse, 0, len(units))
	for _, u := range units {
		out = append(out, toUnitResponse(u))
	}
	return out, nil
}

// CreateUnit creates a new sales unit.
func (s *Service) CreateUnit(ctx context.Context, req transport.CreateUnitRequest) (transport.UnitResponse, error) {
	u, err := s.repo.CreateUnit(ctx, req.Name, req.ExternalDepartmentID)
	if err != nil {
		return transport.UnitResponse{}, err
	}

	s.log.Info("unit created", "id", u.ID, "name", u.Name)
	return toUnitResponse(u), nil
}

// UpdateUnit updates a unit.
func (s *Service) UpdateUnit(ctx context.Context, id uuid.UUID, req transport.UpdateUnitRequest) (transport.UnitResponse, error) {
	u, err := s.repo.UpdateUnit(ctx, id, req.Name, req.ExternalDepartmentID, req.Active)
	if err != nil {
		return transport.UnitResponse{}, err
	}

	s.log.Info("unit updated", "id", u.ID, "name", u.Name, "active", u.Active)
	return toUnitResponse(u), nil
}

// DeleteUnit removes a unit. The CRM rotation construct for its external
// department is torn down by the subscriber of UnitDeleted.
func (s *Service) DeleteUnit(ctx context.Context, id uuid.UUID) error {
	u, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteUnit(ctx, id); err != nil {
		return err
	}

	s.log.Info("unit deleted", "id", id, "name", u.Name)
	s.bus.Publish(ctx, events.UnitDeleted{
		BaseEvent:            events.NewBaseEvent(),
		UnitID:               id,
		ExternalDepartmentID: u.ExternalDepartmentID,
	})

	return nil
}

// =============================================================================
// Vendors
// =============================================================================

// ListVendors retrieves all vendors.
func (s *Service) ListVendors(ctx context.Context) ([]transport.VendorResponse, error) {
	vendors, err := s.repo.ListVendors(ctx)
	if err != nil {
		return nil, err
	}
	return toVendorResponses(vendors), nil
}

// CreateVendor creates a vendor, normalizing the phone number once at
// ingestion.
func (s *Service) CreateVendor(ctx context.Context, req transport.CreateVendorRequest) (transport.VendorResponse, error) {
	v, err := s.repo.CreateVendor(ctx, req.Name, phone.NormalizeE164(req.Phone), req.ExternalUserID)
	if err != nil {
		return transport.VendorResponse{}, err
	}

	s.log.Info("vendor created", "id", v.ID, "name", v.Name)
	return toVendorResponse(v), nil
}

// DeleteVendor removes a vendor.
func (s *Service) DeleteVendor(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return err
	}
	s.log.Info("vendor deleted", "id", id)
	return nil
}

// =============================================================================
// Membership
// =============================================================================

// ListMembers retrieves a unit's vendors.
func (s *Service) ListMembers(ctx context.Context, unitID uuid.UUID) ([]transport.VendorResponse, error) {
	vendors, err := s.repo.ListMembers(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return toVendorResponses(vendors), nil
}

// AddMember attaches a vendor to a unit.
func (s *Service) AddMember(ctx context.Context, unitID, vendorID uuid.UUID) error {
	if _, err := s.repo.GetUnit(ctx, unitID); err != nil {
		return err
	}
	if _, err := s.repo.GetVendor(ctx, vendorID); err != nil {
		return err
	}

	if err := s.repo.AddMember(ctx, unitID, vendorID); err != nil {
		return err
	}

	s.log.Info("unit member added", "unit_id", unitID, "vendor_id", vendorID)
	return nil
}

// RemoveMember detaches a vendor from a unit. The vendor's queue entries go
// with the membership, so the external rotation must be resynced. Entries are
// removed first, through the distribution service's per-unit lock, so the
// membership row only disappears once the vendor is out of the rotation.
func (s *Service) RemoveMember(ctx context.Context, unitID, vendorID uuid.UUID) error {
	if s.queue != nil {
		if err := s.queue.RemoveVendorEntries(ctx, unitID, vendorID); err != nil {
			return err
		}
	}

	if err := s.repo.RemoveMember(ctx, unitID, vendorID); err != nil {
		return err
	}

	s.log.Info("unit member removed", "unit_id", unitID, "vendor_id", vendorID)
	s.bus.Publish(ctx, events.QueueMembershipChanged{
		BaseEvent: events.NewBaseEvent(),
		UnitID:    unitID,
	})

	return nil
}

// =============================================================================
// Directory lookups (consumed by the CRM sync adapter)
// =============================================================================

// UnitExternalDepartment resolves the unit's external CRM department id.
func (s *Service) UnitExternalDepartment(ctx context.Context, unitID uuid.UUID) (string, error) {
	u, err := s.repo.GetUnit(ctx, unitID)
	if err != nil {
		return "", err
	}
	return u.ExternalDepartmentID, nil
}

// VendorExternalUser resolves the vendor's external CRM user id.
func (s *Service) VendorExternalUser(ctx context.Context, vendorID uuid.UUID) (string, error) {
	v, err := s.repo.GetVendor(ctx, vendorID)
	if err != nil {
		return "", err
	}
	return v.ExternalUserID, nil
}

// =============================================================================
// Mappers
// =============================================================================

func toUnitResponse(u repository.Unit) transport.UnitResponse {
	return transport.UnitResponse{
		ID:                   u.ID,
		Name:                 u.Name,
		ExternalDepartmentID: u.ExternalDepartmentID,
		Active:               u.Active,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
}

func toVendorResponse(v repository.Vendor) transport.VendorResponse {
	return transport.VendorResponse{
		ID:             v.ID,
		Name:           v.Name,
		Phone:          v.Phone,
		ExternalUserID: v.ExternalUserID,
		Active:         v.Active,
		CreatedAt:      v.CreatedAt,
	}
}

func toVendorResponses(vendors []repository.Vendor) []transport.VendorResponse {
	out := make([]transport.VendorResponse, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, toVendorResponse(v))
	}
	return out
}
