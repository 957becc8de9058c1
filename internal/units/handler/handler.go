package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesops_backend/internal/units/service"
	"salesops_backend/internal/units/transport"
	"salesops_backend/platform/httpkit"
	"salesops_backend/platform/validator"
)

// Handler handles HTTP requests for unit and vendor administration.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid ID"
)

// New creates a new units handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// ListUnits retrieves all units.
// GET /api/v1/admin/units
func (h *Handler) ListUnits(c *gin.Context) {
	result, err := h.svc.ListUnits(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetUnit retrieves one unit.
// GET /api/v1/admin/units/:unitId
func (h *Handler) GetUnit(c *gin.Context) {
	id, ok := parseID(c, "unitId")
	if !ok {
		return
	}

	result, err := h.svc.GetUnit(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateUnit creates a unit.
// POST /api/v1/admin/units
func (h *Handler) CreateUnit(c *gin.Context) {
	var req transport.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateUnit(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// UpdateUnit updates a unit.
// PUT /api/v1/admin/units/:unitId
func (h *Handler) UpdateUnit(c *gin.Context) {
	id, ok := parseID(c, "unitId")
	if !ok {
		return
	}

	var req transport.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.UpdateUnit(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteUnit removes a unit.
// DELETE /api/v1/admin/units/:unitId
func (h *Handler) DeleteUnit(c *gin.Context) {
	id, ok := parseID(c, "unitId")
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteUnit(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

// ListVendors retrieves all vendors.
// GET /api/v1/admin/vendors
func (h *Handler) ListVendors(c *gin.Context) {
	result, err := h.svc.ListVendors(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateVendor creates a vendor.
// POST /api/v1/admin/vendors
func (h *Handler) CreateVendor(c *gin.Context) {
	var req transport.CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateVendor(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// DeleteVendor removes a vendor.
// DELETE /api/v1/admin/vendors/:vendorId
func (h *Handler) DeleteVendor(c *gin.Context) {
	id, ok := parseID(c, "vendorId")
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.DeleteVendor(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"deleted": true})
}

// ListMembers retrieves a unit's vendors.
// GET /api/v1/admin/units/:unitId/members
func (h *Handler) ListMembers(c *gin.Context) {
	unitID, ok := parseID(c, "unitId")
	if !ok {
		return
	}

	result, err := h.svc.ListMembers(c.Request.Context(), unitID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AddMember attaches a vendor to a unit.
// POST /api/v1/admin/units/:unitId/members
func (h *Handler) AddMember(c *gin.Context) {
	unitID, ok := parseID(c, "unitId")
	if !ok {
		return
	}

	var req transport.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if httpkit.HandleError(c, h.svc.AddMember(c.Request.Context(), unitID, req.VendorID)) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"added": true})
}

// RemoveMember detaches a vendor from a unit.
// DELETE /api/v1/admin/units/:unitId/members/:vendorId
func (h *Handler) RemoveMember(c *gin.Context) {
	unitID, ok := parseID(c, "unitId")
	if !ok {
		return
	}
	vendorID, ok := parseID(c, "vendorId")
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.RemoveMember(c.Request.Context(), unitID, vendorID)) {
		return
	}
	httpkit.OK(c, gin.H{"removed": true})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
