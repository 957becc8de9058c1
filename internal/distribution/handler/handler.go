package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"salesops_backend/internal/distribution/service"
	"salesops_backend/internal/distribution/transport"
	"salesops_backend/platform/httpkit"
	"salesops_backend/platform/validator"
)

// Handler handles HTTP requests for lead distribution and queue administration.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidUnitID    = "invalid unit ID"
	msgInvalidEntryID   = "invalid entry ID"
)

// New creates a new distribution handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Assign hands the next eligible vendor the inbound lead.
// POST /api/v1/distribution/assign
// Accepts a JSON body or query-string parameters; legacy key names
// (unidade, idlead) are collapsed here and nowhere else.
func (h *Handler) Assign(c *gin.Context) {
	var req transport.AssignLeadRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	// Query-string invocation, and query fallback for partial bodies.
	if req.Unit == "" {
		req.Unit = c.Query("unit")
	}
	if req.Unidade == "" {
		req.Unidade = c.Query("unidade")
	}
	if req.LeadID == "" {
		req.LeadID = c.Query("leadId")
	}
	if req.IDLead == "" {
		req.IDLead = c.Query("idlead")
	}

	rawUnit, leadID := req.Normalize()
	if rawUnit == "" {
		httpkit.Error(c, http.StatusBadRequest, "unit is required", nil)
		return
	}

	unitID, err := uuid.Parse(rawUnit)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidUnitID, nil)
		return
	}

	result, err := h.svc.AssignLead(c.Request.Context(), unitID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetQueue returns the unit's rotation with computed stats.
// GET /api/v1/admin/units/:unitId/queue
func (h *Handler) GetQueue(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	result, err := h.svc.GetQueue(c.Request.Context(), unitID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ReplaceQueue replaces the full ordered entry list.
// PUT /api/v1/admin/units/:unitId/queue
func (h *Handler) ReplaceQueue(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	var req transport.ReplaceQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ReplaceQueue(c.Request.Context(), unitID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AddVendor appends a vendor at the tail of the rotation.
// POST /api/v1/admin/units/:unitId/queue/vendors
func (h *Handler) AddVendor(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	var req transport.AddVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.AddVendor(c.Request.Context(), unitID, req.VendorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// RemoveEntry removes one queue position.
// DELETE /api/v1/admin/units/:unitId/queue/entries/:entryId
func (h *Handler) RemoveEntry(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidEntryID, nil)
		return
	}

	if httpkit.HandleError(c, h.svc.RemoveEntry(c.Request.Context(), unitID, entryID)) {
		return
	}
	httpkit.OK(c, gin.H{"removed": true})
}

// RecordAbsence registers a vendor's absence window.
// POST /api/v1/admin/units/:unitId/queue/absences
func (h *Handler) RecordAbsence(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	var req transport.RecordAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if httpkit.HandleError(c, h.svc.RecordAbsence(c.Request.Context(), unitID, req.VendorID, req.ReturnAt)) {
		return
	}
	httpkit.OK(c, gin.H{"recorded": true})
}

// ListLogs reads the unit's distribution audit records.
// GET /api/v1/admin/units/:unitId/distribution-logs?limit=50&before=<RFC3339>
func (h *Handler) ListLogs(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid before cursor", nil)
			return
		}
		before = &ts
	}

	result, err := h.svc.ListLogs(c.Request.Context(), unitID, limit, before)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ClearLogs removes all audit records for a unit. Maintenance only.
// DELETE /api/v1/admin/units/:unitId/distribution-logs
func (h *Handler) ClearLogs(c *gin.Context) {
	unitID, ok := parseUnitID(c)
	if !ok {
		return
	}

	result, err := h.svc.ClearLogs(c.Request.Context(), unitID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func parseUnitID(c *gin.Context) (uuid.UUID, bool) {
	unitID, err := uuid.Parse(c.Param("unitId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidUnitID, nil)
		return uuid.UUID{}, false
	}
	return unitID, true
}
