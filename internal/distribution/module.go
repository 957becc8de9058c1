// Package distribution provides the lead distribution bounded context: the
// per-unit rotation queue, the distribution audit log, and the endpoint
// that hands each inbound lead to the next eligible vendor.
package distribution

import (
	"salesops_backend/internal/distribution/handler"
	"salesops_backend/internal/distribution/ports"
	"salesops_backend/internal/distribution/repository"
	"salesops_backend/internal/distribution/service"
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the distribution bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the distribution module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "distribution"
}

// Service returns the rotation engine for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// SetCRM injects the CRM sync adapter (wired in the composition root).
func (m *Module) SetCRM(crm ports.CRMSync) {
	m.service.SetCRM(crm)
}

// SetScheduler injects the deferred-sync scheduler.
func (m *Module) SetScheduler(sched ports.SyncScheduler) {
	m.service.SetScheduler(sched)
}

// RegisterRoutes mounts distribution routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Machine-facing distribution endpoint (API-key guarded)
	ctx.Webhook.POST("/distribution/assign", m.handler.Assign)

	// Admin-facing queue and log endpoints
	units := ctx.Admin.Group("/units/:unitId")
	units.GET("/queue", m.handler.GetQueue)
	units.PUT("/queue", m.handler.ReplaceQueue)
	units.POST("/queue/vendors", m.handler.AddVendor)
	units.DELETE("/queue/entries/:entryId", m.handler.RemoveEntry)
	units.POST("/queue/absences", m.handler.RecordAbsence)
	units.GET("/distribution-logs", m.handler.ListLogs)
	units.DELETE("/distribution-logs", m.handler.ClearLogs)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
