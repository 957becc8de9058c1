// Package units provides the unit/vendor administration bounded context:
// sales units, their vendor roster, and unit membership. The distribution
// queue validates membership against this module's tables, and the CRM sync
// adapter resolves external ids through its directory lookups.
package units

import (
	"salesops_backend/internal/events"
	apphttp "salesops_backend/internal/http"
	"salesops_backend/internal/units/handler"
	"salesops_backend/internal/units/repository"
	"salesops_backend/internal/units/service"
	"salesops_backend/platform/logger"
	"salesops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the units bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the units module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "units"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// SetQueueMaintainer injects the distribution service so member removal can
// drop queue entries under the unit's queue lock.
func (m *Module) SetQueueMaintainer(queue service.QueueMaintainer) {
	m.service.SetQueueMaintainer(queue)
}

// RegisterRoutes mounts unit and vendor admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	admin := ctx.Admin

	admin.GET("/units", m.handler.ListUnits)
	admin.POST("/units", m.handler.CreateUnit)
	admin.GET("/units/:unitId", m.handler.GetUnit)
	admin.PUT("/units/:unitId", m.handler.UpdateUnit)
	admin.DELETE("/units/:unitId", m.handler.DeleteUnit)

	admin.GET("/units/:unitId/members", m.handler.ListMembers)
	admin.POST("/units/:unitId/members", m.handler.AddMember)
	admin.DELETE("/units/:unitId/members/:vendorId", m.handler.RemoveMember)

	admin.GET("/vendors", m.handler.ListVendors)
	admin.POST("/vendors", m.handler.CreateVendor)
	admin.DELETE("/vendors/:vendorId", m.handler.DeleteVendor)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
