// Package churn provides the churn follow-up bounded context module.
package churn

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"churnwatch_backend/internal/churn/domain"
	"churnwatch_backend/internal/churn/handler"
	"churnwatch_backend/internal/churn/repository"
	"churnwatch_backend/internal/churn/service"
	apphttp "churnwatch_backend/internal/http"
	"churnwatch_backend/platform/config"
	"churnwatch_backend/platform/events"
	"churnwatch_backend/platform/logger"
	"churnwatch_backend/platform/validator"
)

// Module is the churn bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

var _ apphttp.Module = (*Module)(nil)

// NewModule wires the churn repository, service and handler.
func NewModule(pool *pgxpool.Pool, roster service.TeamRoster, eventBus events.Bus, val *validator.Validator, cfg config.FollowUpConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, roster, domain.DefaultTaxonomy(), eventBus, log, cfg)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "churn" }

// RegisterRoutes mounts the churn routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected, ctx.Admin)
}

// Service exposes the workflow service for the scheduler wiring in main.
func (m *Module) Service() *service.Service { return m.service }
