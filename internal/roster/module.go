package roster

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "churnwatch_backend/internal/http"
	"churnwatch_backend/platform/validator"
)

// Module is the roster bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

var _ apphttp.Module = (*Module)(nil)

func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	svc := NewService(NewRepository(pool))
	return &Module{
		handler: NewHandler(svc, val),
		service: svc,
	}
}

func (m *Module) Name() string { return "roster" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

// Service exposes the roster service so the churn module can resolve team
// scopes through it.
func (m *Module) Service() *Service { return m.service }
