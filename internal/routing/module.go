// Package routing wires the routing bounded context: repositories, decision
// engine, SLA manager, approval queue, and the HTTP surface.
package routing

import (
	"fmt"

	"leadrouter/internal/consent"
	"leadrouter/internal/directory"
	"leadrouter/internal/events"
	apphttp "leadrouter/internal/http"
	"leadrouter/internal/outbox"
	"leadrouter/internal/routing/approval"
	"leadrouter/internal/routing/engine"
	"leadrouter/internal/routing/handler"
	"leadrouter/internal/routing/repository"
	"leadrouter/internal/routing/scoring"
	routingservice "leadrouter/internal/routing/service"
	"leadrouter/internal/routing/sla"
	"leadrouter/internal/tenants"
	"leadrouter/platform/config"
	"leadrouter/platform/logger"
	"leadrouter/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps are the shared dependencies the module is built from.
type Deps struct {
	Pool      *pgxpool.Pool
	Bus       events.Bus
	Logger    *logger.Logger
	Config    config.RoutingConfig
	Tenants   tenants.Reader
	Validator *validator.Validator
}

// Module is the routing bounded context.
type Module struct {
	handler *handler.Handler

	service   *routingservice.Service
	approvals *approval.Service
	outbox    *outbox.Repository
	sla       *sla.Manager
}

// NewModule builds the routing context on top of the shared infrastructure.
func NewModule(deps Deps) (*Module, error) {
	weights, err := scoring.LoadWeights(deps.Config.GetScoringWeightsFile())
	if err != nil {
		return nil, fmt.Errorf("scoring weights: %w", err)
	}

	outboxRepo := outbox.New(deps.Pool)
	repo := repository.New(deps.Pool, outboxRepo)
	dir := directory.New(deps.Pool)
	consentRepo := consent.New(deps.Pool)

	slaManager := sla.NewManager(repo, deps.Bus, deps.Logger)
	svc := routingservice.New(repo, dir, deps.Tenants, consentRepo,
		engine.New(scoring.New(weights)), slaManager,
		deps.Bus, deps.Logger, deps.Config)
	approvals := approval.NewService(repo, deps.Bus)

	return &Module{
		handler:   handler.New(svc, approvals, deps.Validator),
		service:   svc,
		approvals: approvals,
		outbox:    outboxRepo,
		sla:       slaManager,
	}, nil
}

func (m *Module) Name() string { return "routing" }

// Service exposes the routing application service to the scheduler worker.
func (m *Module) Service() *routingservice.Service { return m.service }

// Outbox exposes the outbox repository to the dispatcher.
func (m *Module) Outbox() *outbox.Repository { return m.outbox }

// RegisterRoutes mounts the routing surface under the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/routing")

	g.POST("/assign", m.handler.Assign)

	g.GET("/rules", m.handler.ListRules)
	g.POST("/rules", m.handler.CreateRule)
	g.PUT("/rules/:id", m.handler.UpdateRule)
	g.DELETE("/rules/:id", m.handler.DeleteRule)

	g.GET("/capacity", m.handler.Capacity)
	g.GET("/events", m.handler.Events)
	g.GET("/metrics", m.handler.Metrics)

	g.GET("/sla/dashboard", m.handler.SlaDashboard)
	g.POST("/sla/process", m.handler.ProcessSla)

	g.POST("/leads/:id/first-touch", m.handler.FirstTouch)
	g.POST("/leads/:id/appointment-kept", m.handler.AppointmentKept)

	g.GET("/approvals", m.handler.ListApprovals)
	g.POST("/approvals/:id/approve", m.handler.Approve)
	g.POST("/approvals/:id/reject", m.handler.Reject)
}
