// Package handler exposes the routing HTTP surface: assign, rule CRUD, read
// models, SLA hooks, and the approval queue. All routes are tenant-scoped
// through the authenticated identity.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"leadrouter/internal/routing/approval"
	"leadrouter/internal/routing/domain"
	"leadrouter/internal/routing/service"
	"leadrouter/internal/routing/transport"
	"leadrouter/platform/httpkit"
	"leadrouter/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc       *service.Service
	approvals *approval.Service
	validate  *validator.Validator
}

func New(svc *service.Service, approvals *approval.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, approvals: approvals, validate: validate}
}

// Assign handles POST /routing/assign.
func (h *Handler) Assign(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req transport.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.svc.Assign(c.Request.Context(), id.TenantID(), req.ToInput())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListRules handles GET /routing/rules.
func (h *Handler) ListRules(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	rules, err := h.svc.ListRules(c.Request.Context(), id.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"rules": rules})
}

// CreateRule handles POST /routing/rules.
func (h *Handler) CreateRule(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	var req transport.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	rule, err := h.svc.CreateRule(c.Request.Context(), id.TenantID(), req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, rule)
}

// UpdateRule handles PUT /routing/rules/:id.
func (h *Handler) UpdateRule(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	ruleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	rule, err := h.svc.UpdateRule(c.Request.Context(), id.TenantID(), ruleID, req.ToParams())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rule)
}

// DeleteRule handles DELETE /routing/rules/:id.
func (h *Handler) DeleteRule(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	ruleID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteRule(c.Request.Context(), id.TenantID(), ruleID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Capacity handles GET /routing/capacity.
func (h *Handler) Capacity(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	entries, err := h.svc.CapacityView(c.Request.Context(), id.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"agents": entries})
}

// Events handles GET /routing/events.
func (h *Handler) Events(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	leadID, ok := queryUUID(c, "leadId")
	if !ok {
		return
	}
	cursor, ok := queryUUID(c, "cursor")
	if !ok {
		return
	}

	page, err := h.svc.ListRouteEvents(c.Request.Context(), id.TenantID(), leadID, cursor, queryInt(c, "limit", 50))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"events": page.Events, "nextCursor": page.NextCursor})
}

// SlaDashboard handles GET /routing/sla/dashboard.
func (h *Handler) SlaDashboard(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	cursor, ok := queryUUID(c, "cursor")
	if !ok {
		return
	}

	page, err := h.svc.SlaDashboard(c.Request.Context(), id.TenantID(),
		domain.TimerStatus(c.Query("status")), cursor, queryInt(c, "limit", 50))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"timers": page.Timers, "nextCursor": page.NextCursor})
}

// ProcessSla handles POST /routing/sla/process, the manual sweep trigger.
func (h *Handler) ProcessSla(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	tenantID := id.TenantID()
	result, err := h.svc.ProcessSlaTimers(c.Request.Context(), &tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Metrics handles GET /routing/metrics.
func (h *Handler) Metrics(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	window := time.Duration(queryInt(c, "windowDays", 30)) * 24 * time.Hour
	metrics, err := h.svc.Metrics(c.Request.Context(), id.TenantID(), window)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, metrics)
}

// FirstTouch handles POST /routing/leads/:id/first-touch.
func (h *Handler) FirstTouch(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	leadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	n, err := h.svc.RecordFirstTouch(c.Request.Context(), id.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SatisfactionResponse{Satisfied: n})
}

// AppointmentKept handles POST /routing/leads/:id/appointment-kept.
func (h *Handler) AppointmentKept(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	leadID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	n, err := h.svc.RecordAppointmentKept(c.Request.Context(), id.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SatisfactionResponse{Satisfied: n})
}

// ListApprovals handles GET /routing/approvals.
func (h *Handler) ListApprovals(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	cursor, ok := queryUUID(c, "cursor")
	if !ok {
		return
	}

	page, err := h.approvals.List(c.Request.Context(), id.TenantID(),
		domain.QueueStatus(c.Query("status")), cursor, queryInt(c, "limit", 50))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, page)
}

// Approve handles POST /routing/approvals/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	resolution, err := h.approvals.Approve(c.Request.Context(), id.TenantID(), itemID, id.UserID(), req.AgentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resolution)
}

// Reject handles POST /routing/approvals/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	resolution, err := h.approvals.Reject(c.Request.Context(), id.TenantID(), itemID, id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resolution)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return parsed, true
}

// queryUUID parses an optional UUID query parameter; absent is nil.
func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return nil, false
	}
	return &parsed, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
