package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/models"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/registry"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/scheduler"
)

// DeliverableHandler is the conversational agent's surface over the registry.
type DeliverableHandler struct {
	Repo      repository.Repository
	Registry  *registry.Service
	Scheduler *scheduler.Scheduler
}

func (h *DeliverableHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/deliverables")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/promote", h.promote)
	g.POST("/:id/archive", h.archive)
	g.POST("/:id/run", h.runNow)
}

func (h *DeliverableHandler) create(c *gin.Context) {
	var spec registry.CreateSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if spec.Origin == "" {
		spec.Origin = models.OriginUserConfigured
	}
	item, err := h.Registry.Create(c.Request.Context(), spec)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *DeliverableHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListDeliverablesParams{
		Limit:   limit,
		Offset:  offset,
		UserID:  strQuery(c, "user_id"),
		Status:  strQuery(c, "status"),
		Binding: strQuery(c, "binding"),
		Origin:  strQuery(c, "origin"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListDeliverables(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountDeliverables(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, Pagination(limit, offset, total))
}

func (h *DeliverableHandler) get(c *gin.Context) {
	item, err := h.Repo.GetDeliverableByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "deliverable not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *DeliverableHandler) pause(c *gin.Context) {
	h.transition(c, h.Registry.Pause)
}

func (h *DeliverableHandler) resume(c *gin.Context) {
	h.transition(c, h.Registry.Resume)
}

func (h *DeliverableHandler) archive(c *gin.Context) {
	h.transition(c, h.Registry.Archive)
}

func (h *DeliverableHandler) transition(c *gin.Context, op func(ctx context.Context, id string) error) {
	if err := op(c.Request.Context(), c.Param("id")); err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, gin.H{"id": c.Param("id")}, nil)
}

type promoteRequest struct {
	Frequency string `json:"frequency"`
	ByDay     string `json:"by_day"`
	AtTime    string `json:"at_time"`
	Timezone  string `json:"timezone"`
}

func (h *DeliverableHandler) promote(c *gin.Context) {
	var req promoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	item, err := h.Registry.PromoteToRecurring(c.Request.Context(),
		c.Param("id"), req.Frequency, req.ByDay, req.AtTime, req.Timezone)
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

func (h *DeliverableHandler) runNow(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	version, err := h.Scheduler.RunNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, statusFor(err), err.Error(), nil)
		return
	}
	Ok(c, version, nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidTransition),
		errors.Is(err, registry.ErrNotPromotable),
		errors.Is(err, repository.ErrExecutionInFlight),
		errors.Is(err, scheduler.ErrNotRunnable):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func strQuery(c *gin.Context, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolPtr(v bool) *bool { return &v }
