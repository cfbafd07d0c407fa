package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/delivery"
	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// VersionHandler exposes version history plus the review verdicts.
type VersionHandler struct {
	Repo     repository.Repository
	Delivery *delivery.Service
}

func (h *VersionHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/deliverables/:id/versions", h.listForDeliverable)
	g := r.Group("/api/v1/versions")
	g.GET("/:id", h.get)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
}

func (h *VersionHandler) listForDeliverable(c *gin.Context) {
	deliverableID := c.Param("id")
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListVersionsParams{
		Limit:         limit,
		Offset:        offset,
		DeliverableID: &deliverableID,
		Status:        strQuery(c, "status"),
		OrderBy:       "version_number",
		Asc:           boolPtr(false),
	}
	items, err := h.Repo.ListVersions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountVersions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, Pagination(limit, offset, total))
}

func (h *VersionHandler) get(c *gin.Context) {
	item, err := h.Repo.GetVersionByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "version not found", nil)
		return
	}
	Ok(c, item, nil)
}

type approveRequest struct {
	// FinalContent is the user-edited body to ship. Empty means approve as
	// generated.
	FinalContent string `json:"final_content"`
}

func (h *VersionHandler) approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	version, err := h.Delivery.Approve(c.Request.Context(), c.Param("id"), req.FinalContent)
	if err != nil {
		Error(c, versionStatusFor(err), err.Error(), nil)
		return
	}
	Ok(c, version, nil)
}

func (h *VersionHandler) reject(c *gin.Context) {
	if err := h.Delivery.Reject(c.Request.Context(), c.Param("id")); err != nil {
		Error(c, versionStatusFor(err), err.Error(), nil)
		return
	}
	Ok(c, gin.H{"id": c.Param("id")}, nil)
}

func versionStatusFor(err error) int {
	switch {
	case errors.Is(err, delivery.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrNotStaged),
		errors.Is(err, repository.ErrVersionImmutable):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
