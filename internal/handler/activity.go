package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kvkthecreator/yarnnnn-sub001/internal/repository"
)

// ActivityHandler is a read-only window into the provenance log.
type ActivityHandler struct {
	Repo repository.Repository
}

func (h *ActivityHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/activity", h.list)
}

func (h *ActivityHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	var since *time.Time
	if v := strings.TrimSpace(c.Query("since")); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid since timestamp", nil)
			return
		}
		t := ts.UTC()
		since = &t
	}
	params := repository.ListActivityParams{
		Limit:     limit,
		Offset:    offset,
		UserID:    strQuery(c, "user_id"),
		EventType: strQuery(c, "event_type"),
		RefID:     strQuery(c, "ref_id"),
		Since:     since,
	}
	items, err := h.Repo.ListActivity(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountActivity(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, Pagination(limit, offset, total))
}
