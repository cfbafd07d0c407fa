package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Meta carries envelope extras; pagination for list endpoints.
type Meta map[string]any

// Pagination is the Meta every list endpoint returns. total is the filtered
// row count, not the page length.
func Pagination(limit, offset int, total int64) Meta {
	return Meta{
		"limit":  limit,
		"offset": offset,
		"total":  total,
	}
}

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Meta    Meta   `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta Meta) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta Meta) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}
