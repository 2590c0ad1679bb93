package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gitflash/interviewd/internal/dtos"
	"github.com/gitflash/interviewd/internal/services"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	service *services.InterviewService
	db      Pinger
}

// NewHealthHandler takes a nil db when the service runs without Postgres.
func NewHealthHandler(service *services.InterviewService, db Pinger) *HealthHandler {
	return &HealthHandler{service: service, db: db}
}

func (h *HealthHandler) Health(c *gin.Context) {
	resp := dtos.HealthResponse{
		Status:    "ok",
		Views:     h.service.ViewCount(),
		Database:  "disabled",
		Timestamp: time.Now().Unix(),
	}

	code := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	c.JSON(code, resp)
}
