package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/flatsync/internal/api/middleware"
	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/repository"
)

// RunReader reads persisted discovery runs.
type RunReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.DiscoverRun, error)
	GetByID(ctx context.Context, id string) (*domain.DiscoverRun, error)
}

// RunHandler serves discovery run history.
type RunHandler struct {
	runs RunReader
}

func NewRunHandler(runs RunReader) *RunHandler {
	return &RunHandler{runs: runs}
}

// List handles GET /api/v1/discover/runs?limit=20.
func (h *RunHandler) List(c *gin.Context) {
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Get handles GET /api/v1/discover/runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case repository.IsUnavailable(err):
		middleware.GetLogger(c).WithError(err).Error("Task store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
