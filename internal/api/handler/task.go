package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/flatsync/internal/api/middleware"
	"github.com/timmy/flatsync/internal/domain"
	"github.com/timmy/flatsync/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TaskReader is the read side of the task store plus lease release.
type TaskReader interface {
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error)
	ListByStatus(ctx context.Context, status domain.TaskStatus, limit, offset int) ([]domain.Task, error)
	GetByFileKey(ctx context.Context, fileKey string) (*domain.Task, error)
	GetByID(ctx context.Context, id uint) (*domain.Task, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// TaskHandler serves task status queries.
type TaskHandler struct {
	tasks TaskReader
}

// NewTaskHandler creates a new task handler.
// Parameters:
//   - tasks: task store.
//
// Returns:
//   - *TaskHandler: initialized handler.
func NewTaskHandler(tasks TaskReader) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// TaskListResponse is the body of GET /api/v1/tasks.
type TaskListResponse struct {
	Status string        `json:"status"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Tasks  []domain.Task `json:"tasks"`
}

// Stats handles GET /api/v1/tasks/stats.
func (h *TaskHandler) Stats(c *gin.Context) {
	counts, err := h.tasks.CountByStatus(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}

	var total int64
	byStatus := make(map[string]int64, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"by_status": byStatus,
	})
}

// List handles GET /api/v1/tasks?status=&limit=&offset=.
func (h *TaskHandler) List(c *gin.Context) {
	status, ok := domain.ParseTaskStatus(c.DefaultQuery("status", string(domain.TaskStatusPending)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + c.Query("status")})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
		return
	}

	tasks, err := h.tasks.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	c.JSON(http.StatusOK, TaskListResponse{
		Status: string(status),
		Limit:  limit,
		Offset: offset,
		Tasks:  tasks,
	})
}

// Lookup handles GET /api/v1/tasks/lookup?file_key=.
func (h *TaskHandler) Lookup(c *gin.Context) {
	key := c.Query("file_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_key is required"})
		return
	}
	task, err := h.tasks.GetByFileKey(c.Request.Context(), key)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Get handles GET /api/v1/tasks/:id.
func (h *TaskHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ReleaseStaleRequest is the body of POST /api/v1/tasks/release-stale.
type ReleaseStaleRequest struct {
	OlderThan string `json:"older_than" binding:"required"`
}

// ReleaseStale handles POST /api/v1/tasks/release-stale.
func (h *TaskHandler) ReleaseStale(c *gin.Context) {
	var req ReleaseStaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "older_than must be a positive duration such as 30m"})
		return
	}

	n, err := h.tasks.ReleaseStale(c.Request.Context(), olderThan)
	if err != nil {
		h.storeError(c, err)
		return
	}
	middleware.GetLogger(c).WithField("released", n).Warn("Released stale tasks on request")
	c.JSON(http.StatusOK, gin.H{"released": n})
}

func (h *TaskHandler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case repository.IsUnavailable(err):
		middleware.GetLogger(c).WithError(err).Error("Task store unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store unavailable"})
	default:
		middleware.GetLogger(c).WithError(err).Error("Task query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
