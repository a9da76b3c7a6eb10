package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/service"
)

// Discoverer runs one discovery pass.
type Discoverer interface {
	Discover(ctx context.Context, req *service.CandidateRequest) (*service.DiscoverStats, error)
}

// DiscoverHandler triggers discovery runs. Only one run executes at a time
// per API process; concurrent runs from other processes are still safe.
type DiscoverHandler struct {
	discoverer Discoverer

	mu            sync.RWMutex
	isRunning     bool
	lastRunTime   time.Time
	lastRunStatus string
	lastStats     *service.DiscoverStats
}

// NewDiscoverHandler creates a new discover handler.
func NewDiscoverHandler(discoverer Discoverer) *DiscoverHandler {
	return &DiscoverHandler{discoverer: discoverer}
}

// DiscoverRequest represents the discover API request.
type DiscoverRequest struct {
	Mode      string   `json:"mode" binding:"required"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Dates     []string `json:"dates"`
	Keys      []string `json:"keys"`
}

// DiscoverStatusResponse represents the last discovery run.
type DiscoverStatusResponse struct {
	IsRunning     bool                   `json:"is_running"`
	LastRunTime   string                 `json:"last_run_time,omitempty"`
	LastRunStatus string                 `json:"last_run_status,omitempty"`
	LastStats     *service.DiscoverStats `json:"last_stats,omitempty"`
}

// Trigger handles POST /api/v1/discover.
func (h *DiscoverHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid discover request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := service.ParseDiscoverMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Discover request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Discovery is already running"})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting discovery: mode=%s, client_ip=%s", mode, c.ClientIP())

	stats, err := h.discoverer.Discover(ctx, &service.CandidateRequest{
		Mode:      mode,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Dates:     req.Dates,
		Keys:      req.Keys,
	})

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = time.Now()
	h.lastStats = stats
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "completed"
	}
	h.mu.Unlock()

	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Discovery failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "stats": stats})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Status handles GET /api/v1/discover/status.
func (h *DiscoverHandler) Status(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := DiscoverStatusResponse{
		IsRunning:     h.isRunning,
		LastRunStatus: h.lastRunStatus,
		LastStats:     h.lastStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
