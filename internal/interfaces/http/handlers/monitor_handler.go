package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/internal/infrastructure/jobs"
	"sepolia-wallet.backend/internal/interfaces/http/response"
)

type monitorService interface {
	Status(ctx context.Context) (*entities.MonitorStatus, error)
	TriggerScan(ctx context.Context) (*entities.ScanReport, error)
}

// MonitorHandler exposes the block monitor
type MonitorHandler struct {
	monitor monitorService
}

func NewMonitorHandler(monitor *jobs.BlockMonitorJob) *MonitorHandler {
	return &MonitorHandler{monitor: monitor}
}

// GetStatus reports cursor position and loop state
// GET /api/v1/blockchain-monitor/status
func (h *MonitorHandler) GetStatus(c *gin.Context) {
	status, err := h.monitor.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// TriggerScan runs one scan cycle immediately. A cycle that is already
// running makes this one a skipped no-op.
// POST /api/v1/blockchain-monitor/scan
func (h *MonitorHandler) TriggerScan(c *gin.Context) {
	report, err := h.monitor.TriggerScan(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Blockchain scan triggered successfully",
		"report":  report,
	})
}
