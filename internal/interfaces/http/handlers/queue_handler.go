package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"sepolia-wallet.backend/internal/domain/entities"
	domainerrors "sepolia-wallet.backend/internal/domain/errors"
	"sepolia-wallet.backend/internal/infrastructure/queue"
	"sepolia-wallet.backend/internal/interfaces/http/response"
)

type queueInspector interface {
	Stats(ctx context.Context) (*entities.QueueStats, error)
	JobStatus(ctx context.Context, id string) (*entities.JobStatus, error)
}

// QueueHandler exposes confirmation queue counters
type QueueHandler struct {
	queue queueInspector
}

func NewQueueHandler(q *queue.RedisQueue) *QueueHandler {
	return &QueueHandler{queue: q}
}

// GetStats counts jobs per state
// GET /api/v1/queue/stats
func (h *QueueHandler) GetStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GetJob reports the state of a single job. Unknown ids are reported
// with state not_found rather than a 404.
// GET /api/v1/queue/jobs/:id
func (h *QueueHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid job ID"))
		return
	}

	status, err := h.queue.JobStatus(c.Request.Context(), id.String())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}
