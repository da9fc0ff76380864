package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comm-terminal/internal/syncer"
	"comm-terminal/pkg/utils"
)

type SyncHandler struct {
	coord   *syncer.Coordinator
	metrics *syncer.MetricsTracker
}

func NewSyncHandler(coord *syncer.Coordinator, metrics *syncer.MetricsTracker) *SyncHandler {
	return &SyncHandler{coord: coord, metrics: metrics}
}

func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/stream/metrics", h.GetMetrics)
}

// GetMetrics exposes stream counters for operators watching sync health.
func (h *SyncHandler) GetMetrics(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Sync metrics retrieved", gin.H{
		"metrics":        h.metrics.Snapshot(),
		"active_streams": h.coord.ActiveKeys(),
	})
}
