package orchestrator

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/pkg/response"
)

// GinHandlers contains the read-only HTTP handlers the external dashboard
// pulls batch progress from.
type GinHandlers struct {
	db *Database
}

// NewGinHandlers creates the orchestrator HTTP handlers.
func NewGinHandlers(gormDB *gorm.DB) *GinHandlers {
	return &GinHandlers{db: NewDatabase(gormDB)}
}

// CurrentBatchHandler handles GET requests for the active batch and its
// per-status call counts.
func (h *GinHandlers) CurrentBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batch, err := h.db.GetCurrentBatch()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		if batch == nil {
			response.NotFound(c, "no active batch")
			return
		}
		counts, err := h.db.CallCountsByStatus(batch.ID)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{
			"batch":       batch,
			"call_counts": counts,
		})
	}
}
