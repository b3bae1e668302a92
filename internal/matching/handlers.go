package matching

import (
	"github.com/gin-gonic/gin"

	"github.com/auditflow/callpipe/pkg/response"
)

// GinHandlers contains HTTP handlers for the matching endpoints.
type GinHandlers struct {
	engine *Engine
}

// NewGinHandlers creates the HTTP handlers for the matching engine.
func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{engine: engine}
}

// RunSliceHandler handles POST requests that run a bounded slice of the
// batch's trade-matching work. Cooperating machines fan the index space out
// between themselves through this endpoint.
func (h *GinHandlers) RunSliceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BatchID   uint `json:"batch_id" binding:"required"`
			FromIndex int  `json:"from_index"`
			ToIndex   int  `json:"to_index"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		to := req.ToIndex
		if to == 0 {
			to = -1
		}
		if err := h.engine.RunRange(c.Request.Context(), req.BatchID, req.FromIndex, to); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{
			"batch_id":   req.BatchID,
			"from_index": req.FromIndex,
			"to_index":   req.ToIndex,
		})
	}
}

// ReevaluateHandler handles POST requests that trigger the second pass over
// already-tagged trades once conversation extraction has landed.
func (h *GinHandlers) ReevaluateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BatchID uint `json:"batch_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.engine.ReevaluateTaggedTrades(c.Request.Context(), req.BatchID); err != nil {
			response.InternalError(c, err.Error())
			return
		}
		response.Success(c, gin.H{"batch_id": req.BatchID})
	}
}
