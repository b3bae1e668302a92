package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/auditflow/callpipe/internal/types"
	"github.com/auditflow/callpipe/pkg/response"
)

// StatusEvent is the webhook payload emitted on every call status change.
// The external auditing UI consumes the same shape on its receiver.
type StatusEvent struct {
	CallID    uint      `json:"call_id"`
	AudioName string    `json:"audio_name"`
	BatchID   uint      `json:"batch_id"`
	Status    string    `json:"status"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier posts status events to the auditing UI. Delivery is
// fire-and-forget: failures are logged, never retried, and never block the
// pipeline.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNotifier builds a notifier. An empty URL yields a no-op notifier.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log.With().Str("component", "webhook_notifier").Logger(),
	}
}

// CallStatusChanged emits a status event for the call.
func (n *Notifier) CallStatusChanged(call *types.Call) {
	if n.url == "" {
		return
	}
	event := StatusEvent{
		CallID:    call.ID,
		AudioName: call.AudioName,
		BatchID:   call.BatchID,
		Status:    call.Status,
		Language:  call.LanguageID,
		Timestamp: time.Now(),
	}

	go func() {
		body, err := json.Marshal(event)
		if err != nil {
			n.logger.Error().Err(err).Msg("failed to encode status event")
			return
		}
		resp, err := n.httpClient.Post(n.url, "application/json", bytes.NewReader(body))
		if err != nil {
			n.logger.Warn().Err(err).Uint("call_id", event.CallID).Msg("status webhook delivery failed")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			n.logger.Warn().Int("code", resp.StatusCode).Uint("call_id", event.CallID).
				Msg("status webhook rejected")
		}
	}()
}

// GinHandlers contains the webhook receiver consumed by the dashboard
// deployment when this service is the UI-facing side.
type GinHandlers struct {
	logger zerolog.Logger
}

// NewGinHandlers creates the audit HTTP handlers.
func NewGinHandlers() *GinHandlers {
	return &GinHandlers{logger: log.With().Str("component", "webhook_receiver").Logger()}
}

// ReceiveCallStatusHandler handles POST requests carrying call status
// change events from a peer deployment.
func (h *GinHandlers) ReceiveCallStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var event StatusEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Info().
			Uint("call_id", event.CallID).
			Str("audio", event.AudioName).
			Str("status", event.Status).
			Msg("call status event received")
		response.Success(c, gin.H{"received": true})
	}
}
