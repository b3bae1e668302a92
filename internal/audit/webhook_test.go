package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/callpipe/internal/types"
)

func TestNotifier_DeliversEvent(t *testing.T) {
	var mu sync.Mutex
	var got StatusEvent
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		close(done)
	}))
	defer server.Close()

	n := NewNotifier(server.URL)
	call := &types.Call{AudioName: "a.wav", BatchID: 3, Status: types.CallTranscriptDone, LanguageID: "en"}
	call.ID = 9
	n.CallStatusChanged(call)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint(9), got.CallID)
	assert.Equal(t, "a.wav", got.AudioName)
	assert.Equal(t, uint(3), got.BatchID)
	assert.Equal(t, types.CallTranscriptDone, got.Status)
	assert.Equal(t, "en", got.Language)
}

func TestNotifier_EmptyURLIsNoop(t *testing.T) {
	n := NewNotifier("")
	// Must not panic or block.
	n.CallStatusChanged(&types.Call{AudioName: "a.wav"})
}

func TestReceiveCallStatusHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook/call-status", NewGinHandlers().ReceiveCallStatusHandler())

	event := StatusEvent{CallID: 1, AudioName: "a.wav", Status: "Complete", Timestamp: time.Now()}
	body, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/webhook/call-status", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook/call-status", bytes.NewReader([]byte("{bad")))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
