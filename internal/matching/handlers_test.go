package matching

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/callpipe/internal/types"
)

func newTestRouter(t *testing.T, engine *Engine) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewGinHandlers(engine)
	router.POST("/matching/run", h.RunSliceHandler())
	router.POST("/matching/reevaluate", h.ReevaluateHandler())
	return router
}

func TestRunSliceHandler_RunsBoundedSlice(t *testing.T) {
	db := newTestDB(t)
	batch := newTestBatch(t, db)
	for _, order := range []string{"O1", "O2"} {
		require.NoError(t, db.Create(&types.TradeMetadata{
			OrderID:         order,
			TradeDate:       tradeDay(),
			OrderPlacedTime: at(10, 0),
			BatchID:         batch.ID,
		}).Error)
	}

	router := newTestRouter(t, NewEngine(db, supportedEN))

	body := []byte(`{"batch_id": 1, "from_index": 0, "to_index": 1}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/matching/run", bytes.NewReader(body)))
	assert.Equal(t, http.StatusCreated, w.Code)

	var trades []types.TradeMetadata
	require.NoError(t, db.Order("id").Find(&trades).Error)
	assert.Equal(t, "No call record found", trades[0].VoiceRecordingConfirmations)
	assert.Empty(t, trades[1].VoiceRecordingConfirmations)
}

func TestRunSliceHandler_ZeroToIndexMeansAll(t *testing.T) {
	db := newTestDB(t)
	batch := newTestBatch(t, db)
	for _, order := range []string{"O1", "O2"} {
		require.NoError(t, db.Create(&types.TradeMetadata{
			OrderID:         order,
			TradeDate:       tradeDay(),
			OrderPlacedTime: at(10, 0),
			BatchID:         batch.ID,
		}).Error)
	}

	router := newTestRouter(t, NewEngine(db, supportedEN))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/matching/run",
		bytes.NewReader([]byte(`{"batch_id": 1}`))))
	assert.Equal(t, http.StatusCreated, w.Code)

	var trades []types.TradeMetadata
	require.NoError(t, db.Find(&trades).Error)
	for _, trade := range trades {
		assert.Equal(t, "No call record found", trade.VoiceRecordingConfirmations)
	}
}

func TestRunSliceHandler_MissingBatchID(t *testing.T) {
	router := newTestRouter(t, NewEngine(newTestDB(t), supportedEN))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/matching/run",
		bytes.NewReader([]byte(`{"from_index": 0}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReevaluateHandler(t *testing.T) {
	db := newTestDB(t)
	newTestBatch(t, db)
	router := newTestRouter(t, NewEngine(db, supportedEN))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/matching/reevaluate",
		bytes.NewReader([]byte(`{"batch_id": 1}`))))
	assert.Equal(t, http.StatusCreated, w.Code)
}
