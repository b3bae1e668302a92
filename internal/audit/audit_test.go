package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/auditflow/callpipe/internal/database"
	"github.com/auditflow/callpipe/internal/inference"
	"github.com/auditflow/callpipe/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedTranscribedCall(t *testing.T, db *gorm.DB, language string) *types.Call {
	t.Helper()
	call := types.Call{AudioName: "a.wav", BatchID: 1, Status: types.CallTranscriptDone, LanguageID: language}
	require.NoError(t, db.Create(&call).Error)
	require.NoError(t, db.Create(&types.TranscriptSegment{
		CallID: call.ID, Seq: 0, Text: "buy two lots of tcs", Language: language,
	}).Error)
	return &call
}

func TestAuditor_Run_AnswersEveryQuestion(t *testing.T) {
	var questions []string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/answer", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		questions = append(questions, req["question"])
		json.NewEncoder(w).Encode(map[string]string{"answer": "Yes"})
	}))
	defer llm.Close()

	db := newTestDB(t)
	call := seedTranscribedCall(t, db, "en")

	auditor := NewAuditor(db, inference.NewLLMClient(llm.URL, llm.URL))
	require.NoError(t, auditor.Run(context.Background(), call))

	assert.Len(t, questions, len(Catalog))

	var answers []types.AuditAnswer
	require.NoError(t, db.Where("call_id = ?", call.ID).Find(&answers).Error)
	require.Len(t, answers, len(Catalog))
	assert.Equal(t, "Yes", answers[0].Answer)
}

func TestAuditor_Run_TranslatesNonEnglishTranscript(t *testing.T) {
	var auditedTranscript string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch r.URL.Path {
		case "/answer":
			auditedTranscript = req["transcript"]
			json.NewEncoder(w).Encode(map[string]string{"answer": "Yes"})
		default:
			assert.Equal(t, "en", req["target_language"])
			json.NewEncoder(w).Encode(map[string]string{"text": "translated transcript"})
		}
	}))
	defer llm.Close()

	db := newTestDB(t)
	call := seedTranscribedCall(t, db, "hi")

	auditor := NewAuditor(db, inference.NewLLMClient(llm.URL, llm.URL))
	require.NoError(t, auditor.Run(context.Background(), call))

	assert.Equal(t, "translated transcript", auditedTranscript)
}

func TestAuditor_Run_TranslationFailureFailsRun(t *testing.T) {
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/answer" {
			json.NewEncoder(w).Encode(map[string]string{"answer": "Yes"})
			return
		}
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer llm.Close()

	db := newTestDB(t)
	call := seedTranscribedCall(t, db, "ta")

	auditor := NewAuditor(db, inference.NewLLMClient(llm.URL, llm.URL))
	require.Error(t, auditor.Run(context.Background(), call))

	var count int64
	require.NoError(t, db.Model(&types.AuditAnswer{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAuditor_Run_EmptyTranscriptIsError(t *testing.T) {
	db := newTestDB(t)
	call := types.Call{AudioName: "a.wav", BatchID: 1, Status: types.CallTranscriptDone}
	require.NoError(t, db.Create(&call).Error)

	auditor := NewAuditor(db, inference.NewLLMClient("http://localhost:1", "http://localhost:1"))
	assert.Error(t, auditor.Run(context.Background(), &call))
}
