// Package audit answers the compliance question catalog against a call's
// transcript and notifies the external auditing UI of status changes.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/inference"
	"github.com/auditflow/callpipe/internal/types"
)

// Question is one audit-form question.
type Question struct {
	ID   string
	Text string
}

// Catalog is the fixed audit-form question set. The wording lives with the
// external form definition; ids are stable.
var Catalog = []Question{
	{ID: "q_greeting", Text: "Did the dealer identify themselves and the firm at the start of the call?"},
	{ID: "q_order_confirmed", Text: "Was the order read back to the client and explicitly confirmed?"},
	{ID: "q_price_quoted", Text: "Was the execution price quoted to the client?"},
	{ID: "q_quantity_quoted", Text: "Was the quantity or lot count stated to the client?"},
	{ID: "q_risk_disclosure", Text: "Were the required risk disclosures made where applicable?"},
	{ID: "q_unauthorized_advice", Text: "Did the dealer offer unsolicited investment advice?"},
}

// Auditor runs the question catalog for a call through the LLM endpoint.
type Auditor struct {
	db     *gorm.DB
	llm    *inference.LLMClient
	logger zerolog.Logger
}

// NewAuditor builds an auditor over the shared LLM client.
func NewAuditor(db *gorm.DB, llm *inference.LLMClient) *Auditor {
	return &Auditor{
		db:     db,
		llm:    llm,
		logger: log.With().Str("component", "auditor").Logger(),
	}
}

// Run answers every catalog question against the call's transcript and
// persists the answers. A single question's failure fails the whole run so
// the call can be retried as one unit.
func (a *Auditor) Run(ctx context.Context, call *types.Call) error {
	var segments []types.TranscriptSegment
	if err := a.db.Where("call_id = ?", call.ID).Order("seq").Find(&segments).Error; err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("call %d has no transcript to audit", call.ID)
	}

	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	transcript := sb.String()

	// The question model is English-only; non-English calls are audited
	// against a translated transcript.
	if lang := strings.ToLower(strings.TrimSpace(call.LanguageID)); lang != "" && lang != "en" {
		translated, err := a.llm.Translate(ctx, transcript, "en")
		if err != nil {
			return fmt.Errorf("translating call %d transcript: %w", call.ID, err)
		}
		transcript = translated
	}

	answers := make([]types.AuditAnswer, 0, len(Catalog))
	for _, q := range Catalog {
		answer, err := a.llm.AnswerQuestion(ctx, transcript, q.Text)
		if err != nil {
			return fmt.Errorf("answering %s: %w", q.ID, err)
		}
		answers = append(answers, types.AuditAnswer{
			CallID:     call.ID,
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     answer,
		})
	}

	if err := a.db.Create(&answers).Error; err != nil {
		return err
	}
	a.logger.Info().Uint("call_id", call.ID).Int("answers", len(answers)).Msg("audit answers persisted")
	return nil
}
