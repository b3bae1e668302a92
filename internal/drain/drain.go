// Package drain claims one call at a time and drives it through
// transcription and audit. Multiple instances cooperate safely through
// row-level claiming; each instance owns a claimed call exclusively until
// it releases it. Claims abandoned by a dead instance are reclaimed after
// a timeout so no call is ever orphaned.
package drain

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/audit"
	"github.com/auditflow/callpipe/internal/compute"
	"github.com/auditflow/callpipe/internal/inference"
	"github.com/auditflow/callpipe/internal/orchestrator"
	"github.com/auditflow/callpipe/internal/types"
)

// shortCallMaxSeconds is the duration at or below which a call is not worth
// transcribing.
const shortCallMaxSeconds = 5

// sttRetries is how many additional transcription attempts follow a failed
// one, each preceded by an STT+VAD restart.
const sttRetries = 2

// claimTimeout is how long a claim may stand before another instance treats
// its holder as dead and reclaims the call. Longer than the worst-case
// transcribe-with-retries cycle.
const claimTimeout = 30 * time.Minute

// Drain is one call drain loop instance.
type Drain struct {
	db       *Database
	batches  *orchestrator.Database
	stt      *inference.STTClient
	llm      *inference.LLMClient
	auditor  *audit.Auditor
	notifier *audit.Notifier
	gpu      *compute.ExclusiveGroup
	gates    *orchestrator.Gates

	instance  string
	supported map[string]bool
	interval  time.Duration
	logger    zerolog.Logger
}

// New builds a drain instance. instance must be unique per cooperating
// loop; it stamps the rows this loop has claimed.
func New(gormDB *gorm.DB, instance string, stt *inference.STTClient, llm *inference.LLMClient, auditor *audit.Auditor, notifier *audit.Notifier, gpu *compute.ExclusiveGroup, gates *orchestrator.Gates, supported map[string]bool, interval time.Duration) *Drain {
	return &Drain{
		db:        NewDatabase(gormDB),
		batches:   orchestrator.NewDatabase(gormDB),
		stt:       stt,
		llm:       llm,
		auditor:   auditor,
		notifier:  notifier,
		gpu:       gpu,
		gates:     gates,
		instance:  instance,
		supported: supported,
		interval:  interval,
		logger:    log.With().Str("component", "call_drain").Str("instance", instance).Logger(),
	}
}

// Start begins the drain loop. Errors are logged and the loop continues on
// the next tick.
func (d *Drain) Start(ctx context.Context) {
	d.logger.Info().Dur("interval", d.interval).Msg("starting call drain loop")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("shutting down call drain loop")
			return
		case <-ticker.C:
			if err := d.Cycle(ctx); err != nil {
				d.logger.Error().Err(err).Msg("drain cycle failed")
			}
		}
	}
}

// Cycle claims and advances at most one call.
func (d *Drain) Cycle(ctx context.Context) error {
	batch, err := d.batches.GetCurrentBatch()
	if err != nil {
		return err
	}
	if batch == nil || batch.STT.IsPending() {
		return nil
	}

	reclaimed, err := d.db.ReclaimStale(batch.ID, time.Now().Add(-claimTimeout))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		d.logger.Warn().Int64("calls", reclaimed).Msg("reclaimed calls from dead instances")
	}

	call, err := d.db.ClaimNext(batch.ID, d.instance)
	if err != nil {
		return err
	}
	if call == nil {
		return nil
	}

	switch call.Status {
	case types.CallPending:
		return d.transcribe(ctx, call)
	case types.CallTranscriptDone:
		return d.runAudit(ctx, call)
	case types.CallAuditDone:
		return d.finalize(call)
	default:
		return d.db.Release(call, "")
	}
}

// transcribe moves a Pending call to TranscriptDone, or to one of its
// terminal side exits.
func (d *Drain) transcribe(ctx context.Context, call *types.Call) error {
	if call.AudioDuration > 0 && call.AudioDuration <= shortCallMaxSeconds {
		return d.terminal(call, types.CallShortCall)
	}
	if !d.languageSupported(call) {
		return d.terminal(call, types.CallUnsupportedLanguage)
	}

	if err := d.db.SetStatus(call, types.CallInProgress); err != nil {
		return d.releaseAfterError(call, types.CallPending, err)
	}
	d.notifier.CallStatusChanged(call)

	transcript, err := d.transcribeWithRetry(ctx, call)
	if err != nil {
		d.logger.Error().Err(err).Str("audio", call.AudioName).
			Msg("transcription failed after retries, reverting call to Pending")
		return d.db.Release(call, types.CallPending)
	}

	segments := make([]types.TranscriptSegment, 0, len(transcript.Segments))
	for _, s := range transcript.Segments {
		segments = append(segments, types.TranscriptSegment{
			CallID:   call.ID,
			Seq:      s.Seq,
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Speaker:  s.Speaker,
			Text:     s.Text,
			Language: s.Language,
		})
	}
	if err := d.db.SaveSegments(segments); err != nil {
		return d.releaseAfterError(call, types.CallPending, err)
	}
	d.extractConversations(ctx, call, transcript)

	if err := d.db.Release(call, types.CallTranscriptDone); err != nil {
		return err
	}
	d.notifier.CallStatusChanged(call)
	return nil
}

// extractConversations runs the LLM extraction over the fresh transcript and
// persists the stock mentions the matching second pass re-scores against.
// Extraction is best-effort: a failure leaves the call transcribed and the
// trade tags at their first-pass values.
func (d *Drain) extractConversations(ctx context.Context, call *types.Call, transcript *inference.Transcript) {
	var sb strings.Builder
	for _, s := range transcript.Segments {
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}

	mentions, err := d.llm.ExtractInformation(ctx, sb.String())
	if err != nil {
		d.logger.Warn().Err(err).Str("audio", call.AudioName).Msg("conversation extraction failed")
		return
	}

	rows := make([]types.CallConversation, 0, len(mentions))
	for _, m := range mentions {
		rows = append(rows, types.CallConversation{
			CallID:      call.ID,
			ScriptName:  m.ScriptName,
			LotQuantity: m.LotQuantity,
			TradePrice:  m.TradePrice,
			StrikePrice: m.StrikePrice,
			Side:        m.Side,
			BatchID:     call.BatchID,
		})
	}
	if err := d.db.SaveConversations(rows); err != nil {
		d.logger.Error().Err(err).Str("audio", call.AudioName).Msg("failed to save extracted mentions")
	}
}

// transcribeWithRetry restarts the STT and VAD services between failed
// attempts; a stuck GPU call is only ever recovered by restart.
func (d *Drain) transcribeWithRetry(ctx context.Context, call *types.Call) (*inference.Transcript, error) {
	transcript, err := d.stt.Transcribe(ctx, call.AudioName)
	if err == nil {
		return transcript, nil
	}

	for attempt := 1; attempt <= sttRetries; attempt++ {
		d.logger.Warn().Err(err).Int("attempt", attempt).Str("audio", call.AudioName).
			Msg("transcription failed, restarting STT services")
		if restartErr := d.gpu.Restart(ctx, compute.ServiceSTT, compute.ServiceVAD); restartErr != nil {
			d.logger.Error().Err(restartErr).Msg("STT restart failed")
		}
		transcript, err = d.stt.Transcribe(ctx, call.AudioName)
		if err == nil {
			return transcript, nil
		}
	}
	return nil, err
}

// runAudit moves a TranscriptDone call through Auditing to AuditDone.
func (d *Drain) runAudit(ctx context.Context, call *types.Call) error {
	if !d.gates.TryAcquire(orchestrator.GateAudit) {
		return d.db.Release(call, "")
	}
	defer d.gates.Release(orchestrator.GateAudit)

	if err := d.db.SetStatus(call, types.CallAuditing); err != nil {
		return d.releaseAfterError(call, types.CallTranscriptDone, err)
	}
	d.notifier.CallStatusChanged(call)

	if err := d.auditor.Run(ctx, call); err != nil {
		d.logger.Error().Err(err).Str("audio", call.AudioName).
			Msg("audit failed, reverting call for a later cycle")
		return d.db.Release(call, types.CallTranscriptDone)
	}

	if err := d.db.Release(call, types.CallAuditDone); err != nil {
		return err
	}
	d.notifier.CallStatusChanged(call)
	return nil
}

func (d *Drain) finalize(call *types.Call) error {
	if err := d.db.Release(call, types.CallComplete); err != nil {
		return err
	}
	d.notifier.CallStatusChanged(call)
	return nil
}

// releaseAfterError returns the claim with the given revert status so a
// later cycle can retry the call; a claim must never outlive the cycle that
// took it.
func (d *Drain) releaseAfterError(call *types.Call, status string, err error) error {
	if relErr := d.db.Release(call, status); relErr != nil {
		d.logger.Error().Err(relErr).Str("audio", call.AudioName).Msg("failed to release claim")
	}
	return err
}

// terminal parks the call in a terminal side exit and releases it.
func (d *Drain) terminal(call *types.Call, status string) error {
	if err := d.db.Release(call, status); err != nil {
		return err
	}
	d.logger.Info().Str("audio", call.AudioName).Str("status", status).Msg("call closed")
	d.notifier.CallStatusChanged(call)
	return nil
}

func (d *Drain) languageSupported(call *types.Call) bool {
	if call.LanguageID == "" || len(d.supported) == 0 {
		return true
	}
	return d.supported[strings.ToLower(strings.TrimSpace(call.LanguageID))]
}
