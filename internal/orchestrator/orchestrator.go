// Package orchestrator drives one batch per day through the fixed stage
// sequence dbInsertion -> denoise -> ivr -> lid -> stt -> audit, swapping
// the mutually exclusive GPU services between stages and rolling over to
// the next calendar day when the batch completes.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/compute"
	"github.com/auditflow/callpipe/internal/config"
	"github.com/auditflow/callpipe/internal/dispatch"
	"github.com/auditflow/callpipe/internal/types"
)

// Intake registers a day's audio intake and triggers the external metadata
// ingestion collaborators.
type Intake interface {
	Ready(batch *types.Batch) (bool, error)
	Register(ctx context.Context, batch *types.Batch) (int, error)
	IngestCallMetadata(ctx context.Context, batch *types.Batch) error
	IngestTradeMetadata(ctx context.Context, batch *types.Batch) error
}

// Matcher runs the trade-to-call matching for a batch.
type Matcher interface {
	Run(ctx context.Context, batchID uint) error
	ReevaluateTaggedTrades(ctx context.Context, batchID uint) error
}

// StageDispatcher fans batch files out to a stage's inference endpoints.
type StageDispatcher interface {
	Run(ctx context.Context, stage string, batchID uint, files []dispatch.File, endpoints []string) (dispatch.Summary, error)
	AffinityFiles(priorStage string, batchID uint, names []string) ([]dispatch.File, error)
	Markers(stage string, batchID uint) (map[string]types.StageResult, error)
}

// Orchestrator is the top-level polling control loop. One instance runs per
// process; the single-writer assumption is deliberate.
type Orchestrator struct {
	db         *Database
	cfg        *config.Config
	dispatcher StageDispatcher
	matcher    Matcher
	intake     Intake
	gpu        *compute.ExclusiveGroup
	gates      *Gates
	logger     zerolog.Logger

	pollInterval time.Duration
}

// New builds the orchestrator.
func New(gormDB *gorm.DB, cfg *config.Config, dispatcher StageDispatcher, matcher Matcher, intake Intake, gpu *compute.ExclusiveGroup, gates *Gates) *Orchestrator {
	return &Orchestrator{
		db:           NewDatabase(gormDB),
		cfg:          cfg,
		dispatcher:   dispatcher,
		matcher:      matcher,
		intake:       intake,
		gpu:          gpu,
		gates:        gates,
		pollInterval: cfg.Pipeline.PollInterval,
		logger:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Gates exposes the orchestrator's gate set to cooperating loops.
func (o *Orchestrator) Gates() *Gates {
	return o.gates
}

// Start begins the orchestration loop. A failed cycle is logged and retried
// on the next tick; nothing here may crash the process.
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info().Dur("poll_interval", o.pollInterval).Msg("starting batch orchestrator")

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("shutting down batch orchestrator")
			return
		case <-ticker.C:
			if err := o.Cycle(ctx); err != nil {
				o.logger.Error().Err(err).Msg("orchestration cycle failed")
			}
		}
	}
}

// Cycle re-reads the active batch and dispatches the next pending action.
func (o *Orchestrator) Cycle(ctx context.Context) error {
	batch, err := o.db.GetCurrentBatch()
	if err != nil {
		return err
	}
	if batch == nil {
		batch, err = o.db.ActivateBatchFor(time.Now())
		if err != nil {
			return err
		}
		o.logger.Info().Time("date", batch.BatchDate).Msg("activated batch")
	}

	switch {
	case batch.BatchStatus == types.StatusComplete:
		return o.rollover(ctx, batch)
	case !batch.DBInsertion.IsComplete():
		return o.runIntake(ctx, batch)
	case !batch.Denoise.IsComplete():
		return o.runFilterStage(ctx, batch, types.StageDenoise)
	case !batch.IVR.IsComplete():
		return o.runFilterStage(ctx, batch, types.StageIVR)
	case !batch.LID.IsComplete():
		return o.runLID(ctx, batch)
	case !batch.Triaging.IsComplete():
		return o.runTriage(ctx, batch)
	case !batch.STT.IsComplete():
		return o.checkTranscription(batch)
	case !batch.Audit.IsComplete():
		return o.checkAudit(ctx, batch)
	default:
		return o.db.CompleteBatch(batch)
	}
}
