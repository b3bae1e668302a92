package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/types"
)

// Refresher periodically reports the active batch's progress. The dashboard
// polls the batches endpoint for the same numbers; this loop keeps them in
// the server log so progress is visible without the dashboard.
type Refresher struct {
	db       *Database
	interval time.Duration
	logger   zerolog.Logger
}

func NewRefresher(gormDB *gorm.DB, interval time.Duration) *Refresher {
	return &Refresher{
		db:       NewDatabase(gormDB),
		interval: interval,
		logger:   log.With().Str("component", "batch_refresher").Logger(),
	}
}

// Start runs the refresh loop until the context is cancelled.
func (r *Refresher) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("starting batch refresh loop")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("shutting down batch refresh loop")
			return
		case <-ticker.C:
			if err := r.Refresh(); err != nil {
				r.logger.Error().Err(err).Msg("batch refresh failed")
			}
		}
	}
}

// Refresh logs the current batch's stage statuses and call counts. A missing
// current batch is not an error; there is simply nothing to report.
func (r *Refresher) Refresh() error {
	batch, err := r.db.GetCurrentBatch()
	if err != nil {
		return err
	}
	if batch == nil {
		return nil
	}

	counts, err := r.db.CallCountsByStatus(batch.ID)
	if err != nil {
		return err
	}

	var total, done int64
	for status, n := range counts {
		total += n
		if status == types.CallComplete {
			done += n
		}
	}

	r.logger.Info().
		Uint("batch_id", batch.ID).
		Str("batch_status", batch.BatchStatus).
		Str("stt", batch.STT.Status).
		Str("audit", batch.Audit.Status).
		Int64("calls_total", total).
		Int64("calls_complete", done).
		Msg("batch progress")
	return nil
}
