package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/auditflow/callpipe/internal/compute"
	"github.com/auditflow/callpipe/internal/config"
	"github.com/auditflow/callpipe/internal/types"
)

// runIntake handles the dbInsertion stage: locate the day's source folder,
// register its files, then trigger the metadata ingestion collaborators.
// An absent folder is not an error; the next cycle retries.
func (o *Orchestrator) runIntake(ctx context.Context, batch *types.Batch) error {
	if batch.DBInsertion.IsPending() {
		ready, err := o.intake.Ready(batch)
		if err != nil {
			return err
		}
		if !ready {
			o.logger.Info().Time("date", batch.BatchDate).Msg("intake folder not present yet, waiting")
			return nil
		}
		if err := o.db.BeginStage(batch, types.StageDBInsertion); err != nil {
			return err
		}
	}

	n, err := o.intake.Register(ctx, batch)
	if err != nil {
		return err
	}
	o.logger.Info().Int("files", n).Msg("registered intake files")

	if err := o.intake.IngestCallMetadata(ctx, batch); err != nil {
		return err
	}
	if err := o.intake.IngestTradeMetadata(ctx, batch); err != nil {
		return err
	}

	return o.db.CompleteStage(batch, types.StageDBInsertion)
}

// runFilterStage handles the optional denoise and IVR-strip stages. With
// the feature flag off the stage is marked Complete immediately and files
// pass straight through.
func (o *Orchestrator) runFilterStage(ctx context.Context, batch *types.Batch, stage types.Stage) error {
	enabled := o.cfg.Stages.DenoiseEnabled
	service := compute.ServiceDenoise
	endpoints := config.EndpointList(o.cfg.Stages.DenoiseEndpoints)
	prior := ""
	if stage == types.StageIVR {
		enabled = o.cfg.Stages.IVREnabled
		service = compute.ServiceIVR
		endpoints = config.EndpointList(o.cfg.Stages.IVREndpoints)
		if o.cfg.Stages.DenoiseEnabled {
			prior = string(types.StageDenoise)
		}
	}

	if !enabled {
		return o.db.CompleteStage(batch, stage)
	}

	return o.runDispatchStage(ctx, batch, stage, service, endpoints, prior)
}

// runLID handles language identification and applies the detected language
// back onto the call rows.
func (o *Orchestrator) runLID(ctx context.Context, batch *types.Batch) error {
	prior := ""
	if o.cfg.Stages.IVREnabled {
		prior = string(types.StageIVR)
	} else if o.cfg.Stages.DenoiseEnabled {
		prior = string(types.StageDenoise)
	}

	if err := o.runDispatchStage(ctx, batch, types.StageLID, compute.ServiceLID,
		config.EndpointList(o.cfg.Stages.LIDEndpoints), prior); err != nil {
		return err
	}
	if !batch.LID.IsComplete() {
		return nil
	}
	return o.applyLanguageResults(batch)
}

// runDispatchStage swaps the GPU to the stage's service, fans the batch
// files out, and completes the stage. The request gate keeps the drain loop
// off the GPU while a stage batch is in flight.
func (o *Orchestrator) runDispatchStage(ctx context.Context, batch *types.Batch, stage types.Stage, service string, endpoints []string, priorStage string) error {
	if !o.gates.TryAcquire(GateRequest) {
		o.logger.Debug().Str("stage", string(stage)).Msg("request gate held, deferring stage")
		return nil
	}
	defer o.gates.Release(GateRequest)

	if batch.Phase(stage).IsPending() {
		if err := o.db.BeginStage(batch, stage); err != nil {
			return err
		}
	}

	if err := o.gpu.Swap(ctx, service); err != nil {
		return err
	}

	names, err := o.db.CallNames(batch.ID)
	if err != nil {
		return err
	}
	files, err := o.dispatcher.AffinityFiles(priorStage, batch.ID, names)
	if err != nil {
		return err
	}
	if _, err := o.dispatcher.Run(ctx, string(stage), batch.ID, files, endpoints); err != nil {
		return err
	}

	return o.db.CompleteStage(batch, stage)
}

// runTriage runs the matching engine once trade metadata exists, then
// swaps the GPU over to the steady-state STT+VAD pair and opens the stt
// stage for the drain loop.
func (o *Orchestrator) runTriage(ctx context.Context, batch *types.Batch) error {
	hasTrades, err := o.db.HasTradeMetadata(batch.ID)
	if err != nil {
		return err
	}
	if !hasTrades {
		o.logger.Info().Msg("trade metadata not ingested yet, waiting")
		return nil
	}

	if !o.gates.TryAcquire(GateMatching) {
		return nil
	}
	defer o.gates.Release(GateMatching)

	if batch.Triaging.IsPending() {
		if err := o.db.BeginStage(batch, types.StageTriaging); err != nil {
			return err
		}
	}
	if err := o.matcher.Run(ctx, batch.ID); err != nil {
		return err
	}
	if err := o.db.CompleteStage(batch, types.StageTriaging); err != nil {
		return err
	}

	if err := o.gpu.Swap(ctx, compute.ServiceSTT, compute.ServiceVAD); err != nil {
		return err
	}
	return o.db.BeginStage(batch, types.StageSTT)
}

// checkTranscription closes the stt stage once no call is still waiting on
// transcription, and opens the audit stage.
func (o *Orchestrator) checkTranscription(batch *types.Batch) error {
	counts, err := o.db.CallCountsByStatus(batch.ID)
	if err != nil {
		return err
	}
	if counts[types.CallPending] > 0 || counts[types.CallInProgress] > 0 {
		return nil
	}
	if err := o.db.CompleteStage(batch, types.StageSTT); err != nil {
		return err
	}
	return o.db.BeginStage(batch, types.StageAudit)
}

// checkAudit completes the batch once every call has reached a terminal
// status, running the second matching pass now that conversation
// extraction has landed.
func (o *Orchestrator) checkAudit(ctx context.Context, batch *types.Batch) error {
	counts, err := o.db.CallCountsByStatus(batch.ID)
	if err != nil {
		return err
	}
	var open int64
	for status, n := range counts {
		switch status {
		case types.CallComplete, types.CallShortCall, types.CallUnsupportedLanguage:
		default:
			open += n
		}
	}
	if open > 0 {
		return nil
	}

	if err := o.matcher.ReevaluateTaggedTrades(ctx, batch.ID); err != nil {
		o.logger.Error().Err(err).Msg("second matching pass failed, completing batch anyway")
	}

	if err := o.db.CompleteStage(batch, types.StageAudit); err != nil {
		return err
	}
	return o.db.CompleteBatch(batch)
}

// rollover retires the completed batch, activates the next calendar day and
// restarts the steady-state inference services so the pipeline is warm
// without operator intervention.
func (o *Orchestrator) rollover(ctx context.Context, batch *types.Batch) error {
	if err := o.db.ClearCurrent(batch); err != nil {
		return err
	}
	next, err := o.db.ActivateBatchFor(batch.BatchDate.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	o.logger.Info().Time("date", next.BatchDate).Msg("rolled over to next batch")

	return o.gpu.Swap(ctx, compute.ServiceSTT, compute.ServiceVAD)
}

// applyLanguageResults copies the detected language out of the LID markers
// onto the call rows so the drain loop can enforce the language policy.
func (o *Orchestrator) applyLanguageResults(batch *types.Batch) error {
	markers, err := o.dispatcher.Markers(string(types.StageLID), batch.ID)
	if err != nil {
		return err
	}
	for name, marker := range markers {
		if !marker.Succeeded {
			continue
		}
		var result struct {
			Language string `json:"language"`
		}
		if err := json.Unmarshal([]byte(marker.Result), &result); err != nil || result.Language == "" {
			continue
		}
		if err := o.db.SetCallLanguage(batch.ID, name, result.Language); err != nil {
			return err
		}
	}
	return nil
}
