// Package dispatch fans a batch of audio files out to the inference
// endpoints of one stage. Dispatch is safely re-runnable: a marker row per
// file short-circuits repeat work, so crash recovery simply re-dispatches
// the whole batch.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/auditflow/callpipe/internal/types"
)

// File is one unit of dispatch work. AffinityIP, when set, pins the file to
// the worker node that already holds it from a prior stage.
type File struct {
	AudioName  string
	AffinityIP string
}

// Summary reports what one dispatch run did.
type Summary struct {
	Dispatched int
	MarkerHits int
	Failures   int
}

// Dispatcher drives the bounded-concurrency fan-out for one stage at a time.
type Dispatcher struct {
	db         *Database
	httpClient *http.Client
	poolSize   int
	logger     zerolog.Logger
}

// NewDispatcher builds a dispatcher with the given worker pool size.
func NewDispatcher(gormDB *gorm.DB, poolSize int) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 8
	}
	return &Dispatcher{
		db:         NewDatabase(gormDB),
		httpClient: &http.Client{Timeout: 3 * time.Minute},
		poolSize:   poolSize,
		logger:     log.With().Str("component", "stage_dispatcher").Logger(),
	}
}

// Run dispatches every file to one of the stage endpoints. Files already
// carrying a marker are skipped without any outbound call. A single file's
// failure is recorded and logged but never aborts the batch; only marker
// persistence errors and cancellation are returned. Cancellation leaves no
// marker for the interrupted files, so the next dispatch retries them.
func (d *Dispatcher) Run(ctx context.Context, stage string, batchID uint, files []File, endpoints []string) (Summary, error) {
	if len(endpoints) == 0 {
		return Summary{}, fmt.Errorf("no endpoints configured for stage %s", stage)
	}

	logger := d.logger.With().Str("stage", stage).Uint("batch_id", batchID).Logger()
	logger.Info().Int("files", len(files)).Int("endpoints", len(endpoints)).Msg("dispatching stage batch")

	var dispatched, hits, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.poolSize)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			marker, err := d.db.GetMarker(stage, batchID, file.AudioName)
			if err != nil {
				return err
			}
			if marker != nil {
				hits.Add(1)
				return nil
			}

			endpoint := pickEndpoint(endpoints, file.AffinityIP, i)
			result, callErr := d.callEndpoint(gctx, endpoint, file.AudioName, batchID)
			if callErr != nil && gctx.Err() != nil {
				// Cancellation is not an endpoint verdict; a failure marker
				// here would permanently skip the file.
				return gctx.Err()
			}

			marker = &types.StageResult{
				Stage:     stage,
				AudioName: file.AudioName,
				BatchID:   batchID,
				IP:        hostOf(endpoint),
				Result:    result,
				Succeeded: callErr == nil,
			}
			if callErr != nil {
				failures.Add(1)
				logger.Error().Err(callErr).Str("audio", file.AudioName).Str("endpoint", endpoint).
					Msg("stage call failed, recording marker so the file is not retried")
			} else {
				dispatched.Add(1)
			}
			return d.db.SaveMarker(marker)
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Dispatched: int(dispatched.Load()),
		MarkerHits: int(hits.Load()),
		Failures:   int(failures.Load()),
	}
	logger.Info().
		Int("dispatched", summary.Dispatched).
		Int("marker_hits", summary.MarkerHits).
		Int("failures", summary.Failures).
		Msg("stage dispatch complete")
	return summary, nil
}

// AffinityFiles builds the dispatch list for a stage, carrying over the
// responding host recorded by a prior stage so a file stays on the worker
// node that already has it.
func (d *Dispatcher) AffinityFiles(priorStage string, batchID uint, names []string) ([]File, error) {
	files := make([]File, 0, len(names))
	var markers map[string]types.StageResult
	if priorStage != "" {
		var err error
		markers, err = d.db.MarkersForStage(priorStage, batchID)
		if err != nil {
			return nil, err
		}
	}
	for _, name := range names {
		f := File{AudioName: name}
		if m, ok := markers[name]; ok {
			f.AffinityIP = m.IP
		}
		files = append(files, f)
	}
	return files, nil
}

// Markers exposes the stage's idempotency markers, keyed by audio name.
func (d *Dispatcher) Markers(stage string, batchID uint) (map[string]types.StageResult, error) {
	return d.db.MarkersForStage(stage, batchID)
}

func (d *Dispatcher) callEndpoint(ctx context.Context, endpoint, audioName string, batchID uint) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"file_name": audioName,
		"batch_id":  batchID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return string(payload), &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	return string(payload), nil
}

// StatusError is a non-2xx response from a stage endpoint.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.Code)
}

// pickEndpoint prefers an endpoint on the file's affinity host and falls
// back to round-robin by file index.
func pickEndpoint(endpoints []string, affinityIP string, index int) string {
	if affinityIP != "" {
		for _, e := range endpoints {
			if hostOf(e) == affinityIP {
				return e
			}
		}
	}
	return endpoints[index%len(endpoints)]
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Hostname()
}
