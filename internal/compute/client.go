// Package compute is the sole mutation point for the shared GPU services.
// Callers never talk to the container runtime directly; they go through the
// Client contract so a single-host Docker backend and a remote HTTP-proxied
// mediator are interchangeable.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Well-known service names managed through the mediator.
const (
	ServiceLID     = "lid"
	ServiceDenoise = "denoise"
	ServiceIVR     = "ivr"
	ServiceSTT     = "stt"
	ServiceVAD     = "vad"
)

// Client starts, stops and inspects named GPU worker processes.
type Client interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	IsRunning(ctx context.Context, name string) (bool, error)
	// WaitUntilReady blocks until the named service can accept work, or the
	// timeout elapses. The default implementation is a fixed warm-up delay;
	// backends may substitute a real readiness probe.
	WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error
}

// ReadinessProbe reports whether a service is ready to accept work.
type ReadinessProbe func(ctx context.Context, name string) (bool, error)

// MediatorClient talks to the Docker-wrapper mediator microservice over HTTP.
type MediatorClient struct {
	baseURL    string
	httpClient *http.Client
	warmupWait time.Duration
	probe      ReadinessProbe
	logger     zerolog.Logger
}

// NewMediatorClient builds a client against the mediator base URL. warmupWait
// is the fixed delay used by WaitUntilReady when no probe is configured.
func NewMediatorClient(baseURL string, warmupWait time.Duration) *MediatorClient {
	return &MediatorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		warmupWait: warmupWait,
		logger:     log.With().Str("component", "compute_client").Logger(),
	}
}

// WithReadinessProbe swaps the fixed-delay warm-up for a real probe.
func (c *MediatorClient) WithReadinessProbe(probe ReadinessProbe) *MediatorClient {
	c.probe = probe
	return c
}

func (c *MediatorClient) Start(ctx context.Context, name string) error {
	c.logger.Info().Str("service", name).Msg("starting compute service")
	return c.post(ctx, fmt.Sprintf("/containers/%s/start", name))
}

func (c *MediatorClient) Stop(ctx context.Context, name string) error {
	c.logger.Info().Str("service", name).Msg("stopping compute service")
	return c.post(ctx, fmt.Sprintf("/containers/%s/stop", name))
}

func (c *MediatorClient) IsRunning(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fmt.Sprintf("/containers/%s/status", name), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("mediator status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("mediator status request returned %d", resp.StatusCode)
	}

	var status struct {
		Running bool `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, err
	}
	return status.Running, nil
}

// WaitUntilReady waits for the service warm-up. With a probe configured it
// polls until ready or timeout; otherwise it sleeps the fixed warm-up delay.
func (c *MediatorClient) WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error {
	if c.probe == nil {
		wait := c.warmupWait
		if timeout > 0 && timeout < wait {
			wait = timeout
		}
		c.logger.Debug().Str("service", name).Dur("wait", wait).Msg("fixed warm-up wait")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			return nil
		}
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		ready, err := c.probe(ctx, name)
		if err != nil {
			c.logger.Warn().Err(err).Str("service", name).Msg("readiness probe failed")
		} else if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s not ready after %s", name, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *MediatorClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mediator request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("mediator returned %d for %s", resp.StatusCode, path)
	}
	return nil
}
