package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ExclusiveGroup serializes a set of services that are mutually exclusive
// consumers of the same GPU. At most one member may be running; swapping in
// a new occupant stops the previous one and waits for warm-up before
// returning.
type ExclusiveGroup struct {
	client       Client
	members      []string
	readyTimeout time.Duration
	logger       zerolog.Logger
}

// NewExclusiveGroup builds a group over the given member services.
func NewExclusiveGroup(client Client, readyTimeout time.Duration, members ...string) *ExclusiveGroup {
	return &ExclusiveGroup{
		client:       client,
		members:      members,
		readyTimeout: readyTimeout,
		logger:       log.With().Str("component", "gpu_group").Logger(),
	}
}

// Swap makes the named services the sole running occupants of the group.
// Members not in next are stopped first; each of next is then started and
// awaited. Already-running members of next are left alone.
func (g *ExclusiveGroup) Swap(ctx context.Context, next ...string) error {
	want := make(map[string]bool, len(next))
	for _, n := range next {
		want[n] = true
	}

	for _, member := range g.members {
		if want[member] {
			continue
		}
		running, err := g.client.IsRunning(ctx, member)
		if err != nil {
			return fmt.Errorf("checking %s: %w", member, err)
		}
		if !running {
			continue
		}
		if err := g.client.Stop(ctx, member); err != nil {
			return fmt.Errorf("stopping %s: %w", member, err)
		}
		g.logger.Info().Str("service", member).Msg("stopped previous GPU occupant")
	}

	for _, name := range next {
		running, err := g.client.IsRunning(ctx, name)
		if err != nil {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if running {
			continue
		}
		if err := g.client.Start(ctx, name); err != nil {
			return fmt.Errorf("starting %s: %w", name, err)
		}
		if err := g.client.WaitUntilReady(ctx, name, g.readyTimeout); err != nil {
			return fmt.Errorf("waiting for %s: %w", name, err)
		}
		g.logger.Info().Str("service", name).Msg("GPU service ready")
	}

	return nil
}

// Restart stops and starts the named services, waiting for readiness. Used
// to recover a stuck inference service before retrying a request.
func (g *ExclusiveGroup) Restart(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := g.client.Stop(ctx, name); err != nil {
			g.logger.Warn().Err(err).Str("service", name).Msg("stop before restart failed")
		}
		if err := g.client.Start(ctx, name); err != nil {
			return fmt.Errorf("restarting %s: %w", name, err)
		}
		if err := g.client.WaitUntilReady(ctx, name, g.readyTimeout); err != nil {
			return fmt.Errorf("waiting for %s: %w", name, err)
		}
	}
	return nil
}
