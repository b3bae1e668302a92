package compute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	running map[string]bool
	stops   []string
	starts  []string
	waits   []string
	failOn  string
}

func newFakeClient(running ...string) *fakeClient {
	f := &fakeClient{running: make(map[string]bool)}
	for _, r := range running {
		f.running[r] = true
	}
	return f
}

func (f *fakeClient) Start(ctx context.Context, name string) error {
	if name == f.failOn {
		return errors.New("start failed")
	}
	f.running[name] = true
	f.starts = append(f.starts, name)
	return nil
}

func (f *fakeClient) Stop(ctx context.Context, name string) error {
	f.running[name] = false
	f.stops = append(f.stops, name)
	return nil
}

func (f *fakeClient) IsRunning(ctx context.Context, name string) (bool, error) {
	return f.running[name], nil
}

func (f *fakeClient) WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error {
	f.waits = append(f.waits, name)
	return nil
}

func TestExclusiveGroup_SwapStopsPreviousOccupant(t *testing.T) {
	client := newFakeClient(ServiceLID)
	g := NewExclusiveGroup(client, time.Second, ServiceLID, ServiceSTT, ServiceVAD)

	require.NoError(t, g.Swap(context.Background(), ServiceSTT, ServiceVAD))

	assert.Equal(t, []string{ServiceLID}, client.stops)
	assert.ElementsMatch(t, []string{ServiceSTT, ServiceVAD}, client.starts)
	assert.ElementsMatch(t, []string{ServiceSTT, ServiceVAD}, client.waits)
	assert.False(t, client.running[ServiceLID])
	assert.True(t, client.running[ServiceSTT])
	assert.True(t, client.running[ServiceVAD])
}

func TestExclusiveGroup_SwapIsIdempotent(t *testing.T) {
	client := newFakeClient(ServiceSTT, ServiceVAD)
	g := NewExclusiveGroup(client, time.Second, ServiceLID, ServiceSTT, ServiceVAD)

	require.NoError(t, g.Swap(context.Background(), ServiceSTT, ServiceVAD))

	// Already-running members are left alone: no stops, no restarts.
	assert.Empty(t, client.stops)
	assert.Empty(t, client.starts)
}

func TestExclusiveGroup_SwapIgnoresNonMembers(t *testing.T) {
	client := newFakeClient(ServiceLID)
	// Denoise is running but outside the group; it must not be touched.
	client.running[ServiceDenoise] = true
	g := NewExclusiveGroup(client, time.Second, ServiceLID, ServiceSTT)

	require.NoError(t, g.Swap(context.Background(), ServiceSTT))
	assert.Equal(t, []string{ServiceLID}, client.stops)
	assert.True(t, client.running[ServiceDenoise])
}

func TestExclusiveGroup_SwapPropagatesStartError(t *testing.T) {
	client := newFakeClient()
	client.failOn = ServiceSTT
	g := NewExclusiveGroup(client, time.Second, ServiceLID, ServiceSTT)

	err := g.Swap(context.Background(), ServiceSTT)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), ServiceSTT)
}

func TestExclusiveGroup_RestartStopsThenStarts(t *testing.T) {
	client := newFakeClient(ServiceSTT)
	g := NewExclusiveGroup(client, time.Second, ServiceSTT, ServiceVAD)

	require.NoError(t, g.Restart(context.Background(), ServiceSTT, ServiceVAD))
	assert.Equal(t, []string{ServiceSTT, ServiceVAD}, client.stops)
	assert.Equal(t, []string{ServiceSTT, ServiceVAD}, client.starts)
	assert.True(t, client.running[ServiceSTT])
	assert.True(t, client.running[ServiceVAD])
}

func TestMediatorClient_WaitUntilReady_FixedDelay(t *testing.T) {
	c := NewMediatorClient("http://localhost:9100", 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, c.WaitUntilReady(context.Background(), ServiceSTT, time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestMediatorClient_WaitUntilReady_TimeoutCapsDelay(t *testing.T) {
	c := NewMediatorClient("http://localhost:9100", time.Hour)

	start := time.Now()
	require.NoError(t, c.WaitUntilReady(context.Background(), ServiceSTT, 10*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMediatorClient_WaitUntilReady_Probe(t *testing.T) {
	calls := 0
	c := NewMediatorClient("http://localhost:9100", time.Hour).
		WithReadinessProbe(func(ctx context.Context, name string) (bool, error) {
			calls++
			return true, nil
		})

	require.NoError(t, c.WaitUntilReady(context.Background(), ServiceSTT, time.Second))
	assert.Equal(t, 1, calls)
}

func TestMediatorClient_WaitUntilReady_ContextCancelled(t *testing.T) {
	c := NewMediatorClient("http://localhost:9100", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.WaitUntilReady(ctx, ServiceSTT, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
