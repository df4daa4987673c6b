package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/view"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock) {
	runner := instantRunner{"Mysore": {report: models.Report{City: "Mysore"}}}
	r := NewRegistry(runner, RegistryConfig{DefaultCity: "Mysore", RunTimeout: time.Second, IdleTTL: ttl})
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	r.now = clock.Now
	return r, clock
}

func TestRegistry_Open_NewSessionRunsDefaultCity(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)

	id, w, created := r.Open(context.Background(), "")
	require.True(t, created)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "Mysore", w.City())

	waitIdle(t, w)
	got, ok := w.State().Report()
	require.True(t, ok)
	assert.Equal(t, "Mysore", got.City)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Open_ExistingSession(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	id, first, _ := r.Open(context.Background(), "")
	waitIdle(t, first)

	again, w, created := r.Open(context.Background(), id)
	assert.False(t, created)
	assert.Equal(t, id, again)
	assert.Same(t, first, w)
	assert.Equal(t, view.KindReady, w.State().Kind(), "reopen does not restart the lookup")
}

func TestRegistry_Open_UnknownOrMalformedID(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)

	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		got, w, created := r.Open(context.Background(), id)
		assert.True(t, created)
		assert.NotEqual(t, id, got)
		waitIdle(t, w)
	}
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_Get(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	_, ok := r.Get(uuid.NewString())
	assert.False(t, ok)

	id, w, _ := r.Open(context.Background(), "")
	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, w, got)
	waitIdle(t, w)
}

func TestRegistry_Sweep(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)

	stale, sw, _ := r.Open(context.Background(), "")
	waitIdle(t, sw)
	clock.Advance(45 * time.Second)
	fresh, fw, _ := r.Open(context.Background(), "")
	waitIdle(t, fw)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, r.Sweep())
	_, ok := r.Get(stale)
	assert.False(t, ok)
	_, ok = r.Get(fresh)
	assert.True(t, ok)
}

func TestRegistry_Sweep_TouchKeepsAlive(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)
	id, w, _ := r.Open(context.Background(), "")
	waitIdle(t, w)

	clock.Advance(50 * time.Second)
	r.Open(context.Background(), id)
	clock.Advance(50 * time.Second)

	assert.Equal(t, 0, r.Sweep())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Sweep_DisabledWithoutTTL(t *testing.T) {
	r, clock := newTestRegistry(0)
	_, w, _ := r.Open(context.Background(), "")
	waitIdle(t, w)
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, r.Sweep())
}

func TestRegistry_SweepPeriodic_StopsOnCancel(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.SweepPeriodic(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("SweepPeriodic did not return after cancel")
	}
}

func TestRegistry_Wait(t *testing.T) {
	runner := newGatedRunner()
	r := NewRegistry(runner, RegistryConfig{DefaultCity: "Mysore"})
	r.Open(context.Background(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, r.Wait(ctx))

	runner.release("Mysore", models.Report{City: "Mysore"}, nil)
	require.NoError(t, r.Wait(context.Background()))
}
