package widget

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/lookup"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// DefaultCity is queried when a session's widget is first created.
	DefaultCity string
	// RunTimeout bounds each widget run.
	RunTimeout time.Duration
	// IdleTTL is how long a session may go unseen before Sweep evicts it.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

// Registry maps browser session IDs to their widgets.
type Registry struct {
	runner lookup.Runner
	cfg    RegistryConfig
	now    func() time.Time

	mu      sync.Mutex
	widgets map[string]*Widget
}

func NewRegistry(runner lookup.Runner, cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{
		runner:  runner,
		cfg:     cfg,
		now:     time.Now,
		widgets: make(map[string]*Widget),
	}
}

// Open returns the widget for sessionID, marking it as seen. An empty,
// malformed or unknown ID gets a fresh session whose widget immediately
// starts a lookup for the default city; the returned ID is the one the
// caller should hand back to the browser.
func (r *Registry) Open(ctx context.Context, sessionID string) (string, *Widget, bool) {
	r.mu.Lock()
	if _, err := uuid.Parse(sessionID); err == nil {
		if w, ok := r.widgets[sessionID]; ok {
			r.mu.Unlock()
			w.touch()
			return sessionID, w, false
		}
	}

	id := uuid.NewString()
	w := New(r.runner, r.cfg.RunTimeout)
	w.now = r.now
	w.lastSeen = r.now()
	r.widgets[id] = w
	r.mu.Unlock()

	w.Submit(ctx, r.cfg.DefaultCity)
	return id, w, true
}

// Get returns the widget for sessionID without creating one.
func (r *Registry) Get(sessionID string) (*Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.widgets[sessionID]
	if ok {
		w.touch()
	}
	return w, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.widgets)
}

// Sweep evicts sessions idle longer than IdleTTL and returns how many went.
// A run still in flight for an evicted widget completes into the void.
func (r *Registry) Sweep() int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, w := range r.widgets {
		if w.idleSince(now) > r.cfg.IdleTTL {
			delete(r.widgets, id)
			n++
		}
	}
	return n
}

// SweepPeriodic sweeps at the given interval until ctx is done.
func (r *Registry) SweepPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.cfg.Logger.Debug("evicted idle sessions", zap.Int("evicted", n), zap.Int("remaining", r.Count()))
			}
		}
	}
}

// Wait blocks until every live widget is idle or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	widgets := make([]*Widget, 0, len(r.widgets))
	for _, w := range r.widgets {
		widgets = append(widgets, w)
	}
	r.mu.Unlock()

	for _, w := range widgets {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
