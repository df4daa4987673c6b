// Package widget holds the per-session lookup widget: the current query, its
// view state and the background run that fills it in.
package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/lookup"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
	"github.com/kjstillabower/weather-lookup/internal/view"
)

// Widget owns one view model. Each Submit starts a new run and bumps the
// generation; a run only publishes its result if its generation is still
// current, so a slow earlier query never overwrites a later one.
type Widget struct {
	runner  lookup.Runner
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	city     string
	state    view.State
	gen      uint64
	running  int
	idle     chan struct{}
	lastSeen time.Time
}

// New returns a widget in the Loading state with no query. timeout bounds
// each run; 0 means no bound beyond the runner's own.
func New(runner lookup.Runner, timeout time.Duration) *Widget {
	w := &Widget{
		runner:  runner,
		timeout: timeout,
		now:     time.Now,
		state:   view.Loading(),
	}
	w.lastSeen = w.now()
	return w
}

// Submit replaces the query with city and starts a run. Blank input is
// ignored and reported as false. ctx supplies the logger and correlation ID
// only; the run outlives the request that started it.
func (w *Widget) Submit(ctx context.Context, city string) bool {
	city = strings.TrimSpace(city)
	if city == "" {
		return false
	}

	w.mu.Lock()
	w.city = city
	w.state = view.Loading()
	w.gen++
	gen := w.gen
	if w.running == 0 {
		w.idle = make(chan struct{})
	}
	w.running++
	w.lastSeen = w.now()
	w.mu.Unlock()

	go w.run(context.WithoutCancel(ctx), gen, city)
	return true
}

// Reject records city as the query and shows message without running a
// lookup. Any run still in flight is superseded.
func (w *Widget) Reject(city, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.city = city
	w.state = view.Failed(message)
	w.gen++
	w.lastSeen = w.now()
}

// Refresh reruns the current query. It is a no-op before the first Submit.
func (w *Widget) Refresh(ctx context.Context) bool {
	w.mu.Lock()
	city := w.city
	w.mu.Unlock()
	return w.Submit(ctx, city)
}

func (w *Widget) run(ctx context.Context, gen uint64, city string) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	logger := observability.LoggerFromContext(ctx)

	report, err := w.runner.Run(ctx, city)
	if err != nil && lookup.Outcome(err) == "failed" {
		traffic.RecordError()
	} else {
		traffic.RecordSuccess()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.running--
	if w.running == 0 {
		close(w.idle)
	}

	if gen != w.gen {
		observability.StaleLookupsDiscardedTotal.Inc()
		logger.Debug("discarding superseded lookup",
			zap.String("city", city),
			zap.Uint64("generation", gen),
			zap.Uint64("current", w.gen))
		return
	}
	if err != nil {
		w.state = view.Failed(lookup.Message(err))
		return
	}
	w.state = view.Ready(report)
}

// State returns the current view model.
func (w *Widget) State() view.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// City returns the current query.
func (w *Widget) City() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.city
}

// Wait blocks until no run is in flight or ctx is done.
func (w *Widget) Wait(ctx context.Context) error {
	w.mu.Lock()
	if w.running == 0 {
		w.mu.Unlock()
		return nil
	}
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Widget) touch() {
	w.mu.Lock()
	w.lastSeen = w.now()
	w.mu.Unlock()
}

func (w *Widget) idleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastSeen)
}
