// Package health serves liveness and readiness probes. Checks run in the
// background and flip state only after a run of consecutive results, so a
// single slow ping does not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects which probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Option tunes a single check.
type Option func(*check)

// WithThresholds sets how many consecutive failures mark a check unhealthy
// and how many successes mark it healthy again. Defaults are 3 and 1.
func WithThresholds(failures, successes int) Option {
	return func(c *check) {
		if failures > 0 {
			c.failAfter = failures
		}
		if successes > 0 {
			c.okAfter = successes
		}
	}
}

// check is written only by its own runner goroutine; probes read healthy and
// lastErr atomically.
type check struct {
	name      string
	kind      Kind
	timeout   time.Duration
	fn        CheckFunc
	failAfter int
	okAfter   int

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails, oks int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	if err == nil {
		c.lastErr.Store(nil)
		c.fails = 0
		c.oks++
		if c.oks >= c.okAfter && !c.healthy.Swap(true) {
			zctx.From(ctx).Info("Health check recovered",
				zap.String("check", c.name),
				zap.Stringer("kind", c.kind),
			)
		}
		return
	}

	msg := err.Error()
	c.lastErr.Store(&msg)
	c.oks = 0
	c.fails++
	if c.fails >= c.failAfter && c.healthy.Swap(false) {
		zctx.From(ctx).Warn("Health check failing",
			zap.String("check", c.name),
			zap.Stringer("kind", c.kind),
			zap.Error(err),
		)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if msg := c.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is unhealthy", true
}

// Registry holds the registered checks and the manual readiness switch.
type Registry struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an empty Registry. It reports not ready until SetReady(true).
func New() *Registry {
	return &Registry{}
}

// Add registers a check. Checks start healthy and must be added before Start.
func (r *Registry) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc, opts ...Option) {
	c := &check{
		name:      name,
		kind:      kind,
		timeout:   timeout,
		fn:        fn,
		failAfter: 3,
		okAfter:   1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	r.mu.Lock()
	r.checks = append(r.checks, c)
	r.mu.Unlock()
}

// Start runs every check immediately and then once per interval until Stop
// or ctx is done.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.stop = cancel
	checks := append([]*check(nil), r.checks...)
	r.mu.Unlock()

	for _, c := range checks {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop cancels the runners and waits for them. Calling it twice is safe.
func (r *Registry) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.wg.Wait()
}

// SetReady flips the manual readiness switch. It is set after startup and
// cleared at the start of graceful shutdown.
func (r *Registry) SetReady(ready bool) { r.ready.Store(ready) }

// Failures returns the failing checks of kind, keyed by name. For readiness
// a cleared switch is reported under "_readiness".
func (r *Registry) Failures(kind Kind) map[string]string {
	r.mu.RLock()
	checks := append([]*check(nil), r.checks...)
	r.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range checks {
		if c.kind != kind {
			continue
		}
		if msg, failing := c.failure(); failing {
			out[c.name] = msg
		}
	}
	if kind == Readiness && !r.ready.Load() {
		out["_readiness"] = "service is not ready"
	}
	return out
}

// IsReady reports whether the switch is set and every readiness check passes.
func (r *Registry) IsReady() bool {
	return len(r.Failures(Readiness)) == 0
}

// LiveEndpoint serves the liveness probe.
func (r *Registry) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, r.Failures(Liveness))
}

// ReadyEndpoint serves the readiness probe.
func (r *Registry) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, r.Failures(Readiness))
}

// writeStatus writes {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
