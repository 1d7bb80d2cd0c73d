// Package health exposes Kubernetes-style /livez and /readyz probe handlers.
//
// Probes are evaluated periodically by a single scheduler goroutine per
// probe class. A probe flips to failing only after it has failed
// consecutively FailureThreshold times, and flips back after
// SuccessThreshold consecutive passes, so a single slow database ping does
// not bounce the pod out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc reports the health of one component. A nil return means healthy.
type ProbeFunc func(ctx context.Context) error

// ProbeOptions tune the flap-damping behavior of a single probe.
type ProbeOptions struct {
	// FailureThreshold is how many consecutive failures mark the probe
	// failing. Zero means the default of 3.
	FailureThreshold int
	// SuccessThreshold is how many consecutive passes mark the probe
	// passing again. Zero means the default of 1.
	SuccessThreshold int
}

func (o ProbeOptions) withDefaults() ProbeOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 1
	}
	return o
}

// probe carries one registered check and its damping state.
//
// evaluate is only ever called from the class scheduler goroutine, so the
// consecutive counters need no locking. passing and failure are read from
// HTTP handler goroutines and use atomics.
type probe struct {
	name    string
	timeout time.Duration
	fn      ProbeFunc
	opts    ProbeOptions

	passing atomic.Bool
	failure atomic.Pointer[error]

	fails  int
	passes int
}

func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.fn(ctx)
	cancel()

	p.failure.Store(&err)
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= p.opts.FailureThreshold {
			p.passing.Store(false)
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= p.opts.SuccessThreshold {
		p.passing.Store(true)
	}
}

func (p *probe) lastFailure() error {
	if e := p.failure.Load(); e != nil {
		return *e
	}
	return nil
}

// Service evaluates liveness and readiness probes and serves their state.
//
// Readiness additionally gates on an explicit flag: the service reports
// not-ready until SetReady(true), and again after SetReady(false) during
// graceful shutdown, regardless of probe state.
type Service struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Service with no probes, in the not-ready state.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a liveness probe with default damping. Liveness
// failures mean the process should be restarted.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn ProbeFunc) {
	s.add(&s.liveness, name, timeout, fn, ProbeOptions{})
}

// AddReadinessCheck registers a readiness probe with default damping.
// Readiness failures mean the process should stop receiving traffic.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn ProbeFunc) {
	s.add(&s.readiness, name, timeout, fn, ProbeOptions{})
}

// AddReadinessCheckWithOptions is AddReadinessCheck with explicit damping.
func (s *Service) AddReadinessCheckWithOptions(name string, timeout time.Duration, fn ProbeFunc, opts ProbeOptions) {
	s.add(&s.readiness, name, timeout, fn, opts)
}

func (s *Service) add(class *[]*probe, name string, timeout time.Duration, fn ProbeFunc, opts ProbeOptions) {
	p := &probe{
		name:    name,
		timeout: timeout,
		fn:      fn,
		opts:    opts.withDefaults(),
	}
	// A probe counts as passing until it has actually failed; otherwise a
	// pod would report unhealthy during the first evaluation interval.
	p.passing.Store(true)

	s.mu.Lock()
	*class = append(*class, p)
	s.mu.Unlock()
}

// Start launches one scheduler goroutine per probe class, each evaluating
// its probes immediately and then every interval. Register all probes before
// calling Start.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	classes := [][]*probe{s.liveness, s.readiness}
	s.mu.Unlock()

	for _, probes := range classes {
		if len(probes) == 0 {
			continue
		}
		go schedule(ctx, probes, interval)
	}
}

// schedule evaluates every probe in its class sequentially. Probes within a
// class share the goroutine, so a hung probe delays its siblings at most by
// its own timeout.
func schedule(ctx context.Context, probes []*probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, p := range probes {
		p.evaluate(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range probes {
				p.evaluate(ctx)
			}
		}
	}
}

// Stop cancels the scheduler goroutines. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the explicit readiness gate. Call with true once startup
// finishes and with false when draining.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	for _, p := range s.snapshot(&s.readiness) {
		if !p.passing.Load() {
			return false
		}
	}
	return true
}

func (s *Service) snapshot(class *[]*probe) []*probe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*probe, len(*class))
	copy(out, *class)
	return out
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} when every liveness probe
// passes, 503 with the failing probes otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, failuresOf(s.snapshot(&s.liveness)))
}

// ReadyEndpoint serves /readyz: like LiveEndpoint over the readiness probes,
// and additionally 503 while the explicit readiness gate is closed.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := failuresOf(s.snapshot(&s.readiness))
	if !s.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeReport(w, failures)
}

func failuresOf(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if p.passing.Load() {
			continue
		}
		if err := p.lastFailure(); err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

func writeReport(w http.ResponseWriter, failures map[string]string) {
	report := probeReport{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		report.Status = "unhealthy"
		report.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
