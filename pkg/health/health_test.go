package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysPass(context.Context) error { return nil }

func alwaysFail(msg string) ProbeFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func serve(t *testing.T, handler http.HandlerFunc, path string) (int, probeReport) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))

	var report probeReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	return w.Code, report
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	s := New()
	s.AddLivenessCheck("goroutines", time.Second, alwaysPass)
	s.AddLivenessCheck("gc", time.Second, alwaysPass)

	code, report := serve(t, s.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", report.Status)
	assert.Empty(t, report.Checks)
}

func TestLiveEndpoint_FailureNeedsThreshold(t *testing.T) {
	s := New()
	s.AddLivenessCheck("db", time.Second, alwaysFail("connection refused"))
	p := s.liveness[0]
	ctx := context.Background()

	// Two consecutive failures stay under the default threshold of three.
	p.evaluate(ctx)
	p.evaluate(ctx)
	code, _ := serve(t, s.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusOK, code)

	p.evaluate(ctx)
	code, report := serve(t, s.LiveEndpoint, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "connection refused", report.Checks["db"])
}

func TestProbe_RecoversAfterSuccess(t *testing.T) {
	down := true
	s := New()
	s.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := s.liveness[0]
	ctx := context.Background()

	for range 3 {
		p.evaluate(ctx)
	}
	assert.False(t, p.passing.Load())

	// Default SuccessThreshold is one pass.
	down = false
	p.evaluate(ctx)
	assert.True(t, p.passing.Load())
}

func TestProbeOptions_SuccessThreshold(t *testing.T) {
	down := true
	s := New()
	s.AddReadinessCheckWithOptions("warmup", time.Second, func(context.Context) error {
		if down {
			return errors.New("cold")
		}
		return nil
	}, ProbeOptions{FailureThreshold: 1, SuccessThreshold: 2})
	p := s.readiness[0]
	ctx := context.Background()

	p.evaluate(ctx)
	assert.False(t, p.passing.Load(), "single failure flips with threshold 1")

	down = false
	p.evaluate(ctx)
	assert.False(t, p.passing.Load(), "one pass is below the success threshold")
	p.evaluate(ctx)
	assert.True(t, p.passing.Load())
}

func TestReadyEndpoint_GateClosedByDefault(t *testing.T) {
	s := New()
	s.AddReadinessCheck("postgres", time.Second, alwaysPass)

	code, report := serve(t, s.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, report.Checks, "_readiness")

	s.SetReady(true)
	code, report = serve(t, s.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", report.Status)
}

func TestReadyEndpoint_DrainClosesGate(t *testing.T) {
	s := New()
	s.SetReady(true)
	code, _ := serve(t, s.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	s.SetReady(false)
	code, _ = serve(t, s.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_ReportsOnlyFailingProbes(t *testing.T) {
	s := New()
	s.AddReadinessCheck("postgres", time.Second, alwaysPass)
	s.AddReadinessCheck("redis", time.Second, alwaysFail("no route to host"))
	s.SetReady(true)

	ctx := context.Background()
	for range 3 {
		s.readiness[1].evaluate(ctx)
	}

	code, report := serve(t, s.ReadyEndpoint, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, report.Checks, "redis")
	assert.NotContains(t, report.Checks, "postgres")
}

func TestIsReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("postgres", time.Second, alwaysPass)

	assert.False(t, s.IsReady())
	s.SetReady(true)
	assert.True(t, s.IsReady())
	s.SetReady(false)
	assert.False(t, s.IsReady())
}

func TestProbe_LastFailureStored(t *testing.T) {
	s := New()
	s.AddLivenessCheck("db", time.Second, alwaysFail("timeout"))
	p := s.liveness[0]

	assert.Nil(t, p.lastFailure())
	p.evaluate(context.Background())
	assert.EqualError(t, p.lastFailure(), "timeout")
}

func TestStartStop(t *testing.T) {
	s := New()
	s.AddLivenessCheck("goroutines", time.Second, alwaysPass)

	s.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// Stop is idempotent.
	s.Stop()
	s.Stop()
}

func TestEndpoints_ConcurrentWithScheduler(t *testing.T) {
	s := New()
	s.AddLivenessCheck("flaky", time.Second, alwaysFail("err"))
	s.AddReadinessCheck("postgres", time.Second, alwaysPass)
	s.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.IsReady()
				s.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				s.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	s.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goroutines")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
