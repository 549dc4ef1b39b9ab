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

// --- Helpers ---

func pass() CheckFunc {
	return func(context.Context) error { return nil }
}

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

// runN drives the named probe n times.
func runN(t *testing.T, h *Health, name string, n int) {
	t.Helper()
	for _, p := range h.probes {
		if p.name == name {
			for range n {
				p.run(context.Background())
			}
			return
		}
	}
	t.Fatalf("probe %q not registered", name)
}

// --- Tests ---

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, pass())
	h.AddLivenessCheck("db", time.Second, fail("connection refused"))

	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "checks start healthy")
	assert.Equal(t, "ok", body.Status)

	runN(t, h, "db", failAfter-1)
	code, _ = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	runN(t, h, "db", 1)
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, fail("down"))
	h.AddLivenessCheck("ignored", time.Second, fail("not a readiness check"))
	runN(t, h, "ignored", failAfter)

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, body.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(t, h, "postgres", failAfter)
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"postgres": "down"}, body.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, body = serve(t, h.ReadyEndpoint)
	assert.Len(t, body.Checks, 2)
}

func TestNoChecks(t *testing.T) {
	h := New()
	code, _ := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestProbeRecovers(t *testing.T) {
	failing := true
	h := New()
	h.AddReadinessCheck("flaky", time.Second, func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	})

	runN(t, h, "flaky", failAfter)
	assert.EqualError(t, h.Check("flaky"), "down")

	failing = false
	runN(t, h, "flaky", passAfter)
	assert.NoError(t, h.Check("flaky"))
}

func TestCheck_Unknown(t *testing.T) {
	assert.ErrorIs(t, New().Check("nope"), ErrUnknownCheck)
}

func TestProbeTimeout(t *testing.T) {
	h := New()
	h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runN(t, h, "slow", failAfter)
	assert.ErrorContains(t, h.Check("slow"), context.DeadlineExceeded.Error())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, fail("err"))
	h.AddReadinessCheck("ready", time.Second, pass())
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.Check("live") != nil
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingerFunc(func(context.Context) error { return nil }))(context.Background()))

	err := PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))(context.Background())
	assert.EqualError(t, err, "ping: refused")
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
