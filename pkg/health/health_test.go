package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type probeBody struct {
	Status string
	Checks map[string]string
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) probeBody {
	t.Helper()
	var b probeBody
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			b.Status = s
			return err
		case "checks":
			b.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				b.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return b
}

func onlyCheck(h *Health) *check {
	return h.checks[len(h.checks)-1]
}

func TestLiveEndpoint(t *testing.T) {
	h := New(zaptest.NewLogger(t))
	h.Add(Liveness, "goroutines", time.Second, GoroutineCountCheck(1<<20))

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, w).Status)
}

func TestCheck_Thresholds(t *testing.T) {
	ctx := context.Background()
	var failing atomic.Bool
	failing.Store(true)

	h := New(nil)
	h.SetReady(true)
	h.Add(Readiness, "postgres", time.Second, PingCheck(PingFunc(func(context.Context) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	})))
	c := onlyCheck(h)

	assert.False(t, c.run(ctx))
	assert.False(t, c.run(ctx))
	assert.True(t, h.IsReady(), "two failures stay below the threshold")

	assert.True(t, c.run(ctx))
	assert.False(t, h.IsReady())

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["postgres"])

	failing.Store(false)
	assert.True(t, c.run(ctx))
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint_ManualFlag(t *testing.T) {
	h := New(nil)
	h.Add(Readiness, "redis", time.Second, func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service is not ready", decodeBody(t, w).Checks["_readiness"])

	h.SetReady(true)
	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestLivenessIgnoresReadinessFailures(t *testing.T) {
	ctx := context.Background()
	h := New(nil)
	h.Add(Readiness, "mongo", time.Second, func(context.Context) error { return errors.New("down") })
	c := onlyCheck(h)
	for range failureThreshold {
		c.run(ctx)
	}

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartAndStop(t *testing.T) {
	var calls atomic.Int32
	h := New(zaptest.NewLogger(t))
	h.Add(Liveness, "counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(30 * time.Millisecond)
	n := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), n+1)
}

func TestCheckTimeout(t *testing.T) {
	h := New(nil)
	h.Add(Readiness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c := onlyCheck(h)
	c.run(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), c.failure())
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1<<20)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
