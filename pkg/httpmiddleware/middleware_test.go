package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var trail []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trail = append(trail, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, trail)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	for _, tt := range []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"reused", "req-123", true},
		{"generated", "", false},
		{"too long", strings.Repeat("a", 129), false},
		{"control chars", "abc\x01", false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				r.Header.Set(HeaderRequestID, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func newRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/api/checkout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	return r
}

func TestMakeRouteFinder(t *testing.T) {
	find := MakeRouteFinder(newRouter())

	route, ok := find(httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil))
	require.True(t, ok)
	assert.Equal(t, "/api/orders/{id}", route.Pattern)

	_, ok = find(httptest.NewRequest(http.MethodDelete, "/api/orders/ord-1", nil))
	assert.False(t, ok)
	assert.Equal(t, "unmatched", routeName(find, httptest.NewRequest(http.MethodGet, "/nope", nil)))
}

func TestLoggingChain(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := newRouter()
	find := MakeRouteFinder(router)

	var ctxLogger *zap.Logger
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = zctx.From(r.Context())
		router.ServeHTTP(w, r)
	})
	h := Wrap(inner, RequestID(), InjectLogger(zap.New(core)), LogRequests(find))

	r := httptest.NewRequest(http.MethodGet, "/api/orders/ord-9", nil)
	r.Header.Set(HeaderRequestID, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, ctxLogger)
	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/orders/{id}", fields["route"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, "rid-1", fields["request_id"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	failed := logs.FilterMessage("Request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zap.New(core)), Recovery())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"INTERNAL","message":"internal server error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestInstrument(t *testing.T) {
	router := newRouter()
	find := MakeRouteFinder(router)
	h := Wrap(router, Instrument("storefront-api", find, noopTelemetry{}), Labeler(find))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		r.Header.Set("Access-Control-Request-Headers", "Authorization")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	t.Run("listed origin", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://Shop.example"}, MaxAge: 600})(okHandler())
		w := preflight(h, "https://shop.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	})

	t.Run("unknown origin", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://shop.example"}})(okHandler())
		w := preflight(h, "https://evil.example")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard with credentials echoes", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		r.Header.Set("Origin", "https://shop.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})

	t.Run("wildcard", func(t *testing.T) {
		h := CORS(CORSConfig{})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		r.Header.Set("Origin", "https://any.example")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Values("Vary"))
	})
}
