package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TestCorrelationIDMiddleware verifies ID generation, propagation of a
// client-supplied ID and the response header.
func TestCorrelationIDMiddleware(t *testing.T) {
	var ctxCorrID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			ctxCorrID = v.(string)
		}
		w.WriteHeader(http.StatusOK)
	})

	mw := CorrelationIDMiddleware(zap.NewNop())

	t.Run("generates ID when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

		got := rec.Header().Get("X-Correlation-ID")
		if got == "" {
			t.Fatal("no X-Correlation-ID header set")
		}
		if ctxCorrID != got {
			t.Errorf("context ID %q differs from header %q", ctxCorrID, got)
		}
	})

	t.Run("preserves client ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.Header.Set("X-Correlation-ID", "client-id-42")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)

		if got := rec.Header().Get("X-Correlation-ID"); got != "client-id-42" {
			t.Errorf("header = %q, want client-id-42", got)
		}
	})

	t.Run("logger placed in context", func(t *testing.T) {
		var hasLogger bool
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasLogger = r.Context().Value("logger").(*zap.Logger)
		})
		mw(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
		if !hasLogger {
			t.Error("no request-scoped logger in context")
		}
	})
}

// TestGetRoute verifies path normalization for metric labels.
func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/health", "/api/health"},
		{"/metrics", "/metrics"},
		{"/api/avalanche/vanoise", "/api/avalanche/{massif}"},
		{"/api/warnings/savoie", "/api/warnings/{department}"},
		{"/api/forecast/extended", "/api/forecast/extended"},
		{"/", "/"},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", tc.path, nil)
		if got := getRoute(r); got != tc.want {
			t.Errorf("getRoute(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

// TestCORSMiddleware verifies the permissive read-only CORS policy and the
// preflight short-circuit.
func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("GET status = %d, want handler status", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/health", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204 without reaching handler", rec.Code)
	}
}

// TestTimeoutMiddleware verifies the request context carries the deadline.
func TestTimeoutMiddleware(t *testing.T) {
	var hadDeadline bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	})

	mw := TimeoutMiddleware(50 * time.Millisecond)
	mw(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !hadDeadline {
		t.Error("request context has no deadline")
	}
}

// TestRateLimitMiddleware verifies 429 responses once the bucket is empty and
// pass-through when no limiter is configured.
func TestRateLimitMiddleware(t *testing.T) {
	t.Run("denies when exhausted", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(1), 1)
		mw := RateLimitMiddleware(limiter)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/forecast/extended", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("first request status = %d, want 200", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/forecast/extended", nil))
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("second request status = %d, want 429", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
	})

	t.Run("nil limiter passes through", func(t *testing.T) {
		mw := RateLimitMiddleware(nil)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		for i := 0; i < 10; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d status = %d, want 200", i, rec.Code)
			}
		}
	})
}

// TestMetricsMiddleware_TracksInFlight verifies the in-flight counter returns
// to zero after the request completes.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
	}))

	router := mux.NewRouter()
	router.PathPrefix("/").Handler(handler)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %d, want 1", during)
	}
	if got := InFlightCount(); got != 0 {
		t.Errorf("in-flight after request = %d, want 0", got)
	}
}
