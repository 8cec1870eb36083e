package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"courtq/pkg/auth"
	httputil "courtq/pkg/http"
	"courtq/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.Discard()
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %s", body.Code)
	}
}

func TestRequestLogging_PropagatesRequestID(t *testing.T) {
	var seen string
	h := RequestLogging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestID(r)
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("request id = %q, header = %q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("a request id should be generated")
	}
}

func TestContentTypeValidation(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		want        int
	}{
		{"json post", http.MethodPost, `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"form post", http.MethodPost, `a=b`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"missing header", http.MethodPost, `{}`, "", http.StatusUnsupportedMediaType},
		{"bodiless command", http.MethodPost, ``, "", http.StatusOK},
		{"get", http.MethodGet, ``, "", http.StatusOK},
	}

	h := ContentTypeValidation(testLogger())(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	h := MaxRequestSize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	if rec.Code != http.StatusOK {
		t.Errorf("small body status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too large")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body status = %d, want 413", rec.Code)
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	RequestTimeout(10*time.Millisecond, testLogger())(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "TIMEOUT" {
		t.Errorf("code = %s", body.Code)
	}
}

func TestRequestTimeout_FastHandlerKeepsHeaders(t *testing.T) {
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	RequestTimeout(time.Second, testLogger())(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusCreated || rec.Header().Get("X-Test") != "yes" {
		t.Errorf("status = %d header = %q", rec.Code, rec.Header().Get("X-Test"))
	}
}

func TestIdempotency_ReplaysSuccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	var calls int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte{byte('0' + n)})
	}))

	send := func(requester string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", nil)
		req.Header.Set(IdempotencyHeader, "k1")
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{RequesterID: requester}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("alice")
	second := send("alice")
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay = %d %q, want %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Error("replayed response should be marked")
	}

	send("bob")
	if calls != 2 {
		t.Errorf("same key from another requester must not replay, calls = %d", calls)
	}
}

func TestIdempotency_SkipsFailures(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Minute)
	defer store.Stop()

	var calls int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(IdempotencyHeader, "k1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Errorf("calls = %d, failed responses must not be cached", calls)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := NewRequesterRateLimiter(2, time.Minute, nil, testLogger())
	defer limiter.Stop()
	h := RateLimit(limiter)(okHandler())

	send := func(requester string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{RequesterID: requester}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("alice"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Errorf("other requester status = %d", code)
	}
}

func TestRequesterKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := RequesterKey(req); got != "addr:10.0.0.1" {
		t.Errorf("anonymous key = %q", got)
	}

	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{RequesterID: "alice"}))
	if got := RequesterKey(req); got != "requester:alice" {
		t.Errorf("authenticated key = %q", got)
	}
}

func TestAuthenticate(t *testing.T) {
	const secret = "test-secret"
	const webhookSecret = "webhook-secret"
	resolver := auth.NewJWTResolver(secret)
	token, err := resolver.Issue(auth.Identity{RequesterID: "alice", Role: auth.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var got auth.Identity
	h := Authenticate(resolver, webhookSecret, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))

	payload := []byte(`{"status":"paid"}`)
	const confirmPath = "/api/v1/reservations/id/r1/confirm"

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		want     int
		wantRole string
		wantID   string
	}{
		{
			name:     "bearer token",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			want:     http.StatusOK,
			wantRole: auth.RoleUser,
			wantID:   "alice",
		},
		{
			name:  "missing token",
			setup: func(r *http.Request) {},
			want:  http.StatusUnauthorized,
		},
		{
			name:  "garbage token",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			want:  http.StatusUnauthorized,
		},
		{
			name: "signed payment webhook",
			setup: func(r *http.Request) {
				r.Header.Set(SignatureHeader, "sha256="+Sign(http.MethodPost, confirmPath, "p1", payload, webhookSecret))
				r.Header.Set(PaymentIDHeader, "p1")
			},
			want:     http.StatusOK,
			wantRole: auth.RolePayment,
			wantID:   "payment:p1",
		},
		{
			name: "bad webhook signature",
			setup: func(r *http.Request) {
				r.Header.Set(SignatureHeader, "sha256="+Sign(http.MethodPost, confirmPath, "p1", payload, "other"))
				r.Header.Set(PaymentIDHeader, "p1")
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "signature for another reservation",
			setup: func(r *http.Request) {
				r.Header.Set(SignatureHeader, "sha256="+Sign(http.MethodPost, "/api/v1/reservations/id/other/confirm", "p1", payload, webhookSecret))
				r.Header.Set(PaymentIDHeader, "p1")
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "payment id swapped",
			setup: func(r *http.Request) {
				r.Header.Set(SignatureHeader, "sha256="+Sign(http.MethodPost, confirmPath, "p1", payload, webhookSecret))
				r.Header.Set(PaymentIDHeader, "p2")
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "missing payment id",
			setup: func(r *http.Request) {
				r.Header.Set(SignatureHeader, "sha256="+Sign(http.MethodPost, confirmPath, "", payload, webhookSecret))
			},
			want: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = auth.Identity{}
			req := httptest.NewRequest(http.MethodPost, confirmPath, bytes.NewReader(payload))
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				if body := decodeError(t, rec); body.Code != "UNAUTHORIZED" {
					t.Errorf("code = %s", body.Code)
				}
				return
			}
			if got.Role != tt.wantRole || got.RequesterID != tt.wantID {
				t.Errorf("identity = %+v", got)
			}
			if rec.Body.String() != string(payload) {
				t.Error("body should still be readable after signature verification")
			}
		})
	}
}

func TestAuthenticate_BodilessWebhookBoundToPath(t *testing.T) {
	const webhookSecret = "webhook-secret"
	h := Authenticate(auth.NewJWTResolver("s"), webhookSecret, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	signature := "sha256=" + Sign(http.MethodPost, "/api/v1/reservations/id/AAA/confirm", "p1", nil, webhookSecret)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/reservations/id/AAA/confirm", http.StatusOK},
		{"/api/v1/reservations/id/VICTIM/confirm", http.StatusUnauthorized},
		{"/api/v1/reservations/id/AAA/cancel", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			req.Header.Set(SignatureHeader, signature)
			req.Header.Set(PaymentIDHeader, "p1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
