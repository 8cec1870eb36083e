package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtq/pkg/auth"
	"courtq/pkg/config"
	"courtq/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type routes func(*httprouter.Router)

func (f routes) RegisterRoutes(r *httprouter.Router) { f(r) }

func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Minute,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		MaxRequestSize:    1024,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
	}
}

func TestApplication_Routing(t *testing.T) {
	resolver := auth.NewJWTResolver("secret")
	api := routes(func(r *httprouter.Router) {
		r.GET("/api/v1/ping", func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
			id, _ := auth.FromContext(req.Context())
			_, _ = w.Write([]byte(id.RequesterID))
		})
	})
	health := routes(func(r *httprouter.Router) {
		r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.WriteHeader(http.StatusOK)
		})
	})

	a := NewApplication(testConfig())
	a.SetApp(api, health, resolver)
	defer a.idempotencyStore.Stop()
	defer a.rateLimiter.Stop()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without a token", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous api status = %d, want 401", rec.Code)
	}

	token, err := resolver.Issue(auth.Identity{RequesterID: "alice", Role: auth.RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Errorf("authenticated api = %d %q", rec.Code, rec.Body.String())
	}
}
