package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courtq/pkg/logger"
)

func TestCatalogClient_GetResourcePrice(t *testing.T) {
	log := logger.Discard()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int64
		wantErr bool
	}{
		{
			name: "returns catalog price",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/resources/court-1/price" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("duration_minutes") != "60" {
					t.Errorf("unexpected duration %s", r.URL.Query().Get("duration_minutes"))
				}
				_, _ = w.Write([]byte(`{"price_cents": 4500}`))
			},
			want: 4500,
		},
		{
			name: "falls back on server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"code":"INTERNAL_ERROR","message":"boom"}`))
			},
			want: 1000,
		},
		{
			name: "malformed body is an error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewCatalogClient(srv.URL, time.Second, 1000, log)
			got, err := c.GetResourcePrice(context.Background(), "court-1", 60)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetResourcePrice() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatalogClient_NoBaseURL(t *testing.T) {
	log := logger.Discard()
	c := NewCatalogClient("", time.Second, 2500, log)

	got, err := c.GetResourcePrice(context.Background(), "court-1", 60)
	if err != nil || got != 2500 {
		t.Errorf("GetResourcePrice() = %d, %v; want 2500, nil", got, err)
	}
}
