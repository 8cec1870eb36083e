package lease

import (
	"context"
	"testing"
	"time"
)

func TestNew_WithoutRedisIsLocal(t *testing.T) {
	l := New(nil, "courtq:sweeper", time.Second)
	if _, ok := l.(Local); !ok {
		t.Fatalf("New(nil) = %T, want Local", l)
	}
	held, err := l.Acquire(context.Background())
	if err != nil || !held {
		t.Errorf("Local.Acquire() = %v, %v", held, err)
	}
	if err := l.Release(context.Background()); err != nil {
		t.Errorf("Local.Release() error = %v", err)
	}
}

func TestNewRedisLease_UniqueTokens(t *testing.T) {
	a := NewRedisLease(nil, "k", time.Second)
	b := NewRedisLease(nil, "k", time.Second)
	if a.token == "" || a.token == b.token {
		t.Errorf("tokens should be unique and non-empty: %q %q", a.token, b.token)
	}
}
