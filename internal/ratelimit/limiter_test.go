package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}

func TestLimiterBlocksOverCap(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, "cb", 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		retryAfter, allowed, err := l.Allow(ctx, "203.0.113.9")
		if err != nil {
			t.Fatalf("allow #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected result on allow #%d: allowed=%v retry_after=%v", i+1, allowed, retryAfter)
		}
	}

	retryAfter, allowed, err := l.Allow(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("allow #3: %v", err)
	}
	if allowed {
		t.Fatalf("expected block on third request in window")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %v", retryAfter)
	}
}

func TestLimiterWindowResets(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, "cb", 1)
	ctx := context.Background()

	if _, allowed, err := l.Allow(ctx, "198.51.100.7"); err != nil || !allowed {
		t.Fatalf("first request must pass: allowed=%v err=%v", allowed, err)
	}
	if _, allowed, _ := l.Allow(ctx, "198.51.100.7"); allowed {
		t.Fatalf("second request must be blocked")
	}

	mr.FastForward(61 * time.Second)

	if _, allowed, err := l.Allow(ctx, "198.51.100.7"); err != nil || !allowed {
		t.Fatalf("request after window must pass: allowed=%v err=%v", allowed, err)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, "cb", 1)
	ctx := context.Background()

	if _, allowed, _ := l.Allow(ctx, "203.0.113.1"); !allowed {
		t.Fatalf("first ip must pass")
	}
	if _, allowed, _ := l.Allow(ctx, "203.0.113.2"); !allowed {
		t.Fatalf("second ip must pass independently")
	}
}
