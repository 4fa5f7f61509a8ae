package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterAllowsUpToLimit(t *testing.T) {
	server := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(server.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
}

func TestFixedWindowLimiterFailsClosedOnRedisError(t *testing.T) {
	server := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(server.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	server.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("expected limiter to fail closed once redis is unreachable")
	}
}

func TestNewFixedWindowLimiterRequiresAddr(t *testing.T) {
	if _, err := NewFixedWindowLimiter("", "", "test", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
}
