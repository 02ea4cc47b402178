//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClient struct {
	counts  map[string]int64
	expires map[string]time.Duration
	incrErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{counts: make(map[string]int64), expires: make(map[string]time.Duration)}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.expires[key] = expiration
	return nil
}

func (f *fakeClient) Close() error { return nil }

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	rl := NewRateLimiter(cli)
	key := CheckoutKey("user-1")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Error("expected the 4th request in the window to be rejected")
	}

	if cli.expires[key] != time.Minute {
		t.Errorf("expected the window TTL to be set once, got %v", cli.expires[key])
	}
}

func TestRateLimiterPropagatesErrors(t *testing.T) {
	cli := newFakeClient()
	cli.incrErr = errors.New("connection refused")
	rl := NewRateLimiter(cli)

	if _, err := rl.Allow(context.Background(), "k", 3, time.Minute); err == nil {
		t.Error("expected the redis error to propagate")
	}
}

func TestCheckoutKey(t *testing.T) {
	if got := CheckoutKey("user-1"); got != "rate_limit:checkout:user-1" {
		t.Errorf("unexpected key %q", got)
	}
}
