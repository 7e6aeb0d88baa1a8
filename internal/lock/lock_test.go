package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeClient emulates the two Redis calls the lock makes.
type fakeClient struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx, "set", key, value, "nx")
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	if _, exists := f.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (f *fakeClient) release(ctx context.Context, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeClient) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeClient) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeClient) EvalRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeClient) EvalShaRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeClient) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{true})
	return cmd
}

func (f *fakeClient) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func TestRedisAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	c := newFakeClient()
	l := newRedis(c, time.Minute, nil)

	release, err := l.Acquire(ctx, "scrape")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c.ttls[keyPrefix+"scrape"] != time.Minute {
		t.Fatalf("expected ttl to be set, got %v", c.ttls)
	}

	if _, err := l.Acquire(ctx, "scrape"); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if _, err := l.Acquire(ctx, "match"); err != nil {
		t.Fatalf("other lock names must be independent: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "scrape"); err != nil {
		t.Fatalf("expected lock to be free after release: %v", err)
	}
}

func TestRedisReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	c := newFakeClient()
	l := newRedis(c, 0, nil)

	release, err := l.Acquire(ctx, "scrape")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Lease expired and someone else took it.
	c.values[keyPrefix+"scrape"] = "other-token"

	if err := release(ctx); !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
	if c.values[keyPrefix+"scrape"] != "other-token" {
		t.Fatal("release must not delete a lock it does not own")
	}
}

func TestRedisAcquireError(t *testing.T) {
	c := newFakeClient()
	c.err = errors.New("connection refused")

	if _, err := newRedis(c, time.Second, nil).Acquire(context.Background(), "scrape"); err == nil || errors.Is(err, ErrHeld) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestNoop(t *testing.T) {
	release, err := Noop{}.Acquire(context.Background(), "scrape")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := (Noop{}).Acquire(context.Background(), "scrape"); err != nil {
		t.Fatalf("noop lock must always be granted: %v", err)
	}
	if err := release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestNewRedisRequiresClient(t *testing.T) {
	if _, err := NewRedis(nil, time.Second, nil); err == nil {
		t.Fatal("expected error without client")
	}
}
