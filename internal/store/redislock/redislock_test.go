package redislock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeClient struct {
	mu      sync.Mutex
	held    map[string]string
	setErr  error
	evals   int
	lastTTL time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{held: make(map[string]string)}
}

func (f *fakeClient) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastTTL = expiration
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.held[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evals++
	if !strings.Contains(script, `redis.call("del", KEYS[1])`) {
		return redis.NewCmdResult(nil, errors.New("unexpected script"))
	}
	if f.held[keys[0]] == args[0].(string) {
		delete(f.held, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestLockAndRelease(t *testing.T) {
	client := newFakeClient()
	locker := New(client, "", nil)

	release, err := locker.Lock(context.Background(), "Ingénieur Réseau", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastTTL != time.Minute {
		t.Fatalf("expected ttl to be forwarded, got %v", client.lastTTL)
	}
	if len(client.held) != 1 {
		t.Fatalf("expected one held key, got %d", len(client.held))
	}
	for key := range client.held {
		if !strings.HasPrefix(key, defaultPrefix) {
			t.Fatalf("unexpected key %q", key)
		}
	}

	if err := release(context.Background()); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if len(client.held) != 0 {
		t.Fatal("release must delete the key")
	}
}

func TestLockWaitsForHolder(t *testing.T) {
	client := newFakeClient()
	locker := New(client, "test:", nil)
	locker.poll = time.Millisecond

	release, err := locker.Lock(context.Background(), "Comptable", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(context.Background(), "Comptable", time.Minute)
		if err != nil {
			t.Errorf("second lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		_ = second(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(20 * time.Millisecond):
	}

	if err := release(context.Background()); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestLockHonoursContext(t *testing.T) {
	client := newFakeClient()
	locker := New(client, "test:", nil)
	locker.poll = time.Millisecond

	if _, err := locker.Lock(context.Background(), "Chauffeur", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := locker.Lock(ctx, "Chauffeur", time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLockErrors(t *testing.T) {
	client := newFakeClient()
	client.setErr = errors.New("connection refused")

	locker := New(client, "", nil)
	if _, err := locker.Lock(context.Background(), "x", time.Minute); err == nil {
		t.Fatal("expected redis error")
	}
	if _, err := locker.Lock(context.Background(), "x", 0); err == nil {
		t.Fatal("expected ttl error")
	}
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	client := newFakeClient()
	locker := New(client, "test:", nil)

	release, _ := locker.Lock(context.Background(), "Comptable", time.Minute)

	// simulate expiry and takeover by another worker
	key := locker.key("Comptable")
	client.held[key] = "someone-else"

	if err := release(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.held[key] != "someone-else" {
		t.Fatal("release must not delete a lock held by another token")
	}
}
