package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/bateson-coach/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *Registry {
	r := NewRegistry(func(id string) *domain.Session {
		return domain.NewSession(id, "system", clock.Now())
	})
	r.now = clock.Now
	return r
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)

	a := r.GetOrCreate("a")
	if got := r.GetOrCreate("a"); got != a {
		t.Fatal("expected the same session instance")
	}
	if _, ok := r.Get("b"); ok {
		t.Fatal("unexpected session b")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestResetStartsOver(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)

	a := r.GetOrCreate("a")
	a.Lock()
	_ = a.AppendLocked(domain.Message{Role: domain.RoleUser, Content: "hi"})
	a.ProgressLocked().Increment(domain.StageFirstLearning)
	a.Unlock()

	if !r.Reset("a") {
		t.Fatal("Reset should report an existing session")
	}
	if r.Reset("a") {
		t.Fatal("second Reset should report nothing removed")
	}

	fresh := r.GetOrCreate("a").Snapshot()
	if len(fresh.Transcript) != 1 || fresh.Progress.Total() != 0 {
		t.Fatalf("expected fresh session, got %+v", fresh)
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)

	r.GetOrCreate("idle")
	active := r.GetOrCreate("active")

	clock.Advance(20 * time.Minute)
	active.Touch(clock.Now())
	clock.Advance(20 * time.Minute)

	expired := r.Sweep(30 * time.Minute)
	if len(expired) != 1 || expired[0] != "idle" {
		t.Fatalf("expired = %v, want [idle]", expired)
	}
	if _, ok := r.Get("idle"); ok {
		t.Fatal("idle session should be gone")
	}
	if _, ok := r.Get("active"); !ok {
		t.Fatal("active session should remain")
	}
}

func TestSweepKeepsSessionHandedOutForTurn(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)

	r.GetOrCreate("a")
	clock.Advance(time.Hour)

	// Looked up for a turn that has not taken the session lock yet.
	s := r.GetOrCreate("a")
	if expired := r.Sweep(30 * time.Minute); len(expired) != 0 {
		t.Fatalf("expired = %v, want none", expired)
	}
	if got, ok := r.Get("a"); !ok || got != s {
		t.Fatal("session handed out for a turn must stay registered")
	}

	clock.Advance(time.Hour)
	if expired := r.Sweep(30 * time.Minute); len(expired) != 1 {
		t.Fatalf("expired = %v, want [a]", expired)
	}
}

func TestSweeperInvokesCallback(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)
	r.GetOrCreate("old")
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	StartSweeper(ctx, r, time.Minute, 10*time.Millisecond, func(id string) {
		select {
		case got <- id:
		default:
		}
	})

	select {
	case id := <-got:
		if id != "old" {
			t.Fatalf("expired %q, want old", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not expire the session")
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(clock)

	var wg sync.WaitGroup
	results := make([]*domain.Session, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		if s != results[0] {
			t.Fatal("concurrent GetOrCreate returned different sessions")
		}
	}
}
