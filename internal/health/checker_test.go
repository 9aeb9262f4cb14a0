package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quorum-sim/generals/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// switchable is a check whose result the test flips.
type switchable struct {
	mu  sync.Mutex
	err error
}

func (s *switchable) set(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *switchable) check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type recorder struct {
	mu      sync.Mutex
	changes []Status
}

func (r *recorder) onChange(s Status) {
	r.mu.Lock()
	r.changes = append(r.changes, s)
	r.mu.Unlock()
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.changes {
		state := "up"
		if !s.Healthy {
			state = "down"
		}
		out = append(out, s.Name+" "+state)
	}
	return out
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestChecker_RunAllHealthy(t *testing.T) {
	db := newTestDB(t)
	rec := &recorder{}
	c := NewChecker(Config{
		Checks: func() []Check {
			return []Check{
				{Name: "journal", CheckFn: func(context.Context) error { return db.Ping() }},
				{Name: "G1", CheckFn: func(context.Context) error { return nil }},
			}
		},
		OnChange: rec.onChange,
	})
	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
	if got := rec.names(); len(got) != 0 {
		t.Errorf("changes = %v, want none for checks that start healthy", got)
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	c := NewChecker(Config{})

	// Before any run there are no statuses, so IsHealthy is vacuously true.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_ReportsTransitions(t *testing.T) {
	g2 := &switchable{}
	rec := &recorder{}
	c := NewChecker(Config{
		Checks: func() []Check {
			return []Check{{Name: "G2", CheckFn: g2.check}}
		},
		OnChange: rec.onChange,
	})
	ctx := context.Background()

	c.runAll(ctx)
	g2.set(errors.New("connection refused"))
	c.runAll(ctx)
	c.runAll(ctx) // still down: reported once
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false while G2 is down")
	}
	if s := c.Statuses()[0]; s.Error != "connection refused" {
		t.Errorf("Error = %q", s.Error)
	}
	g2.set(nil)
	c.runAll(ctx)

	got := rec.names()
	want := []string{"G2 down", "G2 up"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestChecker_IgnoresUntilFirstPass(t *testing.T) {
	g3 := &switchable{err: errors.New("starting")}
	rec := &recorder{}
	c := NewChecker(Config{
		Checks: func() []Check {
			return []Check{{Name: "G3", CheckFn: g3.check}}
		},
		OnChange: rec.onChange,
	})
	ctx := context.Background()

	c.runAll(ctx) // still starting: not reported
	g3.set(nil)
	c.runAll(ctx) // first pass: tracked, not reported
	if got := rec.names(); len(got) != 0 {
		t.Fatalf("changes = %v, want none", got)
	}
	g3.set(errors.New("down"))
	c.runAll(ctx)
	if got := rec.names(); len(got) != 1 || got[0] != "G3 down" {
		t.Errorf("changes = %v, want [G3 down]", got)
	}
}

func TestChecker_ForgetsRemovedChecks(t *testing.T) {
	var mu sync.Mutex
	names := []string{"G1", "G2"}
	g2 := &switchable{}
	rec := &recorder{}
	c := NewChecker(Config{
		Checks: func() []Check {
			mu.Lock()
			defer mu.Unlock()
			var out []Check
			for _, n := range names {
				fn := func(context.Context) error { return nil }
				if n == "G2" {
					fn = g2.check
				}
				out = append(out, Check{Name: n, CheckFn: fn})
			}
			return out
		},
		OnChange: rec.onChange,
	})
	ctx := context.Background()
	c.runAll(ctx) // both up

	mu.Lock()
	names = []string{"G1"}
	mu.Unlock()
	c.runAll(ctx) // G2 killed: no report

	mu.Lock()
	names = []string{"G1", "G2"}
	mu.Unlock()
	g2.set(errors.New("starting"))
	c.runAll(ctx) // G2 re-added, still starting: no report

	if got := rec.names(); len(got) != 0 {
		t.Errorf("changes = %v, want none", got)
	}
	if len(c.Statuses()) != 2 {
		t.Errorf("Statuses() = %d, want 2", len(c.Statuses()))
	}
}

func TestChecker_Run(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := NewChecker(Config{
		Interval: 10 * time.Millisecond,
		Checks: func() []Check {
			return []Check{{Name: "G1", CheckFn: func(context.Context) error {
				mu.Lock()
				calls++
				mu.Unlock()
				return nil
			}}}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Errorf("calls = %d, want at least 2", calls)
	}
}
