// Package health watches a running quorum from the launcher. Every
// interval it probes each general and the command journal, and reports
// when one of them stops (or resumes) answering.
package health

import (
	"context"
	"sync"
	"time"
)

// Check defines a single health check.
type Check struct {
	Name    string
	CheckFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Config configures a Checker.
type Config struct {
	Interval time.Duration

	// Checks returns the checks of one pass. It is called on every pass
	// since generals come and go.
	Checks func() []Check

	// OnChange is called when a check that passed before fails, and when
	// it passes again. A check is not tracked until it first passes, so a
	// general still starting up is never reported.
	OnChange func(Status)
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	statuses []Status
	last     map[string]bool

	interval time.Duration
	checks   func() []Check
	onChange func(Status)
	now      func() time.Time
}

// NewChecker creates a checker. Interval defaults to 2s.
func NewChecker(cfg Config) *Checker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Checker{
		interval: interval,
		checks:   cfg.Checks,
		onChange: cfg.OnChange,
		last:     make(map[string]bool),
		now:      time.Now,
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	var checks []Check
	if c.checks != nil {
		checks = c.checks()
	}

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		ctx, cancel := context.WithTimeout(ctx, c.interval)
		err := check.CheckFn(ctx)
		cancel()

		s := Status{Name: check.Name, Healthy: err == nil, CheckedAt: c.now()}
		if err != nil {
			s.Error = err.Error()
		}
		statuses[i] = s
	}

	var changed []Status
	c.mu.Lock()
	seen := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		seen[s.Name] = true
		prev, known := c.last[s.Name]
		switch {
		case !known && !s.Healthy:
			continue
		case known && prev != s.Healthy:
			changed = append(changed, s)
		}
		c.last[s.Name] = s.Healthy
	}
	// Forget checks that are gone so a reused name starts fresh.
	for name := range c.last {
		if !seen[name] {
			delete(c.last, name)
		}
	}
	c.statuses = statuses
	c.mu.Unlock()

	if c.onChange != nil && ctx.Err() == nil {
		for _, s := range changed {
			c.onChange(s)
		}
	}
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
