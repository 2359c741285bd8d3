// Package health exposes liveness and readiness probes for a graphcore
// process.
package health

import (
	"context"
	"time"
)

// DefaultTimeout bounds one probe.
const DefaultTimeout = 2 * time.Second

// NewChecker creates a checker. A non-positive timeout uses DefaultTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		checks: map[Kind]map[string]CheckFunc{
			Liveness:  {},
			Readiness: {},
		},
		started: time.Now(),
		timeout: timeout,
	}
}

// Register adds or replaces a named check.
func (c *Checker) Register(kind Kind, name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[kind][name] = check
}

// Run performs every check of kind. The worst status wins.
func (c *Checker) Run(ctx context.Context, kind Kind) Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(c.checks[kind])),
		Uptime:    time.Since(c.started),
	}
	for name, fn := range c.checks[kind] {
		start := time.Now()
		check := fn(ctx)
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		response.Checks[name] = check

		switch {
		case check.Status == StatusUnhealthy:
			response.Status = StatusUnhealthy
		case check.Status == StatusDegraded && response.Status != StatusUnhealthy:
			response.Status = StatusDegraded
		}
	}
	return response
}
