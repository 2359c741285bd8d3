package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Kind selects which probe a check belongs to.
type Kind int

const (
	// Liveness checks fail only when the process must be restarted.
	Liveness Kind = iota
	// Readiness checks fail while the engine cannot serve transactions.
	Readiness
)

// Check is the result of one component check.
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ms"`
}

// CheckFunc performs a check. It should honor ctx.
type CheckFunc func(ctx context.Context) Check

// Checker runs registered checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[Kind]map[string]CheckFunc
	started time.Time
	timeout time.Duration
}

// Response is the aggregate of one probe.
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime_seconds"`
}
