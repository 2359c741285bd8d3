package health

import (
	"context"
	"runtime"
)

// PingCheck is healthy while ping succeeds.
func PingCheck(ping func(context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "Reachable"}
	}
}

// TokensCheck reports whether the relationship type table can be read. A
// replica reads it from its primary, so an unreachable primary shows up
// here.
func TokensCheck(mode string, tokens func(context.Context) (int, error)) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{Details: map[string]any{"mode": mode}}
		n, err := tokens(ctx)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		check.Details["types"] = n
		check.Status = StatusHealthy
		return check
	}
}

// CacheCheck reports cache occupancy. It is degraded once either cache is
// at capacity, since further reads evict.
func CacheCheck(usage func() (nodes, relationships int), nodeCap, relCap int) CheckFunc {
	return func(context.Context) Check {
		nodes, rels := usage()
		check := Check{
			Status: StatusHealthy,
			Details: map[string]any{
				"nodes":                 nodes,
				"relationships":         rels,
				"node_capacity":         nodeCap,
				"relationship_capacity": relCap,
			},
		}
		if (nodeCap > 0 && nodes >= nodeCap) || (relCap > 0 && rels >= relCap) {
			check.Status = StatusDegraded
			check.Message = "Cache full"
		}
		return check
	}
}

// MemoryCheck is degraded when the Go heap holds more than 90% of the memory
// obtained from the OS.
func MemoryCheck() CheckFunc {
	return func(context.Context) Check {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		check := Check{
			Status: StatusHealthy,
			Details: map[string]any{
				"alloc_bytes": m.Alloc,
				"sys_bytes":   m.Sys,
			},
		}
		if m.Sys > 0 && float64(m.Alloc)/float64(m.Sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		}
		return check
	}
}
