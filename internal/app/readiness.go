// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/gradeengine/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessCheck returns a readiness check for the optional persistence
// adapter. If persistence is not configured, the check always succeeds: the
// service is fully functional without it (spec.md §6, persistence is
// best-effort).
func BuildReadinessCheck(cfg config.Config, pool Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !cfg.PersistenceEnabled() {
			return nil
		}
		if pool == nil {
			return fmt.Errorf("persistence configured but pool not initialized")
		}
		return pool.Ping(ctx)
	}
}
