// Package modkit provides module wiring and core deps
package modkit

import (
	"turnstile/internal/modkit/repokit"
	"turnstile/internal/platform/bus"
	"turnstile/internal/platform/config"
	"turnstile/internal/platform/logger"
	"turnstile/internal/platform/metrics"
	ptime "turnstile/internal/platform/time"

	"github.com/cockroachdb/pebble"
)

// Deps holds the shared dependencies every module constructor receives
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	// PG is set when STORE_BACKEND=pg, KV when STORE_BACKEND=kv; exactly one is non nil at runtime
	PG repokit.TxRunner
	KV *pebble.DB
	// Bus publishes domain events; nil in tests that do not need it
	Bus     bus.Publisher
	Clock   ptime.Clock
	Metrics *metrics.Metrics
}

// Now reads the injected clock, falling back to the system clock
func (d Deps) Now() ptime.Clock {
	if d.Clock == nil {
		return ptime.System{}
	}
	return d.Clock
}
