package service

import (
	"context"
	"time"

	"turnstile/internal/platform/logger"
	"turnstile/internal/services/turns/domain"
)

// Sweep finds keys whose deadline or lease passed and emits one flush intent per key
// without a bus the flush runs inline
func (s *Svc) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.Repo.DueKeys(ctx, now, s.config.SweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ks := range due {
		if w := ks.WakeAt(); !w.IsZero() {
			s.metrics.FlushLag.Observe(now.Sub(w).Seconds())
		}
		if s.pub == nil {
			if _, _, err := s.Flush(ctx, ks.Key); err != nil {
				return n, err
			}
			n++
			continue
		}
		evt := domain.FlushDue{Key: ks.Key, DueAt: ks.WakeAt()}
		if err := s.publish(ctx, domain.TopicFlushDue, evt); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Run ticks the sweeper until ctx is cancelled
// a failed sweep is logged and retried on the next tick
func (s *Svc) Run(ctx context.Context) error {
	t := time.NewTicker(s.config.SweepEvery)
	defer t.Stop()

	log := logger.Named("turns.sweeper")
	log.Info().Dur("every", s.config.SweepEvery).Dur("quiet", s.config.QuietPeriod).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("due", n).Msg("sweep")
			}
		}
	}
}
