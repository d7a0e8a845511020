package service

import (
	"context"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/services/turns/domain"
)

// Append stores a candidate message and re-arms its key
// duplicates and messages for ended conversations are reported in the result, not as errors
func (s *Svc) Append(ctx context.Context, msg domain.BufferedMessage) (domain.AppendResult, error) {
	if msg.MessageID == "" {
		return domain.AppendResult{}, perr.WithField(perr.InvalidArgf("message id is required"), "message_id")
	}
	if msg.Kind == "" {
		msg.Kind = domain.KindText
	}
	res, err := s.Repo.Append(ctx, msg, s.clock.Now(), s.config.QuietPeriod)
	if err != nil {
		return res, err
	}

	log := logger.C(ctx)
	switch {
	case res.Duplicate:
		s.metrics.Appended.WithLabelValues(string(msg.Channel), "duplicate").Inc()
		log.Debug().Str("message_id", msg.MessageID).Msg("turns: duplicate append ignored")
	case res.Dropped:
		s.metrics.Appended.WithLabelValues(string(msg.Channel), "dropped").Inc()
		log.Info().Str("message_id", msg.MessageID).Str("key", msg.Key.String()).Msg("turns: append for ended conversation dropped")
	default:
		s.metrics.Appended.WithLabelValues(string(msg.Channel), "stored").Inc()
		log.Debug().
			Str("message_id", msg.MessageID).
			Str("key", msg.Key.String()).
			Int64("seq", res.Seq).
			Time("due_at", res.DueAt).
			Msg("turns: buffered")
	}
	return res, nil
}

// OnActivity extends the quiet period of a key; it never creates content
func (s *Svc) OnActivity(ctx context.Context, sig domain.LivenessSignal) (domain.ArmResult, error) {
	if !sig.Activity.Valid() {
		return domain.ArmResult{}, perr.WithField(perr.InvalidArgf("unknown activity %q", sig.Activity), "activity_type")
	}
	res, err := s.Repo.Arm(ctx, sig.Key, s.clock.Now(), s.config.QuietPeriod)
	if err != nil {
		return res, err
	}
	result := "armed"
	if res.Dropped {
		result = "dropped"
	}
	s.metrics.Activity.WithLabelValues(string(sig.Activity), result).Inc()
	logger.C(ctx).Debug().
		Str("key", sig.Key.String()).
		Str("activity", string(sig.Activity)).
		Str("state", string(res.State)).
		Time("due_at", res.DueAt).
		Msg("turns: activity")
	return res, nil
}

// HasBuffer reports whether the key holds unflushed content
func (s *Svc) HasBuffer(ctx context.Context, key domain.BufferKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	return s.Repo.HasBuffer(ctx, key)
}

// KeyState returns the scheduler record of key
func (s *Svc) KeyState(ctx context.Context, key domain.BufferKey) (domain.KeyState, bool, error) {
	if err := key.Validate(); err != nil {
		return domain.KeyState{}, false, err
	}
	return s.Repo.KeyState(ctx, key)
}

// Pending lists unflushed messages of key in seq order
func (s *Svc) Pending(ctx context.Context, key domain.BufferKey) ([]domain.BufferedMessage, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.Repo.Pending(ctx, key)
}
