package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func started(conv, chat string) domain.State {
	return domain.State{
		ConversationID: conv,
		CandidateID:    "cand-" + conv,
		Channel:        turns.ChannelTelegram,
		ChatRef:        chat,
		Status:         domain.StatusActive,
		Question:       "Tell me about yourself",
		Version:        1,
		StartedAt:      t0,
		UpdatedAt:      t0,
	}
}

func runContract(t *testing.T, newRepo func(t *testing.T) Repo) {
	ctx := context.Background()

	t.Run("create get and duplicate", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Create(ctx, started("v1", "42")))
		require.True(t, errors.Is(r.Create(ctx, started("v1", "43")), domain.ErrExists))

		got, err := r.Get(ctx, "v1")
		require.NoError(t, err)
		require.Equal(t, "cand-v1", got.CandidateID)
		require.Equal(t, domain.StatusActive, got.Status)
		require.Empty(t, got.History)

		_, err = r.Get(ctx, "missing")
		require.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("save is optimistic", func(t *testing.T) {
		r := newRepo(t)
		s := started("v2", "")
		require.NoError(t, r.Create(ctx, s))

		s.Version++
		s.Step = 1
		s.History = append(s.History, domain.Exchange{Step: 0, Question: s.Question, Answer: "hi", TurnID: "t1", At: t0})
		s.LastTurnID = "t1"
		require.NoError(t, r.Save(ctx, s))
		require.True(t, errors.Is(r.Save(ctx, s), domain.ErrVersion))

		got, err := r.Get(ctx, "v2")
		require.NoError(t, err)
		require.Equal(t, 1, got.Step)
		require.Equal(t, "t1", got.LastTurnID)
		require.Len(t, got.History, 1)
		require.Equal(t, "hi", got.History[0].Answer)
	})

	t.Run("chat lookup follows the active conversation", func(t *testing.T) {
		r := newRepo(t)
		s := started("v3", "777")
		require.NoError(t, r.Create(ctx, s))

		got, err := r.FindByChat(ctx, turns.ChannelTelegram, "777")
		require.NoError(t, err)
		require.Equal(t, "v3", got.ConversationID)

		score := 7.5
		s.Version++
		s.Status = domain.StatusCompleted
		s.FinalScore = &score
		require.NoError(t, r.Save(ctx, s))

		_, err = r.FindByChat(ctx, turns.ChannelTelegram, "777")
		require.True(t, errors.Is(err, domain.ErrNotFound))

		require.NoError(t, r.Create(ctx, started("v4", "777")))
		got, err = r.FindByChat(ctx, turns.ChannelTelegram, "777")
		require.NoError(t, err)
		require.Equal(t, "v4", got.ConversationID)

		done, err := r.Get(ctx, "v3")
		require.NoError(t, err)
		require.NotNil(t, done.FinalScore)
		require.InDelta(t, 7.5, *done.FinalScore, 0.001)
	})
}
