package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"turnstile/internal/services/turns/domain"

	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	quiet = 5 * time.Second
	lease = 30 * time.Second
)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func msg(key domain.BufferKey, id, text string) domain.BufferedMessage {
	return domain.BufferedMessage{
		MessageID: id,
		Key:       key,
		Kind:      domain.KindText,
		Text:      text,
		Channel:   domain.ChannelTelegram,
	}
}

// runContract exercises the behaviour both backends must share
// newRepo returns an empty store per subtest
func runContract(t *testing.T, newRepo func(t *testing.T) Repo) {
	ctx := context.Background()

	t.Run("append is idempotent and ordered", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}

		a, err := r.Append(ctx, msg(key, "m1", "hello"), at(0), quiet)
		require.NoError(t, err)
		require.False(t, a.Duplicate)
		require.True(t, a.DueAt.Equal(at(5)))

		b, err := r.Append(ctx, msg(key, "m2", "world"), at(2), quiet)
		require.NoError(t, err)
		require.Greater(t, b.Seq, a.Seq)

		dup, err := r.Append(ctx, msg(key, "m1", "hello"), at(4), quiet)
		require.NoError(t, err)
		require.True(t, dup.Duplicate)
		require.Equal(t, a.Seq, dup.Seq)

		ks, found, err := r.KeyState(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, domain.StateArmed, ks.State)
		require.True(t, ks.DueAt.Equal(at(7)), "duplicate must not re-arm, due=%v", ks.DueAt)
		require.Equal(t, b.Seq, ks.LastSeq)

		pending, err := r.Pending(ctx, key)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, "m1", pending[0].MessageID)
		require.Equal(t, "m2", pending[1].MessageID)
	})

	t.Run("claim then assemble drains in seq order", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 2}
		for i, w := range []string{"I", "think", "yes"} {
			_, err := r.Append(ctx, msg(key, fmt.Sprintf("m%d", i), w), at(i), quiet)
			require.NoError(t, err)
		}

		_, out, err := r.Claim(ctx, key, "f1", at(6), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimNotDue, out)

		tk, out, err := r.Claim(ctx, key, "f1", at(7), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)

		_, out, err = r.Claim(ctx, key, "f2", at(8), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimHeld, out)

		turn, ok, err := r.Assemble(ctx, tk, "turn-1", at(8))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "I\nthink\nyes", turn.Text)
		require.Equal(t, []string{"m0", "m1", "m2"}, turn.MessageIDs)

		has, err := r.HasBuffer(ctx, key)
		require.NoError(t, err)
		require.False(t, has)

		ks, _, err := r.KeyState(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.StateIdle, ks.State)
		require.Nil(t, ks.Ticket)

		_, err = r.Drain(ctx, tk, at(9))
		require.True(t, errors.Is(err, domain.ErrClaimLost))
	})

	t.Run("append during claim becomes the next turn", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}
		_, err := r.Append(ctx, msg(key, "m1", "first"), at(0), quiet)
		require.NoError(t, err)

		tk, out, err := r.Claim(ctx, key, "f1", at(5), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)

		_, err = r.Append(ctx, msg(key, "m2", "second"), at(6), quiet)
		require.NoError(t, err)

		drained, err := r.Drain(ctx, tk, at(6))
		require.NoError(t, err)
		require.Len(t, drained, 1)
		require.Equal(t, "m1", drained[0].MessageID)

		ks, _, err := r.KeyState(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.StateArmed, ks.State)
		require.True(t, ks.DueAt.Equal(at(11)))

		due, err := r.DueKeys(ctx, at(11), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		require.Equal(t, key, due[0].Key)

		tk2, out, err := r.Claim(ctx, key, "f2", at(11), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)
		turn, ok, err := r.Assemble(ctx, tk2, "turn-2", at(11))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "second", turn.Text)
	})

	t.Run("expired lease is taken over", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}
		_, err := r.Append(ctx, msg(key, "m1", "hi"), at(0), quiet)
		require.NoError(t, err)

		stale, _, err := r.Claim(ctx, key, "f1", at(5), lease)
		require.NoError(t, err)

		due, err := r.DueKeys(ctx, at(35), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		fresh, out, err := r.Claim(ctx, key, "f2", at(35), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)

		_, _, err = r.Assemble(ctx, stale, "turn-stale", at(36))
		require.True(t, errors.Is(err, domain.ErrClaimLost))

		turn, ok, err := r.Assemble(ctx, fresh, "turn-1", at(36))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "hi", turn.Text)
	})

	t.Run("empty drain produces no turn", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}
		_, err := r.Arm(ctx, key, at(0), quiet)
		require.NoError(t, err)

		tk, out, err := r.Claim(ctx, key, "f1", at(5), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)

		_, ok, err := r.Assemble(ctx, tk, "turn-1", at(5))
		require.NoError(t, err)
		require.False(t, ok)

		turns, err := r.ListTurns(ctx, key.ConversationID, 10)
		require.NoError(t, err)
		require.Empty(t, turns)
	})

	t.Run("ended conversation drops and purges", func(t *testing.T) {
		r := newRepo(t)
		idle := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}
		busy := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 1}

		_, err := r.Append(ctx, msg(idle, "m1", "lost"), at(0), quiet)
		require.NoError(t, err)
		_, err = r.Append(ctx, msg(busy, "m2", "kept"), at(0), quiet)
		require.NoError(t, err)
		tk, _, err := r.Claim(ctx, busy, "f1", at(5), lease)
		require.NoError(t, err)
		_, err = r.Append(ctx, msg(busy, "m3", "late"), at(6), quiet)
		require.NoError(t, err)

		n, err := r.EndConversation(ctx, "v1", at(6))
		require.NoError(t, err)
		require.Equal(t, 2, n)

		ended, err := r.IsEnded(ctx, "v1")
		require.NoError(t, err)
		require.True(t, ended)

		has, err := r.HasBuffer(ctx, idle)
		require.NoError(t, err)
		require.False(t, has)

		res, err := r.Append(ctx, msg(idle, "m4", "after"), at(7), quiet)
		require.NoError(t, err)
		require.True(t, res.Dropped)

		arm, err := r.Arm(ctx, idle, at(7), quiet)
		require.NoError(t, err)
		require.True(t, arm.Dropped)

		// the in-flight turn still completes; the message above its watermark is discarded
		turn, ok, err := r.Assemble(ctx, tk, "turn-1", at(7))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "kept", turn.Text)

		ks, _, err := r.KeyState(ctx, busy)
		require.NoError(t, err)
		require.Equal(t, domain.StateClosed, ks.State)
		has, err = r.HasBuffer(ctx, busy)
		require.NoError(t, err)
		require.False(t, has)

		_, out, err := r.Claim(ctx, idle, "f2", at(60), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimClosed, out)
	})

	t.Run("abandoned claim of an ended conversation is retired", func(t *testing.T) {
		r := newRepo(t)
		key := domain.BufferKey{CandidateID: "c1", ConversationID: "v1", Step: 0}
		_, err := r.Append(ctx, msg(key, "m1", "hi"), at(0), quiet)
		require.NoError(t, err)
		_, out, err := r.Claim(ctx, key, "f1", at(5), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimWon, out)
		_, err = r.EndConversation(ctx, "v1", at(6))
		require.NoError(t, err)

		_, out, err = r.Claim(ctx, key, "f2", at(20), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimClosed, out)
		ks, _, err := r.KeyState(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.StateClaimed, ks.State, "a live lease is left to finish")

		due, err := r.DueKeys(ctx, at(35), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		_, out, err = r.Claim(ctx, key, "f2", at(35), lease)
		require.NoError(t, err)
		require.Equal(t, domain.ClaimClosed, out)

		ks, _, err = r.KeyState(ctx, key)
		require.NoError(t, err)
		require.Equal(t, domain.StateClosed, ks.State)
		require.Nil(t, ks.Ticket)
		has, err := r.HasBuffer(ctx, key)
		require.NoError(t, err)
		require.False(t, has)
		due, err = r.DueKeys(ctx, at(90), 10)
		require.NoError(t, err)
		require.Empty(t, due)
	})

	t.Run("outbox leases only the head of each conversation", func(t *testing.T) {
		r := newRepo(t)
		a := domain.BufferKey{CandidateID: "c1", ConversationID: "va", Step: 0}
		b := domain.BufferKey{CandidateID: "c2", ConversationID: "vb", Step: 0}

		flush := func(key domain.BufferKey, id string, sec int) domain.AssembledTurn {
			_, err := r.Append(ctx, msg(key, "m-"+id, id), at(sec), quiet)
			require.NoError(t, err)
			tk, out, err := r.Claim(ctx, key, "f-"+id, at(sec+5), lease)
			require.NoError(t, err)
			require.Equal(t, domain.ClaimWon, out)
			turn, ok, err := r.Assemble(ctx, tk, id, at(sec+5))
			require.NoError(t, err)
			require.True(t, ok)
			return turn
		}
		flush(a, "a1", 0)
		flush(a, "a2", 10)
		flush(b, "b1", 0)

		leased, err := r.LeaseTurns(ctx, 10, time.Minute, at(20))
		require.NoError(t, err)
		ids := []string{}
		for _, l := range leased {
			ids = append(ids, l.TurnID)
		}
		require.ElementsMatch(t, []string{"a1", "b1"}, ids)

		again, err := r.LeaseTurns(ctx, 10, time.Minute, at(21))
		require.NoError(t, err)
		require.Empty(t, again, "leased heads must not be handed out twice")

		require.NoError(t, r.RetryTurn(ctx, "b1", at(90), "ai timeout"))
		got, err := r.GetTurn(ctx, "b1")
		require.NoError(t, err)
		require.Equal(t, 1, got.Attempts)
		require.Equal(t, "ai timeout", got.LastError)

		require.NoError(t, r.CompleteTurn(ctx, "a1", domain.TurnDone, "", at(22)))
		require.NoError(t, r.CompleteTurn(ctx, "a1", domain.TurnDone, "", at(22)))

		next, err := r.LeaseTurns(ctx, 10, time.Minute, at(23))
		require.NoError(t, err)
		require.Len(t, next, 1)
		require.Equal(t, "a2", next[0].TurnID)

		require.NoError(t, r.CompleteTurn(ctx, "a2", domain.TurnDone, "", at(24)))

		later, err := r.LeaseTurns(ctx, 10, time.Minute, at(90))
		require.NoError(t, err)
		require.Len(t, later, 1)
		require.Equal(t, "b1", later[0].TurnID)

		queue, err := r.ListTurns(ctx, "vb", 10)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		queue, err = r.ListTurns(ctx, "va", 10)
		require.NoError(t, err)
		require.Empty(t, queue)

		_, err = r.GetTurn(ctx, "nope")
		require.True(t, errors.Is(err, domain.ErrTurnNotFound))
	})
}
