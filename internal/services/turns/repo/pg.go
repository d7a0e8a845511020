package repo

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"turnstile/internal/modkit/repokit"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/turns/domain"

	"github.com/jackc/pgx/v5"
)

// DefaultLockTimeout bounds how long a worker waits on a key row before giving the event back to redelivery
const DefaultLockTimeout = "5s"

type (
	// PG is the Postgres backed Repo; each method is one transaction
	PG struct {
		db repokit.TxRunner
	}
	queries struct{ q repokit.Queryer }
)

// NewPG binds a Repo to a Postgres TxRunner
func NewPG(db repokit.TxRunner) *PG {
	if db == nil {
		panic("turns.repo: nil TxRunner")
	}
	return &PG{db: repokit.WithBeginHooks(db, repokit.LockTimeout(DefaultLockTimeout))}
}

var _ Repo = (*PG)(nil)

func (r *PG) tx(ctx context.Context, fn func(q *queries) error) error {
	return r.db.Tx(ctx, func(q repokit.Queryer) error { return fn(&queries{q: q}) })
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

const keyCols = `conversation_id, candidate_id, step, state, due_at, rearmed, last_seq,
	flush_id, claimed_at, watermark, lease_until, updated_at`

func scanKey(row repokit.Row) (domain.KeyState, error) {
	var (
		ks        domain.KeyState
		dueAt     *time.Time
		flushID   *string
		claimedAt *time.Time
		watermark *int64
		leaseTo   *time.Time
	)
	err := row.Scan(
		&ks.Key.ConversationID, &ks.Key.CandidateID, &ks.Key.Step,
		&ks.State, &dueAt, &ks.Rearmed, &ks.LastSeq,
		&flushID, &claimedAt, &watermark, &leaseTo, &ks.UpdatedAt,
	)
	if err != nil {
		return ks, err
	}
	if dueAt != nil {
		ks.DueAt = dueAt.UTC()
	}
	if flushID != nil {
		t := domain.FlushTicket{Key: ks.Key, FlushID: *flushID}
		if claimedAt != nil {
			t.TriggeredAt = claimedAt.UTC()
		}
		if watermark != nil {
			t.Watermark = *watermark
		}
		if leaseTo != nil {
			t.LeaseUntil = leaseTo.UTC()
		}
		ks.Ticket = &t
	}
	ks.UpdatedAt = ks.UpdatedAt.UTC()
	return ks, nil
}

// lockKey upserts and row locks the key record
func (q *queries) lockKey(ctx context.Context, key domain.BufferKey, now time.Time) (domain.KeyState, error) {
	const ins = `
		INSERT INTO turn_keys (conversation_id, candidate_id, step, state, updated_at)
		VALUES ($1, $2, $3, 'idle', $4)
		ON CONFLICT DO NOTHING
	`
	if _, err := q.q.Exec(ctx, ins, key.ConversationID, key.CandidateID, key.Step, now); err != nil {
		return domain.KeyState{}, err
	}
	ks, found, err := q.selectKey(ctx, key, true)
	if err != nil {
		return ks, err
	}
	if !found {
		return ks, perr.Internalf("turn key vanished under lock: %s", key)
	}
	return ks, nil
}

func (q *queries) selectKey(ctx context.Context, key domain.BufferKey, forUpdate bool) (domain.KeyState, bool, error) {
	sqlq := `SELECT ` + keyCols + ` FROM turn_keys
		WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3`
	if forUpdate {
		sqlq += ` FOR UPDATE`
	}
	ks, err := scanKey(q.q.QueryRow(ctx, sqlq, key.ConversationID, key.CandidateID, key.Step))
	if err != nil {
		if noRows(err) {
			return ks, false, nil
		}
		return ks, false, err
	}
	return ks, true, nil
}

func (q *queries) saveKey(ctx context.Context, ks domain.KeyState) error {
	const sqlq = `
		UPDATE turn_keys
		SET state = $4, due_at = $5, rearmed = $6, last_seq = $7,
		    flush_id = $8, claimed_at = $9, watermark = $10, lease_until = $11, updated_at = $12
		WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3
	`
	var (
		dueAt     *time.Time
		flushID   *string
		claimedAt *time.Time
		watermark *int64
		leaseTo   *time.Time
	)
	if !ks.DueAt.IsZero() {
		dueAt = &ks.DueAt
	}
	if t := ks.Ticket; t != nil {
		flushID, claimedAt, watermark, leaseTo = &t.FlushID, &t.TriggeredAt, &t.Watermark, &t.LeaseUntil
	}
	_, err := q.q.Exec(ctx, sqlq,
		ks.Key.ConversationID, ks.Key.CandidateID, ks.Key.Step,
		string(ks.State), dueAt, ks.Rearmed, ks.LastSeq,
		flushID, claimedAt, watermark, leaseTo, ks.UpdatedAt,
	)
	return err
}

func (q *queries) isEnded(ctx context.Context, conversationID string) (bool, error) {
	var ok bool
	err := q.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ended_conversations WHERE conversation_id = $1)`,
		conversationID).Scan(&ok)
	return ok, err
}

func (q *queries) purge(ctx context.Context, key domain.BufferKey, aboveSeq int64) error {
	_, err := q.q.Exec(ctx, `
		DELETE FROM buffered_messages
		WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3 AND seq > $4
	`, key.ConversationID, key.CandidateID, key.Step, aboveSeq)
	return err
}

// Append stores msg once per message id and arms its key
// the key row is locked before the sequence is drawn so seq order follows per-key commit order
func (r *PG) Append(ctx context.Context, msg domain.BufferedMessage, now time.Time, quiet time.Duration) (domain.AppendResult, error) {
	if err := msg.Key.Validate(); err != nil {
		return domain.AppendResult{}, err
	}
	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = now
	}
	var res domain.AppendResult
	err := r.tx(ctx, func(q *queries) error {
		var seq int64
		err := q.q.QueryRow(ctx, `SELECT seq FROM message_receipts WHERE message_id = $1`, msg.MessageID).Scan(&seq)
		switch {
		case err == nil:
			res = domain.AppendResult{Seq: seq, Duplicate: true}
			return nil
		case !noRows(err):
			return err
		}

		ks, err := q.lockKey(ctx, msg.Key, now)
		if err != nil {
			return err
		}
		ended, err := q.isEnded(ctx, msg.Key.ConversationID)
		if err != nil {
			return err
		}
		if ended || ks.State == domain.StateClosed {
			res = domain.AppendResult{Dropped: true}
			return nil
		}

		const rsql = `
			INSERT INTO message_receipts (message_id, seq, conversation_id, received_at)
			VALUES ($1, nextval('buffered_message_seq'), $2, $3)
			ON CONFLICT (message_id) DO NOTHING
			RETURNING seq
		`
		if err := q.q.QueryRow(ctx, rsql, msg.MessageID, msg.Key.ConversationID, now).Scan(&seq); err != nil {
			if noRows(err) {
				// a concurrent delivery of the same id won the receipt
				res = domain.AppendResult{Duplicate: true}
				return nil
			}
			return err
		}

		const msql = `
			INSERT INTO buffered_messages
				(seq, message_id, conversation_id, candidate_id, step, arrived_at, kind, body, payload_ref, channel)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := q.q.Exec(ctx, msql,
			seq, msg.MessageID, msg.Key.ConversationID, msg.Key.CandidateID, msg.Key.Step,
			msg.ArrivedAt, string(msg.Kind), msg.Text, msg.PayloadRef, string(msg.Channel),
		); err != nil {
			return err
		}

		ks.LastSeq = seq
		next, armed := ks.Arm(now, quiet)
		if err := q.saveKey(ctx, next); err != nil {
			return err
		}
		res = domain.AppendResult{Seq: seq, DueAt: armed.DueAt}
		return nil
	})
	if err != nil {
		return domain.AppendResult{}, err
	}
	return res, nil
}

// Arm moves the key deadline without touching content
func (r *PG) Arm(ctx context.Context, key domain.BufferKey, now time.Time, quiet time.Duration) (domain.ArmResult, error) {
	if err := key.Validate(); err != nil {
		return domain.ArmResult{}, err
	}
	var res domain.ArmResult
	err := r.tx(ctx, func(q *queries) error {
		ended, err := q.isEnded(ctx, key.ConversationID)
		if err != nil {
			return err
		}
		if ended {
			res = domain.ArmResult{State: domain.StateClosed, Dropped: true}
			return nil
		}
		ks, err := q.lockKey(ctx, key, now)
		if err != nil {
			return err
		}
		next, armed := ks.Arm(now, quiet)
		res = armed
		if armed.Dropped {
			return nil
		}
		return q.saveKey(ctx, next)
	})
	return res, err
}

// HasBuffer reports whether any unflushed message exists for key
func (r *PG) HasBuffer(ctx context.Context, key domain.BufferKey) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM buffered_messages
			WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3
		)`, key.ConversationID, key.CandidateID, key.Step).Scan(&ok)
	return ok, err
}

const msgCols = `seq, message_id, conversation_id, candidate_id, step, arrived_at, kind, body, payload_ref, channel`

func scanMessages(rows repokit.Rows) ([]domain.BufferedMessage, error) {
	defer rows.Close()
	var out []domain.BufferedMessage
	for rows.Next() {
		var (
			m       domain.BufferedMessage
			kind    string
			channel string
		)
		if err := rows.Scan(
			&m.Seq, &m.MessageID, &m.Key.ConversationID, &m.Key.CandidateID, &m.Key.Step,
			&m.ArrivedAt, &kind, &m.Text, &m.PayloadRef, &channel,
		); err != nil {
			return nil, err
		}
		m.ArrivedAt = m.ArrivedAt.UTC()
		m.Kind, m.Channel = domain.Kind(kind), domain.Channel(channel)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Pending lists unflushed messages of key in seq order
func (r *PG) Pending(ctx context.Context, key domain.BufferKey) ([]domain.BufferedMessage, error) {
	rows, err := r.db.Query(ctx, `SELECT `+msgCols+` FROM buffered_messages
		WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3
		ORDER BY seq`, key.ConversationID, key.CandidateID, key.Step)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// KeyState returns the scheduler record of key
func (r *PG) KeyState(ctx context.Context, key domain.BufferKey) (domain.KeyState, bool, error) {
	return (&queries{q: r.db}).selectKey(ctx, key, false)
}

// DueKeys returns armed keys past their deadline and claimed keys past their lease
func (r *PG) DueKeys(ctx context.Context, now time.Time, limit int) ([]domain.KeyState, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.Query(ctx, `SELECT `+keyCols+` FROM turn_keys
		WHERE (state = 'armed' AND due_at <= $1) OR (state = 'claimed' AND lease_until <= $1)
		ORDER BY CASE WHEN state = 'armed' THEN due_at ELSE lease_until END
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.KeyState
	for rows.Next() {
		ks, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ks)
	}
	return out, rows.Err()
}

// Claim applies the claim transition under the key row lock
func (r *PG) Claim(ctx context.Context, key domain.BufferKey, flushID string, now time.Time, lease time.Duration) (domain.FlushTicket, domain.ClaimOutcome, error) {
	var (
		ticket domain.FlushTicket
		out    domain.ClaimOutcome
	)
	err := r.tx(ctx, func(q *queries) error {
		ks, found, err := q.selectKey(ctx, key, true)
		if err != nil {
			return err
		}
		if !found {
			out = domain.ClaimIdle
			return nil
		}
		ended, err := q.isEnded(ctx, key.ConversationID)
		if err != nil {
			return err
		}
		if ended {
			out = domain.ClaimClosed
			// late appends and abandoned claims of an ended conversation are purged, not flushed
			next, retired := ks.Retire(now)
			if !retired {
				return nil
			}
			if err := q.purge(ctx, key, 0); err != nil {
				return err
			}
			return q.saveKey(ctx, next)
		}
		next, t, o := ks.Claim(now, lease, flushID)
		out = o
		if o != domain.ClaimWon && o != domain.ClaimRequeued {
			return nil
		}
		ticket = t
		return q.saveKey(ctx, next)
	})
	if err != nil {
		return domain.FlushTicket{}, "", err
	}
	return ticket, out, nil
}

// Drain removes messages up to the watermark and releases the claim
func (r *PG) Drain(ctx context.Context, t domain.FlushTicket, now time.Time) ([]domain.BufferedMessage, error) {
	var msgs []domain.BufferedMessage
	err := r.tx(ctx, func(q *queries) error {
		var err error
		msgs, _, err = q.drain(ctx, t, "", now)
		return err
	})
	return msgs, err
}

// Assemble drains, inserts the outbox row and releases the claim in one transaction
func (r *PG) Assemble(ctx context.Context, t domain.FlushTicket, turnID string, now time.Time) (domain.AssembledTurn, bool, error) {
	var turn domain.AssembledTurn
	err := r.tx(ctx, func(q *queries) error {
		var err error
		_, turn, err = q.drain(ctx, t, turnID, now)
		return err
	})
	if err != nil {
		return domain.AssembledTurn{}, false, err
	}
	return turn, turn.TurnID != "", nil
}

func (q *queries) drain(ctx context.Context, t domain.FlushTicket, turnID string, now time.Time) ([]domain.BufferedMessage, domain.AssembledTurn, error) {
	ks, found, err := q.selectKey(ctx, t.Key, true)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	if !found || !ks.Owns(t) {
		return nil, domain.AssembledTurn{}, domain.ErrClaimLost
	}

	rows, err := q.q.Query(ctx, `DELETE FROM buffered_messages
		WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3 AND seq <= $4
		RETURNING `+msgCols, t.Key.ConversationID, t.Key.CandidateID, t.Key.Step, t.Watermark)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}

	ended, err := q.isEnded(ctx, t.Key.ConversationID)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	leftovers := false
	if ended {
		if err := q.purge(ctx, t.Key, t.Watermark); err != nil {
			return nil, domain.AssembledTurn{}, err
		}
	} else {
		err := q.q.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM buffered_messages
			WHERE conversation_id = $1 AND candidate_id = $2 AND step = $3 AND seq > $4
		)`, t.Key.ConversationID, t.Key.CandidateID, t.Key.Step, t.Watermark).Scan(&leftovers)
		if err != nil {
			return nil, domain.AssembledTurn{}, err
		}
	}

	var turn domain.AssembledTurn
	if turnID != "" && len(msgs) > 0 {
		turn = newTurn(t, turnID, msgs, now)
		const sqlq = `
			INSERT INTO assembled_turns
				(turn_id, flush_id, conversation_id, candidate_id, step, body, message_ids, assembled_at, status, next_attempt_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $8)
			ON CONFLICT (flush_id) DO NOTHING
			RETURNING seq
		`
		err := q.q.QueryRow(ctx, sqlq,
			turn.TurnID, turn.FlushID, t.Key.ConversationID, t.Key.CandidateID, t.Key.Step,
			turn.Text, turn.MessageIDs, now,
		).Scan(&turn.Seq)
		if err != nil {
			return nil, domain.AssembledTurn{}, err
		}
	}

	next, err := ks.Release(t, now, leftovers, ended)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	if err := q.saveKey(ctx, next); err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	return msgs, turn, nil
}

// EndConversation writes the end marker, then closes every key of the conversation
func (r *PG) EndConversation(ctx context.Context, conversationID string, now time.Time) (int, error) {
	n := 0
	err := r.tx(ctx, func(q *queries) error {
		if _, err := q.q.Exec(ctx, `
			INSERT INTO ended_conversations (conversation_id, ended_at) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, conversationID, now); err != nil {
			return err
		}
		rows, err := q.q.Query(ctx, `SELECT `+keyCols+` FROM turn_keys
			WHERE conversation_id = $1 ORDER BY candidate_id, step FOR UPDATE`, conversationID)
		if err != nil {
			return err
		}
		var keys []domain.KeyState
		for rows.Next() {
			ks, err := scanKey(rows)
			if err != nil {
				rows.Close()
				return err
			}
			keys = append(keys, ks)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, ks := range keys {
			next := ks.Close(now)
			if next.State == domain.StateClosed {
				if err := q.purge(ctx, ks.Key, 0); err != nil {
					return err
				}
			}
			if err := q.saveKey(ctx, next); err != nil {
				return err
			}
		}
		n = len(keys)
		return nil
	})
	return n, err
}

// IsEnded reports whether the conversation is terminal
func (r *PG) IsEnded(ctx context.Context, conversationID string) (bool, error) {
	return (&queries{q: r.db}).isEnded(ctx, conversationID)
}

const turnCols = `seq, turn_id, flush_id, conversation_id, candidate_id, step, body, message_ids,
	assembled_at, status, attempts, next_attempt_at, lease_until, last_error`

const leasedCols = `a.seq, a.turn_id, a.flush_id, a.conversation_id, a.candidate_id, a.step, a.body, a.message_ids,
	a.assembled_at, a.status, a.attempts, a.next_attempt_at, a.lease_until, a.last_error`

func scanTurn(row repokit.Row) (domain.AssembledTurn, error) {
	var (
		t       domain.AssembledTurn
		status  string
		leaseTo *time.Time
	)
	err := row.Scan(
		&t.Seq, &t.TurnID, &t.FlushID, &t.Key.ConversationID, &t.Key.CandidateID, &t.Key.Step,
		&t.Text, &t.MessageIDs, &t.AssembledAt, &status, &t.Attempts, &t.NextAttemptAt, &leaseTo, &t.LastError,
	)
	if err != nil {
		return t, err
	}
	t.Status = domain.TurnStatus(status)
	t.AssembledAt = t.AssembledAt.UTC()
	t.NextAttemptAt = t.NextAttemptAt.UTC()
	if leaseTo != nil {
		t.LeaseUntil = leaseTo.UTC()
	}
	return t, nil
}

func collectTurns(rows repokit.Rows) ([]domain.AssembledTurn, error) {
	defer rows.Close()
	var out []domain.AssembledTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LeaseTurns leases the ready head turn of up to n conversations
// later turns of a conversation stay queued until the head completes
func (r *PG) LeaseTurns(ctx context.Context, n int, leaseFor time.Duration, now time.Time) ([]domain.AssembledTurn, error) {
	if n <= 0 {
		n = 1
	}
	sqlq := `
		WITH heads AS (
			SELECT DISTINCT ON (conversation_id) seq
			FROM assembled_turns
			WHERE status = 'pending'
			ORDER BY conversation_id, seq
		), ready AS (
			SELECT t.seq
			FROM assembled_turns t
			JOIN heads h ON h.seq = t.seq
			WHERE t.next_attempt_at <= $1 AND (t.lease_until IS NULL OR t.lease_until <= $1)
			ORDER BY t.seq
			LIMIT $2
			FOR UPDATE OF t SKIP LOCKED
		)
		UPDATE assembled_turns a
		SET lease_until = $3
		FROM ready
		WHERE a.seq = ready.seq
		RETURNING ` + leasedCols
	var out []domain.AssembledTurn
	err := r.tx(ctx, func(q *queries) error {
		rows, err := q.q.Query(ctx, sqlq, now, n, now.Add(leaseFor))
		if err != nil {
			return err
		}
		out, err = collectTurns(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// GetTurn loads one outbox row
func (r *PG) GetTurn(ctx context.Context, turnID string) (domain.AssembledTurn, error) {
	t, err := scanTurn(r.db.QueryRow(ctx, `SELECT `+turnCols+` FROM assembled_turns WHERE turn_id = $1`, turnID))
	if noRows(err) {
		return t, domain.ErrTurnNotFound
	}
	return t, err
}

// CompleteTurn finalizes a pending turn; completing a finished turn is a no op
func (r *PG) CompleteTurn(ctx context.Context, turnID string, status domain.TurnStatus, lastErr string, now time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE assembled_turns
		SET status = $2, last_error = $3, lease_until = NULL
		WHERE turn_id = $1 AND status = 'pending'`, turnID, string(status), lastErr)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		_, err := r.GetTurn(ctx, turnID)
		return err
	}
	return nil
}

// RetryTurn releases the lease and schedules the next attempt
func (r *PG) RetryTurn(ctx context.Context, turnID string, next time.Time, lastErr string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE assembled_turns
		SET attempts = attempts + 1, next_attempt_at = $2, lease_until = NULL, last_error = $3
		WHERE turn_id = $1 AND status = 'pending'`, turnID, next, lastErr)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		_, err := r.GetTurn(ctx, turnID)
		return err
	}
	return nil
}

// ListTurns returns the pending queue of a conversation in order
func (r *PG) ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.AssembledTurn, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+turnCols+` FROM assembled_turns
		WHERE conversation_id = $1 AND status = 'pending'
		ORDER BY seq LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	return collectTurns(rows)
}
