package repo

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/turns/domain"

	"github.com/cockroachdb/pebble"
)

// Key layout (all big-endian so byte order is numeric order):
//
//	k/<conv>\x00<cand>\x00<step>           key state
//	m/<conv>\x00<cand>\x00<step>\x00<seq>  buffered message
//	r/<message id>                         receipt (dedup ledger)
//	w/<wake unix nano><conv>\x00<cand>\x00<step>  sweeper index
//	e/<conv>                               ended marker
//	t/<turn id>                            assembled turn
//	q/<conv>\x00<turn seq>                 pending turn queue per conversation
//	s/msg, s/turn                          sequence counters
var (
	pfxState   = []byte("k/")
	pfxMsg     = []byte("m/")
	pfxReceipt = []byte("r/")
	pfxWake    = []byte("w/")
	pfxEnded   = []byte("e/")
	pfxTurn    = []byte("t/")
	pfxQueue   = []byte("q/")
	keyMsgSeq  = []byte("s/msg")
	keyTurnSeq = []byte("s/turn")
)

const stripes = 64

// KV is the pebble backed Repo
// per-conversation stripes serialize every mutation of one conversation's keys
type KV struct {
	db *pebble.DB

	locks    [stripes]sync.Mutex
	seqMu    sync.Mutex
	outboxMu sync.Mutex
}

// NewKV binds a Repo to an open pebble database
func NewKV(db *pebble.DB) *KV {
	if db == nil {
		panic("turns.repo: nil pebble db")
	}
	return &KV{db: db}
}

var _ Repo = (*KV)(nil)

type receipt struct {
	Seq            int64     `json:"seq"`
	ConversationID string    `json:"conversation_id"`
	ReceivedAt     time.Time `json:"received_at"`
}

type ended struct {
	EndedAt time.Time `json:"ended_at"`
}

func (r *KV) lock(conversationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	mu := &r.locks[h.Sum32()%stripes]
	mu.Lock()
	return mu.Unlock
}

// Append stores msg once per message id and arms its key
func (r *KV) Append(ctx context.Context, msg domain.BufferedMessage, now time.Time, quiet time.Duration) (domain.AppendResult, error) {
	if err := msg.Key.Validate(); err != nil {
		return domain.AppendResult{}, err
	}
	unlock := r.lock(msg.Key.ConversationID)
	defer unlock()

	var rc receipt
	found, err := r.getJSON(receiptKey(msg.MessageID), &rc)
	if err != nil {
		return domain.AppendResult{}, err
	}
	if found {
		return domain.AppendResult{Seq: rc.Seq, Duplicate: true}, nil
	}
	if isEnded, err := r.has(endedKey(msg.Key.ConversationID)); err != nil {
		return domain.AppendResult{}, err
	} else if isEnded {
		return domain.AppendResult{Dropped: true}, nil
	}

	ks, err := r.loadState(msg.Key, now)
	if err != nil {
		return domain.AppendResult{}, err
	}
	if ks.State == domain.StateClosed {
		return domain.AppendResult{Dropped: true}, nil
	}

	seq, err := r.next(keyMsgSeq)
	if err != nil {
		return domain.AppendResult{}, err
	}
	msg.Seq = seq
	if msg.ArrivedAt.IsZero() {
		msg.ArrivedAt = now
	}

	prev := ks
	ks.LastSeq = seq
	ks, res := ks.Arm(now, quiet)

	b := r.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, receiptKey(msg.MessageID), receipt{Seq: seq, ConversationID: msg.Key.ConversationID, ReceivedAt: now}); err != nil {
		return domain.AppendResult{}, err
	}
	if err := setJSON(b, msgKey(msg.Key, seq), msg); err != nil {
		return domain.AppendResult{}, err
	}
	if err := r.putState(b, prev, ks); err != nil {
		return domain.AppendResult{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return domain.AppendResult{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "kv append")
	}
	return domain.AppendResult{Seq: seq, DueAt: res.DueAt}, nil
}

// Arm moves the key deadline without touching content
func (r *KV) Arm(ctx context.Context, key domain.BufferKey, now time.Time, quiet time.Duration) (domain.ArmResult, error) {
	if err := key.Validate(); err != nil {
		return domain.ArmResult{}, err
	}
	unlock := r.lock(key.ConversationID)
	defer unlock()

	if isEnded, err := r.has(endedKey(key.ConversationID)); err != nil {
		return domain.ArmResult{}, err
	} else if isEnded {
		return domain.ArmResult{State: domain.StateClosed, Dropped: true}, nil
	}
	prev, err := r.loadState(key, now)
	if err != nil {
		return domain.ArmResult{}, err
	}
	ks, res := prev.Arm(now, quiet)
	if res.Dropped {
		return res, nil
	}
	if err := r.commitState(prev, ks); err != nil {
		return domain.ArmResult{}, err
	}
	return res, nil
}

// HasBuffer reports whether any unflushed message exists for key
func (r *KV) HasBuffer(ctx context.Context, key domain.BufferKey) (bool, error) {
	lo := msgPrefix(key)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: prefixEnd(lo)})
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.First(), it.Error()
}

// Pending lists unflushed messages of key in seq order
func (r *KV) Pending(ctx context.Context, key domain.BufferKey) ([]domain.BufferedMessage, error) {
	msgs, _, err := r.scanMessages(key, -1)
	return msgs, err
}

// KeyState returns the scheduler record of key
func (r *KV) KeyState(ctx context.Context, key domain.BufferKey) (domain.KeyState, bool, error) {
	var ks domain.KeyState
	found, err := r.getJSON(stateKey(key), &ks)
	return ks, found, err
}

// DueKeys walks the wake index up to now
func (r *KV) DueKeys(ctx context.Context, now time.Time, limit int) ([]domain.KeyState, error) {
	hi := append(append([]byte{}, pfxWake...), be64(uint64(now.UnixNano())+1)...)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: pfxWake, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []domain.KeyState
	for valid := it.First(); valid; valid = it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		enc := it.Key()[len(pfxWake)+8:]
		var ks domain.KeyState
		found, err := r.getJSON(append(append([]byte{}, pfxState...), enc...), &ks)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, ks)
		}
	}
	return out, it.Error()
}

// Claim applies the claim transition under the conversation lock
func (r *KV) Claim(ctx context.Context, key domain.BufferKey, flushID string, now time.Time, lease time.Duration) (domain.FlushTicket, domain.ClaimOutcome, error) {
	unlock := r.lock(key.ConversationID)
	defer unlock()

	var prev domain.KeyState
	found, err := r.getJSON(stateKey(key), &prev)
	if err != nil {
		return domain.FlushTicket{}, "", err
	}
	if !found {
		return domain.FlushTicket{}, domain.ClaimIdle, nil
	}
	if isEnded, err := r.has(endedKey(key.ConversationID)); err != nil {
		return domain.FlushTicket{}, "", err
	} else if isEnded {
		// late appends and abandoned claims of an ended conversation are purged, not flushed
		next, retired := prev.Retire(now)
		if !retired {
			return domain.FlushTicket{}, domain.ClaimClosed, nil
		}
		b := r.db.NewBatch()
		defer b.Close()
		mp := msgPrefix(key)
		if err := b.DeleteRange(mp, prefixEnd(mp), nil); err != nil {
			return domain.FlushTicket{}, "", err
		}
		if err := r.putState(b, prev, next); err != nil {
			return domain.FlushTicket{}, "", err
		}
		if err := b.Commit(pebble.Sync); err != nil {
			return domain.FlushTicket{}, "", perr.Wrap(err, perr.ErrorCodeUnavailable, "kv close key")
		}
		return domain.FlushTicket{}, domain.ClaimClosed, nil
	}

	ks, t, out := prev.Claim(now, lease, flushID)
	if out != domain.ClaimWon && out != domain.ClaimRequeued {
		return domain.FlushTicket{}, out, nil
	}
	if err := r.commitState(prev, ks); err != nil {
		return domain.FlushTicket{}, "", err
	}
	return t, out, nil
}

// Drain removes messages up to the watermark and releases the claim
func (r *KV) Drain(ctx context.Context, t domain.FlushTicket, now time.Time) ([]domain.BufferedMessage, error) {
	msgs, _, err := r.drain(t, "", now)
	return msgs, err
}

// Assemble drains, writes the outbox row and releases the claim in one batch
func (r *KV) Assemble(ctx context.Context, t domain.FlushTicket, turnID string, now time.Time) (domain.AssembledTurn, bool, error) {
	_, turn, err := r.drain(t, turnID, now)
	if err != nil {
		return domain.AssembledTurn{}, false, err
	}
	return turn, turn.TurnID != "", nil
}

func (r *KV) drain(t domain.FlushTicket, turnID string, now time.Time) ([]domain.BufferedMessage, domain.AssembledTurn, error) {
	unlock := r.lock(t.Key.ConversationID)
	defer unlock()

	var prev domain.KeyState
	found, err := r.getJSON(stateKey(t.Key), &prev)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	if !found || !prev.Owns(t) {
		return nil, domain.AssembledTurn{}, domain.ErrClaimLost
	}

	msgs, leftovers, err := r.scanMessages(t.Key, t.Watermark)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	isEnded, err := r.has(endedKey(t.Key.ConversationID))
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}

	b := r.db.NewBatch()
	defer b.Close()
	for _, m := range msgs {
		if err := b.Delete(msgKey(t.Key, m.Seq), nil); err != nil {
			return nil, domain.AssembledTurn{}, err
		}
	}
	if isEnded {
		// nothing after the in-flight turn will ever flush
		if err := b.DeleteRange(msgKey(t.Key, t.Watermark+1), prefixEnd(msgPrefix(t.Key)), nil); err != nil {
			return nil, domain.AssembledTurn{}, err
		}
		leftovers = false
	}

	var turn domain.AssembledTurn
	if turnID != "" && len(msgs) > 0 {
		turn = newTurn(t, turnID, msgs, now)
		seq, err := r.next(keyTurnSeq)
		if err != nil {
			return nil, domain.AssembledTurn{}, err
		}
		turn.Seq = seq
		if err := setJSON(b, turnKey(turnID), turn); err != nil {
			return nil, domain.AssembledTurn{}, err
		}
		if err := b.Set(queueKey(t.Key.ConversationID, seq), []byte(turnID), nil); err != nil {
			return nil, domain.AssembledTurn{}, err
		}
	}

	ks, err := prev.Release(t, now, leftovers, isEnded)
	if err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	if err := r.putState(b, prev, ks); err != nil {
		return nil, domain.AssembledTurn{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, domain.AssembledTurn{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "kv drain")
	}
	return msgs, turn, nil
}

// EndConversation writes the end marker, then closes every key of the conversation
// buffered content of non-claimed keys is discarded; claimed keys close on release
func (r *KV) EndConversation(ctx context.Context, conversationID string, now time.Time) (int, error) {
	unlock := r.lock(conversationID)
	defer unlock()

	b := r.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, endedKey(conversationID), ended{EndedAt: now}); err != nil {
		return 0, err
	}

	lo := append(append(append([]byte{}, pfxState...), conversationID...), 0)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: prefixEnd(lo)})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		var prev domain.KeyState
		if err := json.Unmarshal(it.Value(), &prev); err != nil {
			return 0, perr.Wrap(err, perr.ErrorCodeJSON, "kv decode key state")
		}
		ks := prev.Close(now)
		if ks.State == domain.StateClosed {
			mp := msgPrefix(prev.Key)
			if err := b.DeleteRange(mp, prefixEnd(mp), nil); err != nil {
				return 0, err
			}
		}
		if err := r.putState(b, prev, ks); err != nil {
			return 0, err
		}
		n++
	}
	if err := it.Error(); err != nil {
		return 0, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeUnavailable, "kv end conversation")
	}
	return n, nil
}

// IsEnded reports whether the conversation is terminal
func (r *KV) IsEnded(ctx context.Context, conversationID string) (bool, error) {
	return r.has(endedKey(conversationID))
}

// LeaseTurns leases the head of each conversation queue that is ready
func (r *KV) LeaseTurns(ctx context.Context, n int, leaseFor time.Duration, now time.Time) ([]domain.AssembledTurn, error) {
	r.outboxMu.Lock()
	defer r.outboxMu.Unlock()

	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: pfxQueue, UpperBound: prefixEnd(pfxQueue)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	b := r.db.NewBatch()
	defer b.Close()

	var out []domain.AssembledTurn
	for valid := it.First(); valid && (n <= 0 || len(out) < n); {
		k := it.Key()
		conv := k[len(pfxQueue) : len(k)-9] // strip \x00 + 8 byte seq
		var turn domain.AssembledTurn
		found, err := r.getJSON(turnKey(string(it.Value())), &turn)
		if err != nil {
			return nil, err
		}
		if found && turn.Status == domain.TurnPending && !turn.NextAttemptAt.After(now) && !turn.LeaseUntil.After(now) {
			turn.LeaseUntil = now.Add(leaseFor)
			if err := setJSON(b, turnKey(turn.TurnID), turn); err != nil {
				return nil, err
			}
			out = append(out, turn)
		}
		// only the head of each conversation is eligible
		next := append(append(append([]byte{}, pfxQueue...), conv...), 1)
		valid = it.SeekGE(next)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		if err := b.Commit(pebble.Sync); err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "kv lease turns")
		}
	}
	return out, nil
}

// GetTurn loads one outbox row
func (r *KV) GetTurn(ctx context.Context, turnID string) (domain.AssembledTurn, error) {
	var turn domain.AssembledTurn
	found, err := r.getJSON(turnKey(turnID), &turn)
	if err != nil {
		return turn, err
	}
	if !found {
		return turn, domain.ErrTurnNotFound
	}
	return turn, nil
}

// CompleteTurn finalizes a turn and pops it from its conversation queue
func (r *KV) CompleteTurn(ctx context.Context, turnID string, status domain.TurnStatus, lastErr string, now time.Time) error {
	r.outboxMu.Lock()
	defer r.outboxMu.Unlock()

	turn, err := r.GetTurn(ctx, turnID)
	if err != nil {
		return err
	}
	if turn.Status != domain.TurnPending {
		return nil
	}
	turn.Status = status
	turn.LastError = lastErr
	turn.LeaseUntil = time.Time{}

	b := r.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, turnKey(turnID), turn); err != nil {
		return err
	}
	if err := b.Delete(queueKey(turn.Key.ConversationID, turn.Seq), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// RetryTurn releases the lease and schedules the next attempt
func (r *KV) RetryTurn(ctx context.Context, turnID string, next time.Time, lastErr string) error {
	r.outboxMu.Lock()
	defer r.outboxMu.Unlock()

	turn, err := r.GetTurn(ctx, turnID)
	if err != nil {
		return err
	}
	if turn.Status != domain.TurnPending {
		return nil
	}
	turn.Attempts++
	turn.NextAttemptAt = next
	turn.LeaseUntil = time.Time{}
	turn.LastError = lastErr

	b := r.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, turnKey(turnID), turn); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// ListTurns returns the pending queue of a conversation in order
func (r *KV) ListTurns(ctx context.Context, conversationID string, limit int) ([]domain.AssembledTurn, error) {
	lo := append(append(append([]byte{}, pfxQueue...), conversationID...), 0)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: prefixEnd(lo)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []domain.AssembledTurn
	for valid := it.First(); valid; valid = it.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		turn, err := r.GetTurn(ctx, string(it.Value()))
		if err != nil {
			return nil, err
		}
		out = append(out, turn)
	}
	return out, it.Error()
}

// scanMessages returns messages with seq <= watermark (all when watermark < 0)
// and whether later messages exist
func (r *KV) scanMessages(key domain.BufferKey, watermark int64) ([]domain.BufferedMessage, bool, error) {
	lo := msgPrefix(key)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: prefixEnd(lo)})
	if err != nil {
		return nil, false, err
	}
	defer it.Close()

	var out []domain.BufferedMessage
	for valid := it.First(); valid; valid = it.Next() {
		var m domain.BufferedMessage
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			return nil, false, perr.Wrap(err, perr.ErrorCodeJSON, "kv decode message")
		}
		if watermark >= 0 && m.Seq > watermark {
			return out, true, it.Error()
		}
		out = append(out, m)
	}
	return out, false, it.Error()
}

func (r *KV) loadState(key domain.BufferKey, now time.Time) (domain.KeyState, error) {
	var ks domain.KeyState
	found, err := r.getJSON(stateKey(key), &ks)
	if err != nil {
		return ks, err
	}
	if !found {
		return domain.NewKeyState(key, now), nil
	}
	return ks, nil
}

func (r *KV) commitState(prev, next domain.KeyState) error {
	b := r.db.NewBatch()
	defer b.Close()
	if err := r.putState(b, prev, next); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "kv key state")
	}
	return nil
}

// putState writes next and moves its sweeper index entry
func (r *KV) putState(b *pebble.Batch, prev, next domain.KeyState) error {
	if w := prev.WakeAt(); !w.IsZero() {
		if err := b.Delete(wakeKey(w, prev.Key), nil); err != nil {
			return err
		}
	}
	if w := next.WakeAt(); !w.IsZero() {
		if err := b.Set(wakeKey(w, next.Key), nil, nil); err != nil {
			return err
		}
	}
	return setJSON(b, stateKey(next.Key), next)
}

// next allocates the following value of a monotonic counter
// the counter write precedes any batch that uses the value in the WAL,
// so a synced batch implies a durable counter
func (r *KV) next(counter []byte) (int64, error) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()

	var cur int64
	v, closer, err := r.db.Get(counter)
	switch {
	case err == nil:
		cur = int64(binary.BigEndian.Uint64(v))
		_ = closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return 0, err
	}
	cur++
	if err := r.db.Set(counter, be64(uint64(cur)), pebble.NoSync); err != nil {
		return 0, err
	}
	return cur, nil
}

func (r *KV) has(k []byte) (bool, error) {
	_, closer, err := r.db.Get(k)
	if err == nil {
		_ = closer.Close()
		return true, nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (r *KV) getJSON(k []byte, v any) (bool, error) {
	raw, closer, err := r.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(raw, v); err != nil {
		return false, perr.Wrap(err, perr.ErrorCodeJSON, "kv decode")
	}
	return true, nil
}

func setJSON(b *pebble.Batch, k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "kv encode")
	}
	return b.Set(k, raw, nil)
}

func encKey(k domain.BufferKey) []byte {
	var buf bytes.Buffer
	buf.WriteString(k.ConversationID)
	buf.WriteByte(0)
	buf.WriteString(k.CandidateID)
	buf.WriteByte(0)
	buf.Write(be64(uint64(k.Step)))
	return buf.Bytes()
}

func stateKey(k domain.BufferKey) []byte {
	return append(append([]byte{}, pfxState...), encKey(k)...)
}

func msgPrefix(k domain.BufferKey) []byte {
	return append(append(append([]byte{}, pfxMsg...), encKey(k)...), 0)
}

func msgKey(k domain.BufferKey, seq int64) []byte {
	return append(msgPrefix(k), be64(uint64(seq))...)
}

func receiptKey(id string) []byte { return append(append([]byte{}, pfxReceipt...), id...) }
func endedKey(conv string) []byte { return append(append([]byte{}, pfxEnded...), conv...) }
func turnKey(id string) []byte    { return append(append([]byte{}, pfxTurn...), id...) }

func queueKey(conv string, seq int64) []byte {
	k := append(append(append([]byte{}, pfxQueue...), conv...), 0)
	return append(k, be64(uint64(seq))...)
}

func wakeKey(at time.Time, k domain.BufferKey) []byte {
	out := append(append([]byte{}, pfxWake...), be64(uint64(at.UnixNano()))...)
	return append(out, encKey(k)...)
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// prefixEnd returns the smallest key greater than every key with prefix p
func prefixEnd(p []byte) []byte {
	end := append([]byte{}, p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
