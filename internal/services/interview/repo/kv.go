package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/cockroachdb/pebble"
)

// Key layout, disjoint from the turn buffer prefixes sharing the same database:
//
//	iv/<conv>                 state
//	ic/<channel>\x00<chat>    active conversation of a chat
var (
	pfxInterview = []byte("iv/")
	pfxChat      = []byte("ic/")
)

// KV is the pebble backed Repo
type KV struct {
	db *pebble.DB
	mu sync.Mutex
}

// NewKV binds a Repo to an open pebble database
func NewKV(db *pebble.DB) *KV {
	if db == nil {
		panic("interview.repo: nil pebble db")
	}
	return &KV{db: db}
}

var _ Repo = (*KV)(nil)

// Create inserts a new conversation
func (r *KV) Create(_ context.Context, s domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.get(s.ConversationID); err == nil {
		return domain.ErrExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if s.ChatRef != "" {
		if cur, err := r.byChat(s.Channel, s.ChatRef); err == nil && cur.Active() {
			return domain.ErrExists
		}
	}
	return r.put(s)
}

// Get loads one conversation
func (r *KV) Get(_ context.Context, conversationID string) (domain.State, error) {
	return r.get(conversationID)
}

// FindByChat returns the active conversation bound to a channel chat
func (r *KV) FindByChat(_ context.Context, channel turns.Channel, chatRef string) (domain.State, error) {
	s, err := r.byChat(channel, chatRef)
	if err != nil {
		return s, err
	}
	if !s.Active() {
		return domain.State{}, domain.ErrNotFound
	}
	return s, nil
}

// Save writes s when the stored version is s.Version-1
func (r *KV) Save(_ context.Context, s domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.get(s.ConversationID)
	if err != nil {
		return err
	}
	if cur.Version != s.Version-1 {
		return domain.ErrVersion
	}
	return r.put(s)
}

func (r *KV) byChat(channel turns.Channel, chatRef string) (domain.State, error) {
	v, closer, err := r.db.Get(chatKey(channel, chatRef))
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, perr.Wrap(err, perr.ErrorCodeDB, "read chat index")
	}
	conv := string(v)
	_ = closer.Close()
	return r.get(conv)
}

func (r *KV) get(conversationID string) (domain.State, error) {
	var s domain.State
	v, closer, err := r.db.Get(stateKey(conversationID))
	if errors.Is(err, pebble.ErrNotFound) {
		return s, domain.ErrNotFound
	}
	if err != nil {
		return s, perr.Wrap(err, perr.ErrorCodeDB, "read interview state")
	}
	defer func() { _ = closer.Close() }()
	if err := json.Unmarshal(v, &s); err != nil {
		return s, perr.Wrap(err, perr.ErrorCodeJSON, "decode interview state")
	}
	return s, nil
}

func (r *KV) put(s domain.State) error {
	v, err := json.Marshal(s)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode interview state")
	}
	b := r.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(stateKey(s.ConversationID), v, nil); err != nil {
		return err
	}
	if s.ChatRef != "" {
		ck := chatKey(s.Channel, s.ChatRef)
		if s.Active() {
			err = b.Set(ck, []byte(s.ConversationID), nil)
		} else if cur, cerr := r.byChat(s.Channel, s.ChatRef); cerr == nil && cur.ConversationID == s.ConversationID {
			err = b.Delete(ck, nil)
		}
		if err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "write interview state")
	}
	return nil
}

func stateKey(conv string) []byte { return append(append([]byte{}, pfxInterview...), conv...) }

func chatKey(channel turns.Channel, chatRef string) []byte {
	k := append(append([]byte{}, pfxChat...), channel...)
	k = append(k, 0)
	return append(k, chatRef...)
}
