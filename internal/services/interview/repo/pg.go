package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"turnstile/internal/modkit/repokit"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/jackc/pgx/v5"
)

// PG is the Postgres backed Repo
type PG struct {
	q repokit.Queryer
}

// NewPG binds a Repo to a Postgres Queryer
func NewPG(q repokit.Queryer) *PG {
	return &PG{q: repokit.RequireQueryer(q)}
}

var _ Repo = (*PG)(nil)

const stateCols = `conversation_id, candidate_id, channel, chat_ref, step, status, question,
	history, final_score, end_reason, last_turn_id, version, started_at, updated_at`

// Create inserts a new conversation
func (r *PG) Create(ctx context.Context, s domain.State) error {
	hist, err := json.Marshal(nonNil(s.History))
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode history")
	}
	const sqlq = `INSERT INTO interview_states (` + stateCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.q.Exec(ctx, sqlq,
		s.ConversationID, s.CandidateID, string(s.Channel), s.ChatRef, s.Step, string(s.Status), s.Question,
		hist, s.FinalScore, s.EndReason, s.LastTurnID, s.Version, s.StartedAt, s.UpdatedAt,
	)
	if err != nil {
		if code, ok := perr.DBErrorCode(err); ok && code == perr.ErrorCodeDuplicateKey {
			return domain.ErrExists
		}
		return perr.FromPostgres(err, "interview state")
	}
	return nil
}

// Get loads one conversation
func (r *PG) Get(ctx context.Context, conversationID string) (domain.State, error) {
	row := r.q.QueryRow(ctx, `SELECT `+stateCols+` FROM interview_states WHERE conversation_id = $1`, conversationID)
	return scanState(row)
}

// FindByChat returns the active conversation bound to a channel chat
func (r *PG) FindByChat(ctx context.Context, channel turns.Channel, chatRef string) (domain.State, error) {
	const sqlq = `SELECT ` + stateCols + ` FROM interview_states
		WHERE channel = $1 AND chat_ref = $2 AND status = 'active'
		ORDER BY started_at DESC LIMIT 1`
	return scanState(r.q.QueryRow(ctx, sqlq, string(channel), chatRef))
}

// Save writes s when the stored version is s.Version-1
func (r *PG) Save(ctx context.Context, s domain.State) error {
	hist, err := json.Marshal(nonNil(s.History))
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode history")
	}
	const sqlq = `
		UPDATE interview_states
		SET step = $2, status = $3, question = $4, history = $5, final_score = $6,
		    end_reason = $7, last_turn_id = $8, version = $9, updated_at = $10
		WHERE conversation_id = $1 AND version = $9 - 1
	`
	tag, err := r.q.Exec(ctx, sqlq,
		s.ConversationID, s.Step, string(s.Status), s.Question, hist, s.FinalScore,
		s.EndReason, s.LastTurnID, s.Version, s.UpdatedAt,
	)
	if err != nil {
		return perr.FromPostgres(err, "interview state")
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.Get(ctx, s.ConversationID); gerr != nil {
			return gerr
		}
		return domain.ErrVersion
	}
	return nil
}

func scanState(row repokit.Row) (domain.State, error) {
	var (
		s       domain.State
		channel string
		status  string
		hist    []byte
	)
	err := row.Scan(
		&s.ConversationID, &s.CandidateID, &channel, &s.ChatRef, &s.Step, &status, &s.Question,
		&hist, &s.FinalScore, &s.EndReason, &s.LastTurnID, &s.Version, &s.StartedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return s, domain.ErrNotFound
		}
		return s, perr.FromPostgres(err, "scan interview state")
	}
	s.Channel, s.Status = turns.Channel(channel), domain.Status(status)
	if err := json.Unmarshal(hist, &s.History); err != nil {
		return s, perr.Wrap(err, perr.ErrorCodeJSON, "decode history")
	}
	s.StartedAt, s.UpdatedAt = s.StartedAt.UTC(), s.UpdatedAt.UTC()
	return s, nil
}

func nonNil(h []domain.Exchange) []domain.Exchange {
	if h == nil {
		return []domain.Exchange{}
	}
	return h
}
