package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"turnstile/internal/adapters/telegram"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	interview "turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// HandleUpdate turns one webhook update into buffered facts
// updates from chats without an active conversation are ignored
func (s *Svc) HandleUpdate(ctx context.Context, u telegram.Update) error {
	m := u.Message
	if m == nil {
		return nil
	}
	chatRef := strconv.FormatInt(m.Chat.ID, 10)
	st, err := s.convs.FindByChat(ctx, turns.ChannelTelegram, chatRef)
	if errors.Is(err, interview.ErrNotFound) {
		logger.C(ctx).Debug().Str("chat_ref", chatRef).Msg("channels: update for unknown chat")
		return nil
	}
	if err != nil {
		return err
	}
	if !st.Active() {
		return nil
	}
	ctx = logger.WithRequest(ctx, "", st.ConversationID)

	evt := turns.MessageBuffered{
		CandidateID:    st.CandidateID,
		ConversationID: st.ConversationID,
		InterviewStep:  st.Step,
		MessageID:      fmt.Sprintf("tg:%d:%d", m.Chat.ID, m.MessageID),
		ArrivedAt:      s.clock.Now(),
		Kind:           turns.KindText,
		Channel:        turns.ChannelTelegram,
	}

	switch voice := voiceOf(m); {
	case voice != nil:
		// transcription can take longer than the quiet period; keep the key armed meanwhile
		if err := s.sink.Activity(ctx, turns.ActivitySignal{
			CandidateID:    st.CandidateID,
			ConversationID: st.ConversationID,
			InterviewStep:  st.Step,
			ActivityType:   turns.ActivityRecording,
			ObservedAt:     s.clock.Now(),
		}); err != nil {
			return err
		}
		text, err := s.transcribe(ctx, voice)
		if err != nil {
			return err
		}
		evt.Kind = turns.KindVoice
		evt.PayloadRef = voice.FileID
		evt.Text = text
	default:
		evt.Text = Normalize(m.Text)
	}
	if evt.Text == "" {
		return nil
	}
	return s.sink.Message(ctx, evt)
}

func voiceOf(m *telegram.Message) *telegram.Voice {
	if m.Voice != nil {
		return m.Voice
	}
	return m.Audio
}

func (s *Svc) transcribe(ctx context.Context, v *telegram.Voice) (string, error) {
	if s.tg == nil {
		return "", perr.Newf(perr.ErrorCodeUnavailable, "telegram client not configured")
	}
	f, err := s.tg.GetFile(ctx, v.FileID)
	if err != nil {
		return "", err
	}
	body, err := s.tg.Download(ctx, f.FilePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	name := path.Base(f.FilePath)
	if name == "." || name == "/" {
		name = v.FileID + ".oga"
	}
	text, err := s.stt.Transcribe(ctx, name, body)
	if err != nil {
		return "", err
	}
	return Normalize(text), nil
}
