package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"turnstile/internal/adapters/telegram"
	"turnstile/internal/modkit"
	perr "turnstile/internal/platform/errors"
	ptime "turnstile/internal/platform/time"
	"turnstile/internal/services/channels/domain"
	interview "turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeConvs struct{ byID map[string]interview.State }

func (f fakeConvs) Get(_ context.Context, id string) (interview.State, error) {
	st, ok := f.byID[id]
	if !ok {
		return st, interview.ErrNotFound
	}
	return st, nil
}

func (f fakeConvs) FindByChat(_ context.Context, ch turns.Channel, ref string) (interview.State, error) {
	for _, st := range f.byID {
		if st.Channel == ch && st.ChatRef == ref && st.Active() {
			return st, nil
		}
	}
	return interview.State{}, interview.ErrNotFound
}

type recSink struct {
	mu   sync.Mutex
	msgs []turns.MessageBuffered
	acts []turns.ActivitySignal
}

func (s *recSink) Message(_ context.Context, e turns.MessageBuffered) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, e)
	return nil
}

func (s *recSink) Activity(_ context.Context, e turns.ActivitySignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acts = append(s.acts, e)
	return nil
}

type fakeTG struct {
	sent []string
	fail error
}

func (f *fakeTG) SendMessage(_ context.Context, chatRef, text string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, chatRef+"|"+text)
	return nil
}

func (f *fakeTG) GetFile(_ context.Context, id string) (telegram.File, error) {
	return telegram.File{FileID: id, FilePath: "voice/" + id + ".oga"}, nil
}

func (f *fakeTG) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("OggS")), nil
}

type fakeSTT struct{ name string }

func (f *fakeSTT) Transcribe(_ context.Context, name string, r io.Reader) (string, error) {
	f.name = name
	b, _ := io.ReadAll(r)
	if string(b) != "OggS" {
		return "", errors.New("unexpected audio")
	}
	return "  I led the migration  ", nil
}

func newSvc(t *testing.T) (*Svc, *recSink, *fakeTG, *fakeSTT) {
	t.Helper()
	convs := fakeConvs{byID: map[string]interview.State{
		"v1": {ConversationID: "v1", CandidateID: "c1", Channel: turns.ChannelWebChat, Step: 2, Status: interview.StatusActive},
		"v2": {ConversationID: "v2", CandidateID: "c2", Channel: turns.ChannelTelegram, ChatRef: "42", Step: 1, Status: interview.StatusActive},
		"v3": {ConversationID: "v3", CandidateID: "c3", Channel: turns.ChannelWebChat, Status: interview.StatusCompleted},
	}}
	sink := &recSink{}
	tg := &fakeTG{}
	stt := &fakeSTT{}
	s := New(modkit.Deps{Clock: ptime.NewFake(t0)}, Options{
		Conversations: convs,
		Sink:          sink,
		Telegram:      tg,
		Transcriber:   stt,
	})
	s.newID = func() string { return "gen-1" }
	return s, sink, tg, stt
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"  hi  ", "hi"},
		{"café", "café"},
		{"\n\t", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWebMessage_BuffersAtCurrentStep(t *testing.T) {
	t.Parallel()
	s, sink, _, _ := newSvc(t)
	ctx := context.Background()

	acc, err := s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "v1", CandidateID: "c1", Text: " yes "})
	require.NoError(t, err)
	require.Equal(t, domain.Accepted{ConversationID: "v1", MessageID: "gen-1", Step: 2}, acc)

	require.Len(t, sink.msgs, 1)
	m := sink.msgs[0]
	require.Equal(t, "yes", m.Text)
	require.Equal(t, 2, m.InterviewStep)
	require.Equal(t, turns.ChannelWebChat, m.Channel)
	require.Equal(t, turns.KindText, m.Kind)
	require.True(t, m.ArrivedAt.Equal(t0))

	_, err = s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "v1", CandidateID: "c1", MessageID: "m-7", Text: "again"})
	require.NoError(t, err)
	require.Equal(t, "m-7", sink.msgs[1].MessageID)
}

func TestWebMessage_Rejects(t *testing.T) {
	t.Parallel()
	s, sink, _, _ := newSvc(t)
	ctx := context.Background()

	_, err := s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "v1", CandidateID: "c1", Text: "   "})
	require.Equal(t, perr.ErrorCodeInvalidArgument, perr.CodeOf(err))

	_, err = s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "v1", CandidateID: "intruder", Text: "hi"})
	require.ErrorIs(t, err, interview.ErrCandidateSwap)

	_, err = s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "v3", CandidateID: "c3", Text: "hi"})
	require.ErrorIs(t, err, interview.ErrNotActive)

	_, err = s.WebMessage(ctx, domain.WebMessageInput{ConversationID: "nope", CandidateID: "c1", Text: "hi"})
	require.ErrorIs(t, err, interview.ErrNotFound)

	require.Empty(t, sink.msgs)
}

func TestWebActivity(t *testing.T) {
	t.Parallel()
	s, sink, _, _ := newSvc(t)
	ctx := context.Background()

	require.NoError(t, s.WebActivity(ctx, domain.WebActivityInput{ConversationID: "v1", CandidateID: "c1", Activity: "typing"}))
	require.Len(t, sink.acts, 1)
	require.Equal(t, turns.ActivityTyping, sink.acts[0].ActivityType)
	require.Equal(t, 2, sink.acts[0].InterviewStep)

	err := s.WebActivity(ctx, domain.WebActivityInput{ConversationID: "v1", CandidateID: "c1", Activity: "dancing"})
	require.Equal(t, perr.ErrorCodeInvalidArgument, perr.CodeOf(err))
}

func TestHandleUpdate_Text(t *testing.T) {
	t.Parallel()
	s, sink, _, _ := newSvc(t)

	err := s.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		MessageID: 9, Chat: telegram.Chat{ID: 42}, Text: "five years",
	}})
	require.NoError(t, err)
	require.Len(t, sink.msgs, 1)
	require.Equal(t, "tg:42:9", sink.msgs[0].MessageID)
	require.Equal(t, "v2", sink.msgs[0].ConversationID)
	require.Equal(t, 1, sink.msgs[0].InterviewStep)
	require.Equal(t, turns.ChannelTelegram, sink.msgs[0].Channel)
}

func TestHandleUpdate_VoiceIsTranscribed(t *testing.T) {
	t.Parallel()
	s, sink, _, stt := newSvc(t)

	err := s.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{
		MessageID: 10, Chat: telegram.Chat{ID: 42}, Voice: &telegram.Voice{FileID: "f1", Duration: 4},
	}})
	require.NoError(t, err)
	require.Equal(t, "f1.oga", stt.name)

	require.Len(t, sink.acts, 1)
	require.Equal(t, turns.ActivityRecording, sink.acts[0].ActivityType)
	require.Len(t, sink.msgs, 1)
	m := sink.msgs[0]
	require.Equal(t, turns.KindVoice, m.Kind)
	require.Equal(t, "f1", m.PayloadRef)
	require.Equal(t, "I led the migration", m.Text)
}

func TestHandleUpdate_Ignored(t *testing.T) {
	t.Parallel()
	s, sink, _, _ := newSvc(t)
	ctx := context.Background()

	require.NoError(t, s.HandleUpdate(ctx, telegram.Update{UpdateID: 1}))
	require.NoError(t, s.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: 7}, Text: "hi"}}))
	require.NoError(t, s.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: 42}, Text: "  "}}))
	require.Empty(t, sink.msgs)
}

func TestDeliver(t *testing.T) {
	t.Parallel()
	s, _, tg, _ := newSvc(t)
	ctx := context.Background()

	require.NoError(t, s.Deliver(ctx, interview.ReplyReady{ConversationID: "v2", Channel: turns.ChannelTelegram, ChatRef: "42", Text: "Next?"}))
	require.Equal(t, []string{"42|Next?"}, tg.sent)

	// no socket open is not an error
	require.NoError(t, s.Deliver(ctx, interview.ReplyReady{ConversationID: "v1", Channel: turns.ChannelWebChat, Text: "Next?"}))

	err := s.Deliver(ctx, interview.ReplyReady{ConversationID: "v1", Channel: "fax", Text: "Next?"})
	require.Equal(t, perr.ErrorCodeInvalidArgument, perr.CodeOf(err))

	tg.fail = perr.Newf(perr.ErrorCodeUnavailable, "telegram down")
	err = s.Deliver(ctx, interview.ReplyReady{Channel: turns.ChannelTelegram, ChatRef: "42", Text: "x"})
	require.Equal(t, perr.ErrorCodeUnavailable, perr.CodeOf(err))
}

func TestNew_PanicsWithoutSink(t *testing.T) {
	t.Parallel()
	require.Panics(t, func() { New(modkit.Deps{}, Options{Conversations: fakeConvs{}}) })
}
