// Package transcribe turns candidate voice notes into text before they are buffered
package transcribe

import (
	"context"
	"io"
	"strings"

	aiopenai "turnstile/internal/adapters/ai/openai"
	perr "turnstile/internal/platform/errors"

	goopenai "github.com/sashabaranov/go-openai"
)

// Transcriber converts an audio stream to text
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Whisper transcribes through the OpenAI audio API
type Whisper struct {
	client   *goopenai.Client
	model    string
	language string
}

// NewWhisper binds a transcriber to the OPENAI_* settings; language may be empty for auto-detect
func NewWhisper(c aiopenai.Config, language string) *Whisper {
	return &Whisper{client: aiopenai.NewClient(c), model: c.TranscribeModel, language: language}
}

var _ Transcriber = (*Whisper)(nil)

// Transcribe uploads the audio and returns the trimmed transcript
func (w *Whisper) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   audio,
		Language: w.language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", aiopenai.MapError(err, "whisper transcription")
	}
	return strings.TrimSpace(resp.Text), nil
}

// Disabled rejects every voice note; used when no API key is configured
type Disabled struct{}

// Transcribe always fails with ErrorCodeUnavailable
func (Disabled) Transcribe(context.Context, string, io.Reader) (string, error) {
	return "", perr.Newf(perr.ErrorCodeUnavailable, "voice transcription is not configured")
}
