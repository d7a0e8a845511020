// Package openai adapts the OpenAI chat API to the interview collaborator port
package openai

import (
	"errors"
	"net/http"
	"time"

	"turnstile/internal/platform/config"
	perr "turnstile/internal/platform/errors"

	goopenai "github.com/sashabaranov/go-openai"
)

// Config holds OPENAI_* settings
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Timeout         time.Duration
	Temperature     float32
}

// FromConfig reads OPENAI_* settings
func FromConfig(cfg config.Conf) Config {
	c := cfg.Prefix("OPENAI_")
	return Config{
		APIKey:          c.MayString("API_KEY", ""),
		BaseURL:         c.MayString("BASE_URL", ""),
		Model:           c.MayString("MODEL", goopenai.GPT4oMini),
		TranscribeModel: c.MayString("TRANSCRIBE_MODEL", goopenai.Whisper1),
		Timeout:         c.MayDuration("TIMEOUT", 30*time.Second),
		Temperature:     float32(c.MayFloat64("TEMPERATURE", 0.3)),
	}
}

// Enabled reports whether an API key is configured
func (c Config) Enabled() bool { return c.APIKey != "" }

// NewClient builds a go-openai client honoring BaseURL and Timeout
func NewClient(c Config) *goopenai.Client {
	oc := goopenai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		oc.BaseURL = c.BaseURL
	}
	if c.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return goopenai.NewClientWithConfig(oc)
}

// MapError classifies API failures so the pipeline can tell retryable from permanent
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	code := perr.ErrorCodeUnavailable
	switch {
	case status == http.StatusTooManyRequests:
		code = perr.ErrorCodeTooManyRequests
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = perr.ErrorCodeUnauthorized
	case status == http.StatusBadRequest:
		code = perr.ErrorCodeInvalidArgument
	}
	return perr.Wrap(err, code, op)
}
