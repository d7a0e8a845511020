// Package telegram is a small Bot API client: sendMessage, getFile and file download
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"turnstile/internal/platform/config"
	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"

	"golang.org/x/time/rate"
)

const (
	baseURLDefault   = "https://api.telegram.org"
	defaultTimeout   = 15 * time.Second
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
	// Telegram allows roughly 30 messages per second per bot
	defaultRatePerSec = 25
	maxDownload       = 20 << 20
)

// Options configures the Client
type Options struct {
	Token         string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	RatePerSec    float64
	Burst         int
	WebhookSecret string
}

// FromConfig reads TELEGRAM_* settings
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TELEGRAM_")
	return Options{
		Token:         c.MayString("BOT_TOKEN", ""),
		BaseURL:       c.MayString("BASE_URL", baseURLDefault),
		Timeout:       c.MayDuration("TIMEOUT", defaultTimeout),
		RatePerSec:    c.MayFloat64("RATE_PER_SEC", defaultRatePerSec),
		Burst:         c.MayInt("BURST", 5),
		WebhookSecret: c.MayString("WEBHOOK_SECRET", ""),
	}
}

// Enabled reports whether a bot token is configured
func (o Options) Enabled() bool { return o.Token != "" }

// Client talks to one bot
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	log     logger.Logger
	sleep   func(time.Duration)
}

// NewClient creates a Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = defaultRatePerSec
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: o.Timeout},
		opts:    o,
		limiter: rate.NewLimiter(rate.Limit(o.RatePerSec), o.Burst),
		log:     *logger.Named("telegram"),
		sleep:   time.Sleep,
	}
}

// SendMessage posts text to a chat; chatRef is the decimal chat id
func (c *Client) SendMessage(ctx context.Context, chatRef, text string) error {
	id, err := strconv.ParseInt(chatRef, 10, 64)
	if err != nil {
		return perr.WithField(perr.InvalidArgf("telegram chat ref %q is not numeric", chatRef), "chat_ref")
	}
	var out json.RawMessage
	return c.call(ctx, "sendMessage", sendMessage{ChatID: id, Text: text}, &out)
}

// GetFile resolves a file id into a downloadable path
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	var f File
	err := c.call(ctx, "getFile", getFile{FileID: fileID}, &f)
	return f, err
}

// Download fetches a file resolved by GetFile; the caller closes the body
func (c *Client) Download(ctx context.Context, filePath string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/file/bot"+c.opts.Token+"/"+filePath, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "telegram new request failed")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "telegram download failed")
	}
	if resp.StatusCode != http.StatusOK {
		_ = drainAndClose(resp.Body)
		return nil, perr.Newf(perr.ErrorCodeUnavailable, "telegram download status %d", resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxDownload), resp.Body}, nil
}

// call posts a JSON method call with rate limiting and retries on 429 and 5xx
func (c *Client) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "telegram encode request")
	}
	url := c.opts.BaseURL + "/bot" + c.opts.Token + "/" + method

	attempts := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnknown, "telegram new request failed")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || !c.shouldRetry(attempts) {
				return perr.Wrapf(err, perr.ErrorCodeUnavailable, "telegram %s failed", method)
			}
			back := c.backoff(attempts)
			c.log.Warn().Str("method", method).Dur("retry_in", back).Int("attempt", attempts).Msg("telegram transport error retrying")
			c.sleep(back)
			attempts++
			continue
		}

		env := response[json.RawMessage]{}
		derr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)
		_ = drainAndClose(resp.Body)
		c.log.Debug().Str("method", method).Int("status", resp.StatusCode).Int("attempt", attempts).Msg("telegram http response")

		switch {
		case resp.StatusCode == http.StatusOK && derr == nil && env.OK:
			if err := json.Unmarshal(env.Result, out); err != nil {
				return perr.Wrap(err, perr.ErrorCodeJSON, "telegram decode result")
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if !c.shouldRetry(attempts) {
				return perr.Newf(perr.ErrorCodeTooManyRequests, "telegram %s rate limited", method)
			}
			wait := c.backoff(attempts)
			if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
				wait = time.Duration(env.Parameters.RetryAfter) * time.Second
			}
			c.log.Warn().Str("method", method).Dur("sleep", wait).Msg("telegram rate limited backing off")
			c.sleep(wait)
			attempts++
			continue
		case resp.StatusCode >= 500:
			if !c.shouldRetry(attempts) {
				return perr.Newf(perr.ErrorCodeUnavailable, "telegram %s transient server error", method)
			}
			back := c.backoff(attempts)
			c.log.Warn().Str("method", method).Dur("retry_in", back).Int("attempt", attempts).Msg("telegram transient error retrying")
			c.sleep(back)
			attempts++
			continue
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return perr.Newf(perr.ErrorCodeForbidden, "telegram %s: %s", method, env.Description)
		default:
			return perr.Newf(perr.ErrorCodeInvalidArgument, "telegram %s status %d: %s", method, resp.StatusCode, env.Description)
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	ms := int64(c.opts.RetryBase/time.Millisecond) << uint(attempt)
	return time.Duration(min(ms, int64(30*time.Second/time.Millisecond))) * time.Millisecond
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.opts.MaxRetries
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	return rc.Close()
}
