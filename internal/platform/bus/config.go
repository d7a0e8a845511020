package bus

import (
	"os"
	"time"

	"turnstile/internal/platform/config"
)

// Transport names
const (
	TransportGoChannel = "gochannel"
	TransportRedis     = "redis"
)

// Config configures transport and handler retry policy
type Config struct {
	Transport     string
	ConsumerGroup string
	Consumer      string
	OutputBuffer  int64
	MaxRetries    int
	RetryInterval time.Duration
	CloseTimeout  time.Duration
}

// FromConfig reads BUS_* settings
func FromConfig(c config.Conf) Config {
	host, _ := os.Hostname()
	return Config{
		Transport:     c.MayEnum("TRANSPORT", TransportGoChannel, TransportGoChannel, TransportRedis),
		ConsumerGroup: c.MayString("CONSUMER_GROUP", "turnstile"),
		Consumer:      c.MayString("CONSUMER", host),
		OutputBuffer:  int64(c.MayInt("OUTPUT_BUFFER", 256)),
		MaxRetries:    c.MayInt("MAX_RETRIES", 5),
		RetryInterval: c.MayDuration("RETRY_INTERVAL", 200*time.Millisecond),
		CloseTimeout:  c.MayDuration("CLOSE_TIMEOUT", 10*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportGoChannel
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "turnstile"
	}
	if c.OutputBuffer <= 0 {
		c.OutputBuffer = 256
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	return c
}
