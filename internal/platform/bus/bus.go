// Package bus is the at-least-once event substrate: a watermill router over
// an in-process gochannel or redis streams with consumer groups
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/platform/logger"
	"turnstile/internal/platform/metrics"
	pnet "turnstile/internal/platform/net"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// Publisher is the narrow surface producers depend on
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// HandlerFunc consumes one decoded-on-demand message
// returning an error nacks the message so it is redelivered
type HandlerFunc func(ctx context.Context, msg *message.Message) error

// Router is the registration surface services subscribe through
type Router interface {
	Handle(name, topic string, fn HandlerFunc)
}

// Bus owns the publisher, subscriber and router for one process
type Bus struct {
	cfg     Config
	wlog    watermill.LoggerAdapter
	log     *logger.Logger
	metrics *metrics.Metrics

	pub    message.Publisher
	sub    message.Subscriber
	router *message.Router

	// newSub is set for transports where each handler needs its own consumer group
	newSub func(group string) (message.Subscriber, error)
	subs   []message.Subscriber
}

// Option mutates Bus during New
type Option func(*Bus)

// WithMetrics sets the collector set used for handler outcomes
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bus) { b.metrics = m } }

// New builds the transport named in cfg; rds is required for the redis transport
func New(cfg Config, rds redis.UniversalClient, log *logger.Logger, opts ...Option) (*Bus, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Named("bus")
	}
	b := &Bus{cfg: cfg, log: log, wlog: NewLogger(log)}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = metrics.Default()
	}

	switch cfg.Transport {
	case TransportRedis:
		if rds == nil {
			return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "bus: redis transport requires a redis client")
		}
		marshaler := rstream.DefaultMarshallerUnmarshaller{}
		pub, err := rstream.NewPublisher(rstream.PublisherConfig{
			Client:     rds,
			Marshaller: marshaler,
		}, b.wlog)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "bus: redis publisher")
		}
		b.newSub = func(group string) (message.Subscriber, error) {
			return rstream.NewSubscriber(rstream.SubscriberConfig{
				Client:        rds,
				Unmarshaller:  marshaler,
				ConsumerGroup: group,
				Consumer:      cfg.Consumer,
			}, b.wlog)
		}
		b.pub = pub
	default:
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, b.wlog)
		b.pub, b.sub = gc, gc
	}

	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, b.wlog)
	if err != nil {
		return nil, err
	}
	r.AddMiddleware(
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInterval,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			Logger:          b.wlog,
		}.Middleware,
		middleware.Recoverer,
	)
	b.router = r
	return b, nil
}

// Publish marshals v as JSON and publishes it on topic
// the request id on ctx, if any, becomes the correlation id
func (b *Bus) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "bus: marshal payload")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := pnet.RequestID(ctx); id != "" {
		middleware.SetCorrelationID(id, msg)
	}
	msg.SetContext(ctx)
	if err := b.pub.Publish(topic, msg); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "bus: publish %s", topic)
	}
	return nil
}

// Handle registers fn for topic under a unique handler name
// on redis streams every handler reads through its own consumer group,
// so two handlers of one topic each see every message
func (b *Bus) Handle(name, topic string, fn HandlerFunc) {
	sub := b.sub
	if b.newSub != nil {
		s, err := b.newSub(b.cfg.ConsumerGroup + "." + name)
		if err != nil {
			panic("bus: subscriber for " + name + ": " + err.Error())
		}
		b.subs = append(b.subs, s)
		sub = s
	}
	counter := b.metrics.BusHandled
	b.router.AddNoPublisherHandler(name, topic, sub, func(msg *message.Message) error {
		ctx := msg.Context()
		if id := middleware.MessageCorrelationID(msg); id != "" {
			ctx = pnet.WithRequest(ctx, id, "")
		}
		if err := fn(ctx, msg); err != nil {
			counter.WithLabelValues(name, "nack").Inc()
			return err
		}
		counter.WithLabelValues(name, "ack").Inc()
		return nil
	})
}

// Run blocks until ctx is cancelled or the router stops
func (b *Bus) Run(ctx context.Context) error {
	if err := b.router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Running is closed once all handlers are subscribed
func (b *Bus) Running() chan struct{} { return b.router.Running() }

// Close stops the router and the transport
func (b *Bus) Close() error {
	var errs []error
	if err := b.router.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := b.pub.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, s := range b.subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Decode unmarshals a message payload into T
// a malformed payload can never succeed on retry so callers should ack it
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, perr.Wrap(err, perr.ErrorCodeJSON, "bus: decode payload")
	}
	return v, nil
}
