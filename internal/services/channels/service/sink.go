package service

import (
	"context"

	"turnstile/internal/platform/bus"
	turns "turnstile/internal/services/turns/domain"
)

// Sink is where normalized candidate facts go
type Sink interface {
	Message(ctx context.Context, evt turns.MessageBuffered) error
	Activity(ctx context.Context, evt turns.ActivitySignal) error
}

// BusSink publishes facts for the aggregator workers
type BusSink struct{ Pub bus.Publisher }

// Message publishes message.buffered
func (s BusSink) Message(ctx context.Context, evt turns.MessageBuffered) error {
	return s.Pub.Publish(ctx, turns.TopicMessageBuffered, evt)
}

// Activity publishes activity.signal
func (s BusSink) Activity(ctx context.Context, evt turns.ActivitySignal) error {
	return s.Pub.Publish(ctx, turns.TopicActivitySignal, evt)
}

// DirectSink calls the aggregator in process
type DirectSink struct {
	Buffer turns.BufferPort
	Armer  turns.ActivityPort
}

// Message appends to the buffer store
func (s DirectSink) Message(ctx context.Context, evt turns.MessageBuffered) error {
	_, err := s.Buffer.Append(ctx, evt.Message())
	return err
}

// Activity arms the key
func (s DirectSink) Activity(ctx context.Context, evt turns.ActivitySignal) error {
	_, err := s.Armer.OnActivity(ctx, evt.Signal())
	return err
}
