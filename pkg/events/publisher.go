package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const publisherLogPrefix = "events:publisher"

// EventPublisher publishes dispatched-call events.
type EventPublisher interface {
	PublishDispatched(ctx context.Context, event *DispatchedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishDispatched is a no-op.
func (p *NoOpPublisher) PublishDispatched(_ context.Context, _ *DispatchedEvent) error {
	return nil
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, event *DispatchedEvent) error

// PublishDispatched calls f.
func (f PublisherFunc) PublishDispatched(ctx context.Context, event *DispatchedEvent) error {
	return f(ctx, event)
}

// LogPublisher writes each event to the default logger at debug level.
type LogPublisher struct{}

// PublishDispatched logs event.
func (LogPublisher) PublishDispatched(_ context.Context, e *DispatchedEvent) error {
	outcome := "ok"
	if !e.IsSuccess {
		outcome = e.ErrorCode
	}
	slog.Debug(fmt.Sprintf("%s - %s.%s@%s %s %s -> %s in %dms",
		publisherLogPrefix, e.APIType, e.Operation, e.Stage, e.Method, e.Path, outcome, e.DurationMs))
	return nil
}

// Multi publishes every event to each of pubs, in order. All publishers
// run even when one fails; the errors are joined.
func Multi(pubs ...EventPublisher) EventPublisher {
	return PublisherFunc(func(ctx context.Context, event *DispatchedEvent) error {
		var errs []error
		for _, p := range pubs {
			if p == nil {
				continue
			}
			if err := p.PublishDispatched(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
