package events

import "context"

// EventPublisher is the interface for publishing refresh events.
type EventPublisher interface {
	PublishRefresh(ctx context.Context, event *RefreshRequestedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishRefresh is a no-op.
func (p *NoOpPublisher) PublishRefresh(_ context.Context, _ *RefreshRequestedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RefreshRequestedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RefreshRequestedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRefresh calls the callback.
func (p *CallbackPublisher) PublishRefresh(ctx context.Context, event *RefreshRequestedEvent) error {
	return p.callback(ctx, event)
}
