package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-invoker/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// BaseSubject overrides the refresh subject prefix (e.g. from REFRESH_EVENT_SUBJECT).
	BaseSubject string
}

// CommsPublisher publishes refresh events to COMMS subjects.
type CommsPublisher struct {
	nc          *comms.Conn
	baseSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	base := commsutil.SubjectRefreshEvent
	if opts != nil && opts.BaseSubject != "" {
		base = opts.BaseSubject
	}
	return &CommsPublisher{nc: nc, baseSubject: base}
}

// PublishRefresh publishes a RefreshRequestedEvent to the per-entity-set
// subject and to the base subject.
func (p *CommsPublisher) PublishRefresh(_ context.Context, event *RefreshRequestedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subjects := []string{p.baseSubject}
	if event.EntitySet != "" {
		subjects = append([]string{commsutil.BuildRefreshSubject(p.baseSubject, event.EntitySet)}, subjects...)
	}
	for _, subject := range subjects {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return fmt.Errorf("%s - publish to %s: %w", commsPublisherLogPrefix, subject, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published refresh for %s (%d paths)", commsPublisherLogPrefix, event.Target, len(event.Paths)))
	return nil
}
