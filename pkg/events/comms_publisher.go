package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/calldef/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Message headers set on every dispatched event. MsgIDHeader lets a
// JetStream stream drop redelivered events.
const (
	MsgIDHeader   = comms.MsgIdHdr
	SuccessHeader = "Calldef-Success"
	CodeHeader    = "Calldef-Error-Code"
)

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides the global dispatched subject (DISPATCH_EVENT_SUBJECT).
	GlobalSubject string
}

// CommsPublisher publishes each event twice: on calldef.dispatched.<api>.<operation>
// and on the global subject.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	globalSubject := commsutil.SubjectDispatched
	if opts != nil && opts.GlobalSubject != "" {
		globalSubject = opts.GlobalSubject
	}
	return &CommsPublisher{nc: nc, globalSubject: globalSubject}
}

// PublishDispatched implements EventPublisher.
func (p *CommsPublisher) PublishDispatched(_ context.Context, event *DispatchedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	header := eventHeader(event)

	for _, subject := range []string{commsutil.BuildDispatchedSubject(event.APIType, event.Operation), p.globalSubject} {
		msg := &comms.Msg{Subject: subject, Data: data, Header: header}
		if err := p.nc.PublishMsg(msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published %s for %s.%s", commsPublisherLogPrefix, event.ID, event.APIType, event.Operation))
	return nil
}

func eventHeader(event *DispatchedEvent) comms.Header {
	h := comms.Header{}
	if event.ID != "" {
		h.Set(MsgIDHeader, event.ID)
	}
	h.Set(SuccessHeader, strconv.FormatBool(event.IsSuccess))
	if event.ErrorCode != "" {
		h.Set(CodeHeader, event.ErrorCode)
	}
	return h
}
