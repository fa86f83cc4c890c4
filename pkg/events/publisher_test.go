package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/dispatcher"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishDispatched(context.Background(), &DispatchedEvent{
		APIType:   "work",
		Operation: "find",
	})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestPublisherFunc(t *testing.T) {
	var captured *DispatchedEvent

	pub := PublisherFunc(func(_ context.Context, event *DispatchedEvent) error {
		captured = event
		return nil
	})

	event := &DispatchedEvent{
		APIType:   "work",
		Operation: "updateModel",
		Method:    "POST",
		Path:      "update_model_sync/m1",
		IsSuccess: true,
	}

	if err := pub.PublishDispatched(context.Background(), event); err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.Path != "update_model_sync/m1" {
		t.Errorf("events:publisher_test - expected path update_model_sync/m1, got %s", captured.Path)
	}
}

func TestMulti(t *testing.T) {
	var order []string
	record := func(name string, err error) EventPublisher {
		return PublisherFunc(func(context.Context, *DispatchedEvent) error {
			order = append(order, name)
			return err
		})
	}
	boom := errors.New("boom")

	pub := Multi(record("a", nil), nil, record("b", boom), LogPublisher{}, record("c", nil))
	err := pub.PublishDispatched(context.Background(), &DispatchedEvent{APIType: "work", Operation: "find"})
	if !errors.Is(err, boom) {
		t.Errorf("events:publisher_test - Multi error = %v, want boom", err)
	}
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("events:publisher_test - publish order = %v", order)
	}

	if err := Multi().PublishDispatched(context.Background(), &DispatchedEvent{}); err != nil {
		t.Errorf("events:publisher_test - empty Multi returned %v", err)
	}
}

func TestNewDispatchedEvent(t *testing.T) {
	at := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	req := &dispatcher.Request{API: "api-work-dev", Method: calldef.MethodPost, Path: "delete_sync/m1"}
	res := dispatcher.Failure(dispatcher.Classify(&calldef.ResponseError{
		Status: 404, Response: json.RawMessage(`{"code":404}`),
	}), at)

	e := NewDispatchedEvent("work", "delete", "dev", req, res, 1500*time.Millisecond)
	if e.ID == "" {
		t.Error("events:publisher_test - expected an event id")
	}
	if e.API != "api-work-dev" || e.Method != "POST" || e.Path != "delete_sync/m1" {
		t.Errorf("events:publisher_test - request fields = %+v", e)
	}
	if e.IsSuccess || e.ErrorCode != "ERROR_RESPONSE" || e.Status != 404 {
		t.Errorf("events:publisher_test - outcome fields = %+v", e)
	}
	if e.DurationMs != 1500 {
		t.Errorf("events:publisher_test - DurationMs = %d, want 1500", e.DurationMs)
	}
	if e.Timestamp != "2025-01-01T09:00:00Z" {
		t.Errorf("events:publisher_test - Timestamp = %q", e.Timestamp)
	}

	bare := NewDispatchedEvent("work", "find", "", nil, nil, 0)
	if bare.API != "" || bare.IsSuccess || bare.Timestamp == "" {
		t.Errorf("events:publisher_test - bare event = %+v", bare)
	}
}

func TestEventHeader(t *testing.T) {
	h := eventHeader(&DispatchedEvent{ID: "evt-9", ErrorCode: "ERROR_RESPONSE"})
	if h.Get(MsgIDHeader) != "evt-9" || h.Get(SuccessHeader) != "false" || h.Get(CodeHeader) != "ERROR_RESPONSE" {
		t.Errorf("events:publisher_test - header = %v", h)
	}
	if h := eventHeader(&DispatchedEvent{IsSuccess: true}); h.Get(MsgIDHeader) != "" || h.Get(CodeHeader) != "" {
		t.Errorf("events:publisher_test - header of bare event = %v", h)
	}
}
