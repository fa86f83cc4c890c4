package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("events:comms_publisher_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("events:comms_publisher_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestCommsPublisher_PublishDispatched_GranularSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14230)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)

	received := make(chan *DispatchedEvent, 1)
	headers := make(chan comms.Header, 1)
	sub, err := nc.Subscribe("calldef.dispatched.work.updateModel", func(msg *comms.Msg) {
		var event DispatchedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("events:comms_publisher_integration_test - failed to unmarshal: %v", err)
			return
		}
		headers <- msg.Header
		received <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	event := &DispatchedEvent{
		ID:        "evt-1",
		APIType:   "work",
		Operation: "updateModel",
		API:       "api-work-dev",
		Method:    "POST",
		Path:      "update_model_sync/m1",
		IsSuccess: true,
		Timestamp: "2025-01-01T00:00:00Z",
	}

	if err := publisher.PublishDispatched(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishDispatched failed: %v", err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.ID != "evt-1" {
			t.Errorf("events:comms_publisher_integration_test - ID = %q, want %q", got.ID, "evt-1")
		}
		if got.Path != "update_model_sync/m1" {
			t.Errorf("events:comms_publisher_integration_test - Path = %q", got.Path)
		}
		if !got.IsSuccess {
			t.Errorf("events:comms_publisher_integration_test - IsSuccess = false")
		}
		h := <-headers
		if h.Get(MsgIDHeader) != "evt-1" || h.Get(SuccessHeader) != "true" || h.Get(CodeHeader) != "" {
			t.Errorf("events:comms_publisher_integration_test - headers = %v", h)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timeout waiting for granular event")
	}
}

func TestCommsPublisher_PublishDispatched_GlobalSubjectOverride(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: "audit.calls"})

	granularReceived := make(chan bool, 1)
	globalReceived := make(chan *DispatchedEvent, 1)
	globalCode := make(chan string, 1)

	sub1, err := nc.Subscribe("calldef.dispatched.handling.findModel", func(msg *comms.Msg) {
		granularReceived <- true
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - subscribe granular failed: %v", err)
	}
	defer sub1.Unsubscribe()

	sub2, err := nc.Subscribe("audit.calls", func(msg *comms.Msg) {
		var event DispatchedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		globalCode <- msg.Header.Get(CodeHeader)
		globalReceived <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - subscribe global failed: %v", err)
	}
	defer sub2.Unsubscribe()

	event := &DispatchedEvent{
		APIType:   "handling",
		Operation: "findModel",
		ErrorCode: "NO_RESPONSE",
		Timestamp: "2025-02-01T00:00:00Z",
	}
	if err := publisher.PublishDispatched(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishDispatched failed: %v", err)
	}
	nc.Flush()

	select {
	case <-granularReceived:
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timeout waiting for granular event")
	}
	select {
	case got := <-globalReceived:
		if got.ErrorCode != "NO_RESPONSE" {
			t.Errorf("events:comms_publisher_integration_test - ErrorCode = %q", got.ErrorCode)
		}
		if code := <-globalCode; code != "NO_RESPONSE" {
			t.Errorf("events:comms_publisher_integration_test - %s header = %q", CodeHeader, code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timeout waiting for global event")
	}
}

func TestCommsPublisher_ClosedConnection(t *testing.T) {
	nc, cleanup := startTestServer(t, 14232)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)
	nc.Close()

	err := publisher.PublishDispatched(context.Background(), &DispatchedEvent{APIType: "work", Operation: "find"})
	if err == nil {
		t.Error("events:comms_publisher_integration_test - expected error on closed connection")
	}
}
