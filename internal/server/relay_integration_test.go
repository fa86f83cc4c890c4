package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/calldef/internal/config"
	"github.com/morezero/calldef/pkg/catalog"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/events"
	"github.com/morezero/calldef/pkg/gateway"
)

func startRelayTestServer(t *testing.T, port int) *comms.Conn {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err, "%s - failed to create server", serverTestPrefix)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestRelay_RequestReply(t *testing.T) {
	nc := startRelayTestServer(t, 14320)

	deps := newTestServer(t, &recorder{reply: json.RawMessage(`{"items":{}}`)})
	deps.server.nc = nc
	deps.server.publisher = events.NewCommsPublisher(nc, nil)

	dispatched := make(chan *comms.Msg, 4)
	evSub, err := nc.ChanSubscribe("calldef.dispatched", dispatched)
	require.NoError(t, err)
	defer evSub.Unsubscribe()

	sub, err := deps.server.Subscribe(context.Background(), "calldef.relay.test")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	data, err := json.Marshal(&dispatcher.CallRequest{
		ID:        "nats-1",
		Operation: "work.find@dev",
		Params:    rawParams(t, map[string]any{"hierarchy": "model", "limit": 5}),
	})
	require.NoError(t, err)

	msg, err := nc.Request("calldef.relay.test", data, 5*time.Second)
	require.NoError(t, err, "%s - relay request", serverTestPrefix)

	var resp dispatcher.CallResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, "nats-1", resp.ID)
	assert.JSONEq(t, `{"items":{}}`, string(resp.Result.Response))

	require.Len(t, deps.transport.calls, 1)
	call := deps.transport.calls[0]
	assert.Equal(t, "pj1db-api-work-dev", call.API)
	assert.Equal(t, []string{"limit"}, call.Query.Keys())

	select {
	case m := <-dispatched:
		var ev events.DispatchedEvent
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		assert.Equal(t, "find", ev.Operation)
		assert.Equal(t, "dev", ev.Stage)
		assert.True(t, ev.IsSuccess)
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - no dispatched event", serverTestPrefix)
	}

	h := deps.server.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.Checks.Comms)
}

func TestRelay_InvalidPayload(t *testing.T) {
	nc := startRelayTestServer(t, 14321)

	deps := newTestServer(t, &recorder{})
	deps.server.nc = nc
	sub, err := deps.server.Subscribe(context.Background(), "calldef.relay.bad")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := nc.Request("calldef.relay.bad", []byte(`{`), 5*time.Second)
	require.NoError(t, err)

	var resp dispatcher.CallResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.False(t, resp.Ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
	assert.Empty(t, deps.transport.calls)
}

func TestRelay_CommsBridgeToHTTPGateway(t *testing.T) {
	nc := startRelayTestServer(t, 14322)

	type seen struct {
		method, path, query, auth string
		body                      map[string]any
	}
	got := make(chan seen, 1)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		json.NewDecoder(r.Body).Decode(&s.body)
		got <- s
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer gw.Close()

	cfg := &config.Config{
		GatewayStage:     gateway.StageMaster,
		GatewayBaseURL:   gw.URL,
		GatewayAuthToken: "relay-token",
		GatewayTransport: config.TransportComms,
		RequestTimeout:   5 * time.Second,
		BridgeAPIs:       []string{"pj1db-api-work-dev"},
	}
	endpoints, err := BuildEndpoints(cfg, catalog.Builtin())
	require.NoError(t, err)

	bridges, err := ServeBridge(cfg, endpoints, nc)
	require.NoError(t, err)
	defer unsubscribeAll(bridges)

	tr, err := NewTransport(cfg, endpoints, nc)
	require.NoError(t, err)
	reg, err := catalog.Builtin().Registry()
	require.NoError(t, err)
	s := New(Params{Config: cfg, Registry: reg, Endpoints: endpoints, Transport: tr, Conn: nc})

	resp := s.HandleCall(context.Background(), &dispatcher.CallRequest{
		ID:        "bridge-1",
		Operation: "work.find@dev",
		Params:    rawParams(t, map[string]any{"hierarchy": "model", "limit": 2, "queryAttr": map[string]any{"name": "box"}}),
	})
	require.True(t, resp.Ok, "%s - %+v", serverTestPrefix, resp.Error)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result.Response))

	select {
	case s := <-got:
		assert.Equal(t, http.MethodPost, s.method)
		assert.Equal(t, "/pj1db-api-work/dev/find_sync/model", s.path)
		assert.Equal(t, "limit=2", s.query)
		assert.Equal(t, "relay-token", s.auth)
		assert.Equal(t, map[string]any{"queryAttr": map[string]any{"name": "box"}}, s.body)
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - gateway was not called", serverTestPrefix)
	}
}

func TestServeBridge_UnknownAPI(t *testing.T) {
	nc := startRelayTestServer(t, 14323)
	cfg := &config.Config{BridgeAPIs: []string{"no-such-api"}, RequestTimeout: time.Second}
	endpoints, err := BuildEndpoints(cfg, catalog.Builtin())
	require.NoError(t, err)
	_, err = ServeBridge(cfg, endpoints, nc)
	assert.Error(t, err)
}
