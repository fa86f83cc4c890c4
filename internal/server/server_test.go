package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/calldef/internal/config"
	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/db"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/events"
	"github.com/morezero/calldef/pkg/gateway"
	"github.com/morezero/calldef/pkg/registry"
	"github.com/morezero/calldef/pkg/workapi"
)

const serverTestPrefix = "server:server_test"

// fakeJournal collects recorded calls.
type fakeJournal struct {
	mu   sync.Mutex
	recs []*db.CallRecord
	err  error
}

func (j *fakeJournal) RecordCall(_ context.Context, rec *db.CallRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return j.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// recorder captures the requests a transport was handed.
type recorder struct {
	mu    sync.Mutex
	calls []*dispatcher.Request
	reply json.RawMessage
	err   error
}

func (r *recorder) Call(_ context.Context, req *dispatcher.Request) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return r.reply, r.err
}

func testEndpoints(t *testing.T) *gateway.Table {
	t.Helper()
	table, err := gateway.BuildEndpoints(gateway.DefaultSettings(), gateway.Options{BaseURL: "http://gateway.test"})
	require.NoError(t, err, "%s - build endpoints", serverTestPrefix)
	return table
}

type testDeps struct {
	server    *Server
	transport *recorder
	journal   *fakeJournal
	events    *[]*events.DispatchedEvent
}

func newTestServer(t *testing.T, tr *recorder) testDeps {
	t.Helper()
	reg := registry.MustNew(workapi.Entries()...)
	journal := &fakeJournal{}
	var (
		mu        sync.Mutex
		published []*events.DispatchedEvent
	)
	pub := events.PublisherFunc(func(_ context.Context, e *events.DispatchedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
		return nil
	})
	s := New(Params{
		Config: &config.Config{
			GatewayStage:       gateway.StageMaster,
			RequestTimeout:     2 * time.Second,
			HealthCheckTimeout: time.Second,
		},
		Registry:  reg,
		Endpoints: testEndpoints(t),
		Transport: tr,
		Publisher: pub,
		Journal:   journal,
	})
	return testDeps{server: s, transport: tr, journal: journal, events: &published}
}

func rawParams(t *testing.T, m map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out[k] = b
	}
	return out
}

func TestHandleCall_Success(t *testing.T) {
	deps := newTestServer(t, &recorder{reply: json.RawMessage(`{"modelId":"m-1"}`)})

	resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
		ID:        "req-1",
		Operation: "work.updateModel",
		Params:    rawParams(t, map[string]any{"modelId": "m-1", "who": "alice"}),
		Unset:     []string{"extra"},
	})

	require.True(t, resp.Ok, "%s - expected ok, got %+v", serverTestPrefix, resp.Error)
	assert.Equal(t, "req-1", resp.ID)
	assert.JSONEq(t, `{"modelId":"m-1"}`, string(resp.Result.Response))

	require.Len(t, deps.transport.calls, 1)
	call := deps.transport.calls[0]
	assert.Equal(t, "pj1db-api-work", call.API)
	assert.Equal(t, calldef.MethodPost, call.Method)
	assert.Equal(t, "updateModel_sync/m-1", call.Path)
	assert.Equal(t, []string{"extra", "who"}, call.Body.Keys(), "%s - update bodies keep undefined keys", serverTestPrefix)
	extra, _ := call.Body.Get("extra")
	assert.True(t, calldef.IsUndefined(extra))

	require.Len(t, deps.journal.recs, 1)
	rec := deps.journal.recs[0]
	assert.Equal(t, "work.updateModel", rec.Operation)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.True(t, rec.IsSuccess)
	assert.Nil(t, rec.ErrorCode)

	require.Len(t, *deps.events, 1)
	ev := (*deps.events)[0]
	assert.Equal(t, "work", ev.APIType)
	assert.Equal(t, "updateModel", ev.Operation)
	assert.Equal(t, gateway.StageMaster, ev.Stage)
}

func TestHandleCall_StageResolution(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		stage     string
		wantAPI   string
	}{
		{"config default", "work.find", "", "pj1db-api-work"},
		{"request stage", "work.find", "dev", "pj1db-api-work-dev"},
		{"reference stage wins", "work.find@test", "dev", "pj1db-api-work-test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t, &recorder{reply: json.RawMessage(`{}`)})
			resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
				ID:        "r",
				Operation: tt.operation,
				Stage:     tt.stage,
				Params:    rawParams(t, map[string]any{"hierarchy": "model"}),
			})
			require.True(t, resp.Ok, "%s - %+v", serverTestPrefix, resp.Error)
			require.Len(t, deps.transport.calls, 1)
			assert.Equal(t, tt.wantAPI, deps.transport.calls[0].API)
		})
	}
}

func TestHandleCall_ExplicitAPI(t *testing.T) {
	deps := newTestServer(t, &recorder{reply: json.RawMessage(`{}`)})
	resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
		ID:        "r",
		Operation: "work.find",
		API:       "pj1db-api-osaka1",
		Params:    rawParams(t, map[string]any{"hierarchy": "model"}),
	})
	require.True(t, resp.Ok)
	assert.Equal(t, "pj1db-api-osaka1", deps.transport.calls[0].API)
}

func TestHandleCall_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      *dispatcher.CallRequest
		wantCode string
	}{
		{
			name:     "malformed reference",
			req:      &dispatcher.CallRequest{ID: "a", Operation: "noDot"},
			wantCode: CodeInvalidArgument,
		},
		{
			name:     "malformed params",
			req:      &dispatcher.CallRequest{ID: "b", Operation: "work.find", Params: map[string]json.RawMessage{"x": json.RawMessage(`{bad`)}},
			wantCode: CodeInvalidArgument,
		},
		{
			name:     "unknown operation",
			req:      &dispatcher.CallRequest{ID: "c", Operation: "work.nope"},
			wantCode: "UNKNOWN_OPERATION",
		},
		{
			name:     "missing path parameter",
			req:      &dispatcher.CallRequest{ID: "d", Operation: "work.updateModel", Params: map[string]json.RawMessage{"who": json.RawMessage(`"x"`)}},
			wantCode: "MISSING_PATH_PARAMETER",
		},
		{
			name:     "undefined path parameter",
			req:      &dispatcher.CallRequest{ID: "e", Operation: "work.updateModel", Unset: []string{"modelId"}},
			wantCode: "MISSING_PATH_PARAMETER",
		},
		{
			name:     "dot segment path parameter",
			req:      &dispatcher.CallRequest{ID: "f", Operation: "work.delete", Params: map[string]json.RawMessage{"id": json.RawMessage(`".."`)}},
			wantCode: "INVALID_PATH_PARAMETER",
		},
		{
			name:     "empty path parameter",
			req:      &dispatcher.CallRequest{ID: "g", Operation: "work.delete", Params: map[string]json.RawMessage{"id": json.RawMessage(`""`)}},
			wantCode: "INVALID_PATH_PARAMETER",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t, &recorder{})
			resp := deps.server.HandleCall(context.Background(), tt.req)
			assert.False(t, resp.Ok)
			assert.Equal(t, tt.req.ID, resp.ID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.False(t, resp.Error.Retryable)
			assert.Nil(t, resp.Result)
			assert.Empty(t, deps.transport.calls, "%s - transport must not be touched", serverTestPrefix)
			assert.Empty(t, deps.journal.recs)
			assert.Empty(t, *deps.events)
		})
	}
}

func TestHandleCall_TransportFailures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantRetryable bool
	}{
		{"error response", &calldef.ResponseError{Status: 409, Response: json.RawMessage(`{"code":409}`)}, "ERROR_RESPONSE", false},
		{"no response", &calldef.NoResponseError{Message: "timeout"}, "NO_RESPONSE", true},
		{"setup", &calldef.SetupError{Message: "bad url"}, "REQUEST_FAILED", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newTestServer(t, &recorder{err: tt.err})
			resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
				ID:        "f",
				Operation: "work.delete",
				Params:    rawParams(t, map[string]any{"id": "m-1"}),
			})
			assert.False(t, resp.Ok)
			require.NotNil(t, resp.Result)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantRetryable, resp.Error.Retryable)
			assert.Equal(t, tt.wantCode, resp.Result.ErrorInfo.Code)

			require.Len(t, deps.journal.recs, 1)
			require.NotNil(t, deps.journal.recs[0].ErrorCode)
			assert.Equal(t, tt.wantCode, *deps.journal.recs[0].ErrorCode)
			require.Len(t, *deps.events, 1)
			assert.False(t, (*deps.events)[0].IsSuccess)
		})
	}
}

func TestHandleCall_UnresolvableGateway(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	deps.server.endpoints = nil
	resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
		ID:        "g",
		Operation: "work.find",
		Params:    rawParams(t, map[string]any{"hierarchy": "model"}),
	})
	assert.False(t, resp.Ok)
	require.NotNil(t, resp.Result)
	assert.Equal(t, calldef.KindTransportSetup, resp.Result.ErrorInfo.Kind)
	assert.Empty(t, deps.transport.calls)
	assert.Len(t, deps.journal.recs, 1)
}

func TestHandleCall_JournalFailureIsNotFatal(t *testing.T) {
	deps := newTestServer(t, &recorder{reply: json.RawMessage(`[]`)})
	deps.journal.err = errors.New("db down")
	resp := deps.server.HandleCall(context.Background(), &dispatcher.CallRequest{
		ID:        "h",
		Operation: "work.find",
		Params:    rawParams(t, map[string]any{"hierarchy": "class"}),
	})
	assert.True(t, resp.Ok)
	assert.Len(t, *deps.events, 1)
}

func TestHandleRelayMsg_InvalidJSON(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	resp := deps.server.handleRelayMsg(context.Background(), []byte(`not json`))
	assert.False(t, resp.Ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestHandleRelayMsg_ClientTimeout(t *testing.T) {
	var deadline time.Duration
	deps := newTestServer(t, nil)
	deps.server.disp = dispatcher.NewDispatcher(deps.server.reg, dispatcher.TransportFunc(
		func(ctx context.Context, _ *dispatcher.Request) (json.RawMessage, error) {
			d, ok := ctx.Deadline()
			require.True(t, ok)
			deadline = time.Until(d)
			return json.RawMessage(`{}`), nil
		}))

	data, err := json.Marshal(&dispatcher.CallRequest{
		ID:        "t",
		Operation: "work.find",
		Params:    rawParams(t, map[string]any{"hierarchy": "model"}),
		Ctx:       &dispatcher.InvocationContext{TimeoutMs: 100},
	})
	require.NoError(t, err)
	resp := deps.server.handleRelayMsg(context.Background(), data)
	require.True(t, resp.Ok)
	assert.LessOrEqual(t, deadline, 100*time.Millisecond)
}

func TestHealth(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	h := deps.server.Health(context.Background())
	assert.Equal(t, "unhealthy", h.Status, "%s - no COMMS connection", serverTestPrefix)
	assert.False(t, h.Checks.Comms)
	assert.Nil(t, h.Checks.Database)
	assert.Equal(t, deps.server.reg.Len(), h.Operations)

	deps.server.database = fakePinger{err: errors.New("down")}
	h = deps.server.Health(context.Background())
	require.NotNil(t, h.Checks.Database)
	assert.False(t, *h.Checks.Database)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var out HealthOutput
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "unhealthy", out.Status)
}

func TestReadyHandler(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

func TestHandleHome(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "work.updateModel")
	assert.Contains(t, body, "POST updateModel_sync/{modelId}")
	assert.Contains(t, body, "pj1db-api-work-dev")
}

func TestHandleHome_OnlyRoot(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	deps.server.handleHome().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOperationDetail(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	h := deps.server.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operation/work.find", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "find_sync/{hierarchy}")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/operation/work.find", nil)
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var d registry.Description
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	assert.Equal(t, "work.find", d.Name)
	assert.Equal(t, []string{"hierarchy"}, d.PathParams)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operation/work.nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/operation/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestHandleOpenAPI(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	deps.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json?api=work", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var spec map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&spec))
	assert.Equal(t, "3.0.0", spec["openapi"])
	paths, ok := spec["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/updateModel_sync/{modelId}")
}

func TestHandleDocs(t *testing.T) {
	deps := newTestServer(t, &recorder{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	req.Host = "relay.local:8080"
	deps.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	// The URL sits in a script string, where "/" is escaped as "\/".
	assert.Contains(t, rec.Body.String(), `url: "http:\/\/relay.local:8080\/openapi.json"`)
	assert.Contains(t, rec.Body.String(), `id="swagger-ui"`)
}

func TestNewAuth(t *testing.T) {
	var tokenRequests atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	tests := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{"none", &config.Config{}, ""},
		{"static", &config.Config{GatewayAuthToken: "static-token"}, "static-token"},
		{"client credentials win", &config.Config{
			GatewayAuthToken:    "static-token",
			GatewayTokenURL:     tokenSrv.URL,
			GatewayClientID:     "relay",
			GatewayClientSecret: "secret",
		}, "cc-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAuth(tt.cfg).Authorization(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, int32(1), tokenRequests.Load())
}

func TestNewTransport_SendsClientCredentialsToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var gotAuth, gotPath atomic.Value
	gatewaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotPath.Store(r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{}`))
	}))
	defer gatewaySrv.Close()

	endpoints, err := gateway.BuildEndpoints(gateway.DefaultSettings(), gateway.Options{BaseURL: gatewaySrv.URL})
	require.NoError(t, err)
	cfg := &config.Config{
		GatewayTransport: config.TransportHTTP,
		RequestTimeout:   2 * time.Second,
		GatewayTokenURL:  tokenSrv.URL,
		GatewayClientID:  "relay",
	}
	tr, err := NewTransport(cfg, endpoints, nil)
	require.NoError(t, err)

	d := dispatcher.NewDispatcher(nil, tr)
	desc, _ := workapi.Descriptor(workapi.OpDelete)
	res, err := d.Dispatch(context.Background(), "pj1db-api-work", desc, workapi.DeleteParam{ID: "model-1"}.Params())
	require.NoError(t, err)
	assert.True(t, res.IsSuccess, "%s - %v", serverTestPrefix, res.ErrorInfo)
	assert.Equal(t, "cc-token", gotAuth.Load())
	assert.Equal(t, "/pj1db-api-work/master/delete_sync/model-1", gotPath.Load())
}
