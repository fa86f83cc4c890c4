package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/gateway"
)

const logPrefix = "transport:http"

const maxResponseBytes = 16 << 20

// EndpointResolver finds the gateway serving an API display name.
type EndpointResolver interface {
	Endpoint(name string) (gateway.Endpoint, bool)
}

// HTTPTransport calls gateway endpoints over HTTP.
type HTTPTransport struct {
	endpoints EndpointResolver
	client    *http.Client
	auth      AuthProvider
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithAuth sets the Authorization header provider.
func WithAuth(a AuthProvider) HTTPOption {
	return func(t *HTTPTransport) { t.auth = a }
}

// WithTimeout sets the client timeout on a copy of the current client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		c := *t.client
		c.Timeout = d
		t.client = &c
	}
}

// NewHTTPTransport creates an HTTPTransport resolving APIs through endpoints.
func NewHTTPTransport(endpoints EndpointResolver, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoints: endpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
		auth:      NoAuth(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call implements dispatcher.Transport.
func (t *HTTPTransport) Call(ctx context.Context, req *dispatcher.Request) (json.RawMessage, error) {
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &calldef.NoResponseError{Message: "no response from gateway", Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &calldef.NoResponseError{Message: "reading gateway response", Cause: err}
	}
	slog.Debug(fmt.Sprintf("%s - %s %s -> %d in %s", logPrefix, httpReq.Method, httpReq.URL.Redacted(), resp.StatusCode, time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &calldef.ResponseError{
			Status:   resp.StatusCode,
			Message:  fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
			Response: asJSON(data),
		}
	}
	return asJSON(data), nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *dispatcher.Request) (*http.Request, error) {
	if t.endpoints == nil {
		return nil, &calldef.SetupError{Message: "no gateway endpoints configured"}
	}
	if req.API == "" {
		return nil, &calldef.SetupError{Message: "no api name given"}
	}
	ep, ok := t.endpoints.Endpoint(req.API)
	if !ok {
		return nil, &calldef.SetupError{Message: fmt.Sprintf("unknown api %q", req.API)}
	}

	u, err := BuildURL(ep.URL, req.Segments(), req.Query)
	if err != nil {
		return nil, &calldef.SetupError{Message: "building request url", Cause: err}
	}

	var body io.Reader
	if req.Body != calldef.NoFields {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &calldef.SetupError{Message: "encoding request body", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), u, body)
	if err != nil {
		return nil, &calldef.SetupError{Message: "creating request", Cause: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, err := authorization(ctx, t.auth)
	if err != nil {
		return nil, &calldef.SetupError{Message: "acquiring authorization", Cause: err}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", token)
	}
	return httpReq, nil
}

// BuildURL joins an endpoint URL, path segments escaped one by one, and the
// encoded query group. A "/" inside a segment is escaped, so a segment never
// adds path levels; empty and dot segments are rejected.
func BuildURL(endpoint string, segments []string, query *calldef.Fields) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		if !calldef.ValidSegment(s) {
			return "", fmt.Errorf("%s - invalid path segment %q", logPrefix, s)
		}
		escaped = append(escaped, url.PathEscape(s))
	}
	base.RawQuery = ""
	out := strings.TrimSuffix(base.String(), "/")
	if len(escaped) > 0 {
		out += "/" + strings.Join(escaped, "/")
	}

	q, err := query.URLValues()
	if err != nil {
		return "", err
	}
	if len(q) > 0 {
		out += "?" + q.Encode()
	}
	return out, nil
}

// asJSON returns data unchanged when it is JSON, and as a JSON string
// otherwise. Empty data yields nil.
func asJSON(data []byte) json.RawMessage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return json.RawMessage(quoted)
}
