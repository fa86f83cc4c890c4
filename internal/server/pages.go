package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/morezero/calldef/pkg/calldef"
	"github.com/morezero/calldef/pkg/registry"
)

const pagesLogPrefix = "server:pages"

// Handler returns the HTTP routes of the relay.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/operation/", s.handleOperationDetail())
	mux.HandleFunc("/openapi.json", s.handleOpenAPI())
	mux.HandleFunc("/docs", s.handleDocs())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCtx, cancel := context.WithTimeout(r.Context(), s.healthTimeout())
		defer cancel()
		h := s.Health(healthCtx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux
}

func (s *Server) healthTimeout() time.Duration {
	if s.cfg != nil && s.cfg.HealthCheckTimeout > 0 {
		return s.cfg.HealthCheckTimeout
	}
	return 5 * time.Second
}

// homePageTemplate is the HTML for the home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>calldef</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
    code { font-size: 0.85rem; }
  </style>
</head>
<body>
  <h1>calldef</h1>
  <p class="meta">Relay health, gateway endpoints and registered operations. <a href="/docs">API docs</a></p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>COMMS: {{if .Health.Checks.Comms}}<span class="stat">OK</span>{{else}}<span class="error">Disconnected</span>{{end}}</p>
    {{with .Health.Checks.Database}}<p>Database: {{if .}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>{{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Gateways</h2>
    {{if not .Endpoints}}
    <p>No gateway endpoints configured.</p>
    {{else}}
    <table>
      <thead><tr><th>API</th><th>Type</th><th>URL</th></tr></thead>
      <tbody>
        {{range .Endpoints}}<tr><td>{{.Name}}</td><td>{{.Type}}</td><td><code>{{.URL}}</code></td></tr>{{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Operations</h2>
    <p>Total operations: <span class="stat">{{.Discover.Pagination.Total}}</span></p>
    {{if not .Discover.Operations}}
    <p>No operations registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Operation</th><th>Route</th><th>Query</th><th>Body</th><th>Omit undefined</th></tr>
      </thead>
      <tbody>
        {{range .Discover.Operations}}
        <tr>
          <td><a href="/operation/{{.Name}}">{{.Name}}</a></td>
          <td><code>{{.Route}}</code></td>
          <td>{{range .QueryParams}}{{.}} {{end}}</td>
          <td>{{if eq .BodyMode "complement"}}<em>everything else</em>{{else}}{{range .BodyParams}}{{.}} {{end}}{{end}}</td>
          <td>{{.OmitKeyWhenValueUndefined}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>
</body>
</html>
`

// operationDetailPageTemplate is the HTML for a single operation.
const operationDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Name}} – calldef</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; width: 220px; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to operations</a></p>
  <h1>{{.Name}}</h1>
  {{if .Description}}<p class="meta">{{.Description}}</p>{{end}}

  <section>
    <h2>Descriptor</h2>
    <table>
      <tr><th>API type</th><td>{{.API}}</td></tr>
      <tr><th>Route</th><td><code>{{.Route}}</code></td></tr>
      <tr><th>Path parameters</th><td>{{range .PathParams}}{{.}} {{end}}</td></tr>
      <tr><th>Query parameters</th><td>{{if .QueryParams}}{{range .QueryParams}}{{.}} {{end}}{{else}}none{{end}}</td></tr>
      <tr><th>Body</th><td>{{if eq .BodyMode "complement"}}every parameter not in the path or query{{else}}{{range .BodyParams}}{{.}} {{end}}{{end}}</td></tr>
      <tr><th>Omit undefined values</th><td>{{.OmitKeyWhenValueUndefined}}</td></tr>
    </table>
  </section>

  <section>
    <h2>JSON</h2>
    <pre>{{json .}}</pre>
  </section>
</body>
</html>
`

// swaggerUIPage is the HTML that embeds Swagger UI from CDN and loads the OpenAPI document.
const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>API – calldef</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        presets: [
          SwaggerUIBundle.presets.apis,
          SwaggerUIBundle.SwaggerUIStandalonePreset
        ]
      });
    };
  </script>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health    *HealthOutput
	Endpoints []endpointRow
	Discover  *registry.DiscoverOutput
}

type endpointRow struct {
	Name, Type, URL string
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout())
		defer cancel()

		data := homeData{
			Health:   s.Health(ctx),
			Discover: s.reg.Discover(&registry.DiscoverInput{Limit: 500}),
		}
		if s.endpoints != nil {
			for _, name := range s.endpoints.Names() {
				e, _ := s.endpoints.Endpoint(name)
				data.Endpoints = append(data.Endpoints, endpointRow{Name: e.Name, Type: e.Type, URL: e.URL})
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleOperationDetail serves /operation/<name> as HTML, or as JSON when
// the client asks for application/json.
func (s *Server) handleOperationDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("operationDetail").Funcs(template.FuncMap{
		"json": func(v interface{}) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("%v", v)
			}
			return string(b)
		},
	}).Parse(operationDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/operation/")
		if name == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}

		d, err := s.reg.Describe(name)
		if err != nil {
			if calldef.KindOf(err) == calldef.KindUnknownOperation {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if strings.Contains(r.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(d)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, d); err != nil {
			slog.Error(fmt.Sprintf("%s - operation detail template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// handleOpenAPI serves the OpenAPI document, optionally for one API type (?api=work).
func (s *Server) handleOpenAPI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ops := s.reg.DescribeAll()
		title := "calldef"
		if api := r.URL.Query().Get("api"); api != "" {
			var filtered []registry.Description
			for _, d := range ops {
				if d.API == api {
					filtered = append(filtered, d)
				}
			}
			ops = filtered
			title = "calldef " + api
		}
		spec := buildOpenAPISpec(title, "1.0.0", ops)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=60")
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			slog.Error(fmt.Sprintf("%s - openapi json encode: %v", pagesLogPrefix, err))
		}
	}
}

// handleDocs serves Swagger UI pointed at /openapi.json.
func (s *Server) handleDocs() http.HandlerFunc {
	tmpl := template.Must(template.New("swagger").Parse(swaggerUIPage))
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		specURL := scheme + "://" + r.Host + "/openapi.json"
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, map[string]string{"SpecURL": specURL}); err != nil {
			slog.Error(fmt.Sprintf("%s - docs template execute: %v", pagesLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
