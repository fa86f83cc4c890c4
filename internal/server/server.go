// Package server orchestrates all components: NATS client, catalog, registry,
// dispatcher, optional database and the HTTP pages.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/morezero/calldef/internal/config"
	"github.com/morezero/calldef/pkg/catalog"
	"github.com/morezero/calldef/pkg/commsutil"
	"github.com/morezero/calldef/pkg/db"
	"github.com/morezero/calldef/pkg/dispatcher"
	"github.com/morezero/calldef/pkg/events"
	"github.com/morezero/calldef/pkg/gateway"
	"github.com/morezero/calldef/pkg/registry"
	"github.com/morezero/calldef/pkg/transport"
)

const logPrefix = "server:server"

// Journal records dispatched calls.
type Journal interface {
	RecordCall(ctx context.Context, rec *db.CallRecord) error
}

// Pinger checks a dependency for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the calldef relay.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	reg        *registry.Registry
	endpoints  *gateway.Table
	disp       *dispatcher.Dispatcher
	publisher  events.EventPublisher
	journal    Journal
	database   Pinger
	httpServer *http.Server
}

// Params wires a Server. Only Config and Registry are required.
type Params struct {
	Config    *config.Config
	Registry  *registry.Registry
	Endpoints *gateway.Table
	Transport dispatcher.Transport
	Publisher events.EventPublisher
	Journal   Journal
	Database  Pinger
	Conn      *comms.Conn
}

// New creates a Server from already built components.
func New(p Params) *Server {
	publisher := p.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	return &Server{
		cfg:       p.Config,
		nc:        p.Conn,
		reg:       p.Registry,
		endpoints: p.Endpoints,
		disp:      dispatcher.NewDispatcher(p.Registry, p.Transport),
		publisher: publisher,
		journal:   p.Journal,
		database:  p.Database,
	}
}

// SetLogLevel installs the default text logger at the configured level.
func SetLogLevel(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// LoadCatalog loads the configured catalog and checks its version constraint.
func LoadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load catalog: %w", logPrefix, err)
	}
	if err := cat.CheckVersion(cfg.CatalogVersionConstraint); err != nil {
		return nil, err
	}
	return cat, nil
}

// BuildEndpoints builds the gateway table for cat.
func BuildEndpoints(cfg *config.Config, cat *catalog.Catalog) (*gateway.Table, error) {
	return gateway.BuildEndpoints(cat.Settings(), gateway.Options{
		Domain:  cfg.GatewayDomain,
		Region:  cfg.GatewayRegion,
		BaseURL: cfg.GatewayBaseURL,
	})
}

// NewAuth builds the gateway Authorization provider: OAuth2 client
// credentials when GATEWAY_TOKEN_URL is set, then GATEWAY_AUTH_TOKEN, then none.
func NewAuth(cfg *config.Config) transport.AuthProvider {
	switch {
	case cfg.GatewayTokenURL != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.GatewayClientID,
			ClientSecret: cfg.GatewayClientSecret,
			TokenURL:     cfg.GatewayTokenURL,
			Scopes:       cfg.GatewayTokenScopes,
		}
		slog.Info(fmt.Sprintf("%s - Gateway auth: client credentials from %s", logPrefix, cfg.GatewayTokenURL))
		return transport.TokenSourceAuth(cc.TokenSource(context.Background()))
	case cfg.GatewayAuthToken != "":
		return transport.StaticAuth(cfg.GatewayAuthToken)
	}
	return transport.NoAuth()
}

// NewTransport builds the configured gateway transport. nc is required for
// the COMMS transport only.
func NewTransport(cfg *config.Config, endpoints *gateway.Table, nc *comms.Conn) (dispatcher.Transport, error) {
	auth := NewAuth(cfg)
	switch cfg.GatewayTransport {
	case config.TransportComms:
		if nc == nil {
			return nil, fmt.Errorf("%s - COMMS transport needs a connection", logPrefix)
		}
		return transport.NewCommsTransport(nc, cfg.RequestTimeout, auth), nil
	default:
		return transport.NewHTTPTransport(endpoints, transport.WithAuth(auth), transport.WithTimeout(cfg.RequestTimeout)), nil
	}
}

// ServeBridge answers COMMS gateway calls for each of cfg.BridgeAPIs by
// forwarding them over HTTP. A token forwarded by the caller wins over
// GATEWAY_AUTH_TOKEN.
func ServeBridge(cfg *config.Config, endpoints *gateway.Table, nc *comms.Conn) ([]*comms.Subscription, error) {
	if len(cfg.BridgeAPIs) == 0 {
		return nil, nil
	}
	auth := NewAuth(cfg)
	next := transport.NewHTTPTransport(endpoints, transport.WithAuth(transport.ForwardedAuth(auth)), transport.WithTimeout(cfg.RequestTimeout))

	subs := make([]*comms.Subscription, 0, len(cfg.BridgeAPIs))
	for _, api := range cfg.BridgeAPIs {
		if _, ok := endpoints.Endpoint(api); !ok {
			unsubscribeAll(subs)
			return nil, fmt.Errorf("%s - bridge api %q has no gateway endpoint", logPrefix, api)
		}
		sub, err := transport.ServeComms(nc, api, next)
		if err != nil {
			unsubscribeAll(subs)
			return nil, fmt.Errorf("%s - failed to bridge %s: %w", logPrefix, api, err)
		}
		slog.Info(fmt.Sprintf("%s - Bridging COMMS calls for %s", logPrefix, api))
		subs = append(subs, sub)
	}
	return subs, nil
}

func unsubscribeAll(subs []*comms.Subscription) {
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetLogLevel(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting calldef", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Load catalog
	cat, err := LoadCatalog(cfg)
	if err != nil {
		return err
	}

	// Step 2: Connect to database when descriptors or the journal live there
	var (
		pool *pgxpool.Pool
		repo *db.Repository
	)
	if cfg.UsesDatabase() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()
		repo = db.NewRepository(pool)

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if _, err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
			if cfg.DescriptorSource == config.SourceDB {
				if _, err := db.SeedFromCatalog(ctx, pool, cat); err != nil {
					return fmt.Errorf("%s - failed to seed descriptors: %w", logPrefix, err)
				}
			}
		}
	}

	// Step 3: Build registry
	var reg *registry.Registry
	if cfg.DescriptorSource == config.SourceDB {
		reg, err = db.LoadRegistry(ctx, repo)
	} else {
		reg, err = cat.Registry()
	}
	if err != nil {
		return fmt.Errorf("%s - failed to build registry: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Registry holds %d operations (%s)", logPrefix, reg.Len(), cfg.DescriptorSource))

	endpoints, err := BuildEndpoints(cfg, cat)
	if err != nil {
		return fmt.Errorf("%s - failed to build gateway endpoints: %w", logPrefix, err)
	}

	// Step 4: Connect to NATS
	nc, err := commsutil.ConnectWith(commsutil.Options{URL: cfg.COMMSURL, Name: cfg.COMMSName})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	tr, err := NewTransport(cfg, endpoints, nc)
	if err != nil {
		nc.Close()
		return err
	}
	bridges, err := ServeBridge(cfg, endpoints, nc)
	if err != nil {
		nc.Close()
		return err
	}

	params := Params{
		Config:    cfg,
		Registry:  reg,
		Endpoints: endpoints,
		Transport: tr,
		Publisher: events.Multi(
			events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.DispatchEventSubject}),
			events.LogPublisher{},
		),
		Conn:      nc,
	}
	if repo != nil {
		params.Database = repo
		if cfg.JournalEnabled {
			params.Journal = repo
		}
	}
	s := New(params)

	// Step 5: Subscribe to the relay subject
	sub, err := s.Subscribe(ctx, cfg.RelaySubject)
	if err != nil {
		nc.Close()
		return err
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.RelaySubject))

	// Step 6: Start HTTP server
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - calldef is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	unsubscribeAll(bridges)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	nc.Drain()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
