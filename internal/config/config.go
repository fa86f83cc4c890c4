// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Descriptor sources.
const (
	SourceCatalog = "catalog"
	SourceDB      = "db"
)

// Gateway transports.
const (
	TransportHTTP  = "http"
	TransportComms = "comms"
)

// Config holds calldef configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"calldef"`

	// Subjects
	RelaySubject         string `envconfig:"RELAY_SUBJECT" default:"calldef.relay.v1"`
	DispatchEventSubject string `envconfig:"DISPATCH_EVENT_SUBJECT" default:"calldef.dispatched"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Catalog
	CatalogFile              string `envconfig:"CATALOG_FILE"`
	CatalogVersionConstraint string `envconfig:"CATALOG_VERSION_CONSTRAINT"`
	DescriptorSource         string `envconfig:"DESCRIPTOR_SOURCE" default:"catalog"`

	// Gateway
	GatewayDomain    string `envconfig:"GATEWAY_DOMAIN" default:"robocip.net"`
	GatewayRegion    string `envconfig:"GATEWAY_REGION" default:"ap-northeast-1"`
	GatewayStage     string `envconfig:"GATEWAY_STAGE" default:"master"`
	GatewayBaseURL   string `envconfig:"GATEWAY_BASE_URL"`
	GatewayAuthToken string `envconfig:"GATEWAY_AUTH_TOKEN"`
	GatewayTransport string `envconfig:"GATEWAY_TRANSPORT" default:"http"`
	// OAuth2 client credentials; when GATEWAY_TOKEN_URL is set they replace GATEWAY_AUTH_TOKEN.
	GatewayTokenURL     string   `envconfig:"GATEWAY_TOKEN_URL"`
	GatewayClientID     string   `envconfig:"GATEWAY_CLIENT_ID"`
	GatewayClientSecret string   `envconfig:"GATEWAY_CLIENT_SECRET"`
	GatewayTokenScopes  []string `envconfig:"GATEWAY_TOKEN_SCOPES"`
	// BridgeAPIs are gateway API names this process answers COMMS calls for over HTTP.
	BridgeAPIs []string `envconfig:"GATEWAY_BRIDGE_APIS"`

	// Database (optional unless DESCRIPTOR_SOURCE=db or JOURNAL_ENABLED)
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"migrations"`
	JournalEnabled bool   `envconfig:"JOURNAL_ENABLED" default:"false"`

	// HTTP endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UsesDatabase reports whether serving needs a database connection.
func (c *Config) UsesDatabase() bool {
	return c.DescriptorSource == SourceDB || c.JournalEnabled
}

// ListenAddr returns HTTP_ADDR, or ":<HTTP_PORT>" when unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the relay server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RelaySubject == "" {
		return fmt.Errorf("%s - RELAY_SUBJECT is required", logPrefix)
	}
	switch c.DescriptorSource {
	case SourceCatalog, SourceDB:
	default:
		return fmt.Errorf("%s - DESCRIPTOR_SOURCE must be %q or %q, got %q", logPrefix, SourceCatalog, SourceDB, c.DescriptorSource)
	}
	switch c.GatewayTransport {
	case TransportHTTP, TransportComms:
	default:
		return fmt.Errorf("%s - GATEWAY_TRANSPORT must be %q or %q, got %q", logPrefix, TransportHTTP, TransportComms, c.GatewayTransport)
	}
	if c.GatewayTokenURL != "" && c.GatewayClientID == "" {
		return fmt.Errorf("%s - GATEWAY_CLIENT_ID is required with GATEWAY_TOKEN_URL", logPrefix)
	}
	if c.UsesDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required when DESCRIPTOR_SOURCE=db or JOURNAL_ENABLED", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
