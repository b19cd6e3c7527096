package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	Fetcher   FetcherConfig  `yaml:"fetcher"`
	Documents DocumentConfig `yaml:"documents"`
	Mail      MailConfig     `yaml:"mail"`
	Stats     StatsConfig    `yaml:"stats"`
	TopCache  TopCacheConfig `yaml:"top_cache"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	LockFile  string         `yaml:"lock_file" default:"/tmp/fedmet-refresh.pid"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"fedmet"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" default:"disable"` // disable, require, verify-ca, verify-full
}

// FetcherConfig holds metadata download timeouts
type FetcherConfig struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"10s"`
	TransferTimeout time.Duration `yaml:"transfer_timeout" default:"120s"`
}

// DocumentConfig holds the on-disk metadata document store settings
type DocumentConfig struct {
	Dir string `yaml:"dir" default:"./metadata"`
}

// MailConfig holds SMTP notification settings. An empty Host disables
// email notification entirely.
type MailConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port" default:"25"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	From          string   `yaml:"from"`
	To            []string `yaml:"to"`
	SubjectPrefix string   `yaml:"subject_prefix" default:"[fedmet] Refresh error:"`
}

// StatsConfig holds the feature table recorded once per refresh run.
// Each feature counts entities carrying a descriptor type, optionally
// narrowed to a supported protocol.
type StatsConfig struct {
	Features map[string]FeatureConfig `yaml:"features"`
}

// FeatureConfig defines one counted statistics feature
type FeatureConfig struct {
	Type     string `yaml:"type"`
	Protocol string `yaml:"protocol,omitempty"`
}

// MetricsConfig holds the Pushgateway target for refresh run metrics.
// An empty PushGateway disables pushing.
type MetricsConfig struct {
	PushGateway string `yaml:"push_gateway"`
	Job         string `yaml:"job" default:"fedmet_refresh"`
}

// TopCacheConfig holds the most-federated entities cache policy
type TopCacheConfig struct {
	Size int           `yaml:"size" default:"16"`
	TTL  time.Duration `yaml:"ttl" default:"30m"`
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// DefaultFeatures returns the feature table recorded when the config
// file does not override it.
func DefaultFeatures() map[string]FeatureConfig {
	return map[string]FeatureConfig{
		"sp":        {Type: "SPSSODescriptor"},
		"idp":       {Type: "IDPSSODescriptor"},
		"sp_saml1":  {Type: "SPSSODescriptor", Protocol: "urn:oasis:names:tc:SAML:1.1:protocol"},
		"sp_saml2":  {Type: "SPSSODescriptor", Protocol: "urn:oasis:names:tc:SAML:2.0:protocol"},
		"sp_shib1":  {Type: "SPSSODescriptor", Protocol: "urn:mace:shibboleth:1.0"},
		"idp_saml1": {Type: "IDPSSODescriptor", Protocol: "urn:oasis:names:tc:SAML:1.1:protocol"},
		"idp_saml2": {Type: "IDPSSODescriptor", Protocol: "urn:oasis:names:tc:SAML:2.0:protocol"},
		"idp_shib1": {Type: "IDPSSODescriptor", Protocol: "urn:mace:shibboleth:1.0"},
	}
}
