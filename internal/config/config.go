// Package config provides the gateway process configuration: the listening
// addresses for the admin, metrics and readiness HTTP surfaces, where the
// local-file config sync reads its snapshot from, and the handful of
// process-wide settings (AWS region for backend auth, log level, dev mode)
// that apply to every bind rather than to any one of them.
//
// Per-bind/listener/route/backend/policy configuration is not part of this
// struct: that tree lives in internal/domain/store and arrives either via
// the local-file sync (internal/adapter/outbound/localconfig) or a future
// xDS ingest client, never via this process-level file.
package config

import "os"

// GatewayConfig is the top-level process configuration for the gateway.
type GatewayConfig struct {
	// Admin configures the admin HTTP surface (/config_dump, /quitquitquit,
	// /logging, /).
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Metrics configures the Prometheus /metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Readiness configures the liveness/readiness probe endpoint.
	Readiness ReadinessConfig `yaml:"readiness" mapstructure:"readiness"`

	// LocalConfigPath points the local-file-sync loader at a YAML/JSON
	// snapshot of binds/listeners/routes/backends/policies. Empty disables
	// local-file sync (expected to be set when no xDS control plane is
	// configured). Overridable via the LOCAL_XDS_PATH environment variable
	// for parity with the path that variable already documented.
	LocalConfigPath string `yaml:"local_config_path" mapstructure:"local_config_path"`

	// DiscoveryDBPath points the sqlite-backed discovery/config-dump
	// persistence at a file. Empty disables durable snapshot persistence
	// (the in-memory store still works, it just starts empty on restart).
	DiscoveryDBPath string `yaml:"discovery_db_path" mapstructure:"discovery_db_path"`

	// AWSRegion is passed to the AWS SigV4 backend-auth signer.
	AWSRegion string `yaml:"aws_region" mapstructure:"aws_region"`

	// TLS configures where bindrt's CertResolver and WorkloadIdentity
	// implementations load certificate material from.
	TLS TLSConfig `yaml:"tls" mapstructure:"tls"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn" (or "warning"), "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode is parsed from the config file and environment, but nothing
	// in the gateway reads it: it changes no default and no behaviour.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// AdminConfig configures the admin HTTP listener.
type AdminConfig struct {
	// Addr is the address the admin surface listens on.
	// Defaults to "127.0.0.1:15000".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// APIKeyHash is an argon2id hash of the key admin clients must present
	// in X-Admin-Api-Key. Generate one with `sentinel-gate hash-admin-key`.
	// Empty leaves the admin surface unauthenticated at the application
	// layer, relying on Addr's bind address (127.0.0.1 by default) for
	// isolation instead.
	APIKeyHash string `yaml:"api_key_hash" mapstructure:"api_key_hash"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	// Addr is the address the /metrics endpoint listens on.
	// Defaults to "127.0.0.1:15020".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// ReadinessConfig configures the readiness probe listener.
type ReadinessConfig struct {
	// Addr is the address the readiness endpoint listens on.
	// Defaults to "127.0.0.1:15021".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// TLSConfig points bindrt's certificate resolution at files on disk.
type TLSConfig struct {
	// CertDir is a directory of <ref>.crt/<ref>.key pairs that
	// certstore.FileResolver resolves store.TLSConfig.CertRef values
	// against. Empty disables TLS-terminating binds (cleartext/TCP binds
	// are unaffected).
	CertDir string `yaml:"cert_dir" mapstructure:"cert_dir"`

	// WorkloadCert and WorkloadKey are this gateway's own mTLS identity,
	// presented when terminating an inbound HBONE tunnel. Both must be set
	// together for HBONE binds to accept connections.
	WorkloadCert string `yaml:"workload_cert" mapstructure:"workload_cert"`
	WorkloadKey  string `yaml:"workload_key" mapstructure:"workload_key"`

	// AcceptedPeerIdentities is the SPIFFE SAN allowlist for peers opening
	// an HBONE tunnel to this gateway. Empty skips the SAN check: any peer
	// presenting a client certificate is accepted.
	AcceptedPeerIdentities []string `yaml:"accepted_peer_identities" mapstructure:"accepted_peer_identities"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *GatewayConfig) SetDefaults() {
	if c.Admin.Addr == "" {
		c.Admin.Addr = "127.0.0.1:15000"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:15020"
	}
	if c.Readiness.Addr == "" {
		c.Readiness.Addr = "127.0.0.1:15021"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LocalConfigPath == "" {
		c.LocalConfigPath = os.Getenv("LOCAL_XDS_PATH")
	}
	if c.AWSRegion == "" {
		c.AWSRegion = os.Getenv("AWS_REGION")
	}
}
