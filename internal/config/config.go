package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents proxy configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// The two backend game servers
	Backends BackendsConfig `yaml:"backends"`

	// Protocol version advertised to clients
	Protocol ProtocolConfig `yaml:"protocol"`

	// Online-mode authentication
	Auth AuthConfig `yaml:"auth"`

	// Server list (status) response
	Status StatusConfig `yaml:"status"`

	// Default player list header and footer
	TabList TabListConfig `yaml:"tab_list"`

	// Redis configuration (optional)
	Redis RedisConfig `yaml:"redis"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Identity remapping: login name -> alternate identity
	Remap []RemapEntry `yaml:"remap"`

	// Player data synchronisation between backend worlds
	Sync SyncConfig `yaml:"sync"`

	// Tracing configuration
	Tracing TracingConfig `yaml:"tracing"`

	// Graceful shutdown timeout
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	// Listen address for game clients
	ListenAddr string `yaml:"listen_addr"`

	// Port of the admin/metrics HTTP server
	HealthCheckPort int `yaml:"health_check_port"`

	// Maximum concurrent client connections
	MaxConnections int `yaml:"max_connections"`

	// Deadline for a single write to a client or backend
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Time allowed to finish handshake and login
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

// BackendsConfig describes the two backends and switching behaviour
type BackendsConfig struct {
	Primary   BackendConfig `yaml:"primary"`
	Secondary BackendConfig `yaml:"secondary"`

	// Name of the backend used when a player has no last-used backend
	Default string `yaml:"default"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// Pause between closing the old backend and syncing player data, so the old
	// server can flush the player file. Heuristic.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// Circuit breaker guarding backend dials
	BreakerMaxFailures int64         `yaml:"breaker_max_failures"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`

	// Optional Consul lookup of backend addresses
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DiscoveryConfig resolves backend addresses from Consul. Instances carry the
// backend name in their "backend" service meta.
type DiscoveryConfig struct {
	ConsulAddress   string        `yaml:"consul_address"`
	Service         string        `yaml:"service"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Enabled reports whether a Consul agent is configured
func (d *DiscoveryConfig) Enabled() bool {
	return d.ConsulAddress != ""
}

// BackendConfig is one backend game server
type BackendConfig struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`

	// Server directory containing world/playerdata, used by player data sync
	ServerDir string `yaml:"server_dir"`
}

// All returns both backends in a fixed order
func (b *BackendsConfig) All() []BackendConfig {
	return []BackendConfig{b.Primary, b.Secondary}
}

// Lookup finds a backend by name
func (b *BackendsConfig) Lookup(name string) (BackendConfig, bool) {
	for _, be := range b.All() {
		if be.Name == name {
			return be, true
		}
	}
	return BackendConfig{}, false
}

// ProtocolConfig represents protocol configuration
type ProtocolConfig struct {
	Version     int    `yaml:"version"`
	VersionName string `yaml:"version_name"`

	// CFB-8 implementation: "library" or "manual"
	Cipher string `yaml:"cipher"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	// Verify players against the session service and encrypt the client link (default true)
	OnlineMode *bool `yaml:"online_mode"`

	// Base URL of the session service
	SessionServer string `yaml:"session_server"`

	// Do not send the client ip for loopback/private addresses (default true)
	OmitPrivateIP *bool `yaml:"omit_private_ip"`

	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// IsOnlineMode reports whether online-mode authentication is enabled
func (a *AuthConfig) IsOnlineMode() bool {
	return a.OnlineMode == nil || *a.OnlineMode
}

// ShouldOmitPrivateIP reports whether private client addresses are left out of session checks
func (a *AuthConfig) ShouldOmitPrivateIP() bool {
	return a.OmitPrivateIP == nil || *a.OmitPrivateIP
}

// StatusConfig represents the server list response
type StatusConfig struct {
	MaxPlayers int    `yaml:"max_players"`
	MOTD       string `yaml:"motd"`

	// Path to a 64x64 PNG shown in the server list
	FaviconPath string `yaml:"favicon_path"`

	// Maximum number of players listed in the hover sample
	SampleSize int `yaml:"sample_size"`

	EnforcesSecureChat *bool `yaml:"enforces_secure_chat"`
}

// SecureChat reports the advertised secure chat flag (default true)
func (s *StatusConfig) SecureChat() bool {
	return s.EnforcesSecureChat == nil || *s.EnforcesSecureChat
}

// TabListConfig holds fallback player list texts
type TabListConfig struct {
	Header string `yaml:"header"`
	Footer string `yaml:"footer"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	// Redis is optional; without it last-used backends live in memory
	Enabled bool `yaml:"enabled"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Key prefix for Redis keys
	KeyPrefix string `yaml:"key_prefix"`

	// Connection pool configuration
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// How long a last-used backend is remembered
	LastServerTTL time.Duration `yaml:"last_server_ttl"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	// Maximum declared packet length (in bytes) to prevent DoS attacks
	MaxPacketSize int `yaml:"max_packet_size"`

	// Maximum connections per IP address
	MaxConnectionsPerIP int `yaml:"max_connections_per_ip"`

	// Connection rate limit (connections per second per IP)
	ConnectionRateLimit int `yaml:"connection_rate_limit"`
}

// RemapEntry maps a login name to an alternate identity
type RemapEntry struct {
	Username       string `yaml:"username"`
	TargetUsername string `yaml:"target_username"`
	TargetUUID     string `yaml:"target_uuid"`
}

// SyncConfig represents player data synchronisation
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`

	// NBT tags copied between backends; empty selects the built-in list
	Tags []string `yaml:"tags"`
}

// TracingConfig represents tracing configuration
type TracingConfig struct {
	// Jaeger collector endpoint; JAEGER_ENDPOINT overrides it
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set default values
	setDefaults(&cfg)

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// ValidateConfig validates the configuration (exported for hot reload)
func ValidateConfig(cfg *Config) error {
	return validateConfig(cfg)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if cfg.Server.HealthCheckPort <= 0 || cfg.Server.HealthCheckPort > 65535 {
		return fmt.Errorf("server.health_check_port must be between 1 and 65535")
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be greater than 0")
	}

	// Validate backends
	for _, key := range []struct {
		path string
		be   BackendConfig
	}{{"backends.primary", cfg.Backends.Primary}, {"backends.secondary", cfg.Backends.Secondary}} {
		if key.be.Name == "" {
			return fmt.Errorf("%s.name is required", key.path)
		}
		if _, _, err := net.SplitHostPort(key.be.Addr); err != nil {
			return fmt.Errorf("%s.addr is invalid: %w", key.path, err)
		}
	}
	if cfg.Backends.Primary.Name == cfg.Backends.Secondary.Name {
		return fmt.Errorf("backends.primary and backends.secondary must have different names")
	}
	if _, ok := cfg.Backends.Lookup(cfg.Backends.Default); !ok {
		return fmt.Errorf("backends.default %q is not a configured backend", cfg.Backends.Default)
	}
	if cfg.Backends.DialTimeout <= 0 {
		return fmt.Errorf("backends.dial_timeout must be greater than 0")
	}
	if d := cfg.Backends.Discovery; d.Enabled() && (d.Service == "" || d.RefreshInterval <= 0) {
		return fmt.Errorf("backends.discovery needs a service and a positive refresh_interval")
	}

	if cfg.Protocol.Cipher != "library" && cfg.Protocol.Cipher != "manual" {
		return fmt.Errorf("protocol.cipher must be library or manual")
	}

	if cfg.Status.SampleSize < 0 {
		return fmt.Errorf("status.sample_size must not be negative")
	}

	// Validate Redis configuration
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if cfg.Security.MaxPacketSize <= 0 {
		return fmt.Errorf("security.max_packet_size must be greater than 0")
	}

	for i, r := range cfg.Remap {
		if r.Username == "" || r.TargetUsername == "" {
			return fmt.Errorf("remap[%d]: username and target_username are required", i)
		}
		if _, err := uuid.Parse(r.TargetUUID); err != nil {
			return fmt.Errorf("remap[%d].target_uuid is invalid: %w", i, err)
		}
	}

	if cfg.Sync.Enabled {
		for _, be := range cfg.Backends.All() {
			if be.ServerDir == "" {
				return fmt.Errorf("backend %s needs server_dir when sync is enabled", be.Name)
			}
		}
	}

	// Validate graceful shutdown timeout
	if cfg.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be greater than 0")
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":25565"
	}
	if cfg.Server.HealthCheckPort == 0 {
		cfg.Server.HealthCheckPort = 9090
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 1000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.LoginTimeout == 0 {
		cfg.Server.LoginTimeout = 30 * time.Second
	}

	if cfg.Backends.Primary.Name == "" {
		cfg.Backends.Primary.Name = "primary"
	}
	if cfg.Backends.Primary.Addr == "" {
		cfg.Backends.Primary.Addr = "localhost:25566"
	}
	if cfg.Backends.Secondary.Name == "" {
		cfg.Backends.Secondary.Name = "secondary"
	}
	if cfg.Backends.Secondary.Addr == "" {
		cfg.Backends.Secondary.Addr = "localhost:25567"
	}
	if cfg.Backends.Default == "" {
		cfg.Backends.Default = cfg.Backends.Primary.Name
	}
	if cfg.Backends.DialTimeout == 0 {
		cfg.Backends.DialTimeout = 5 * time.Second
	}
	if cfg.Backends.SettleDelay == 0 {
		cfg.Backends.SettleDelay = 2 * time.Second
	}
	if cfg.Backends.BreakerMaxFailures == 0 {
		cfg.Backends.BreakerMaxFailures = 5
	}
	if cfg.Backends.BreakerTimeout == 0 {
		cfg.Backends.BreakerTimeout = 10 * time.Second
	}
	if cfg.Backends.Discovery.Enabled() && cfg.Backends.Discovery.RefreshInterval == 0 {
		cfg.Backends.Discovery.RefreshInterval = 30 * time.Second
	}

	if cfg.Protocol.Version == 0 {
		cfg.Protocol.Version = 773
	}
	if cfg.Protocol.VersionName == "" {
		cfg.Protocol.VersionName = "1.21.10"
	}
	if cfg.Protocol.Cipher == "" {
		cfg.Protocol.Cipher = "library"
	}

	if cfg.Auth.SessionServer == "" {
		cfg.Auth.SessionServer = "https://sessionserver.mojang.com"
	}
	if cfg.Auth.Timeout == 0 {
		cfg.Auth.Timeout = 5 * time.Second
	}
	if cfg.Auth.MaxRetries == 0 {
		cfg.Auth.MaxRetries = 2
	}
	if cfg.Auth.RetryDelay == 0 {
		cfg.Auth.RetryDelay = 200 * time.Millisecond
	}

	if cfg.Status.MaxPlayers == 0 {
		cfg.Status.MaxPlayers = 20
	}
	if cfg.Status.MOTD == "" {
		cfg.Status.MOTD = "MCTraveler Portal"
	}
	if cfg.Status.SampleSize == 0 {
		cfg.Status.SampleSize = 12
	}

	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "mc-proxy:"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = 2
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.LastServerTTL == 0 {
		cfg.Redis.LastServerTTL = 30 * 24 * time.Hour
	}

	// Security defaults
	if cfg.Security.MaxPacketSize == 0 {
		cfg.Security.MaxPacketSize = 2 * 1024 * 1024 // 2MiB default
	}
	if cfg.Security.MaxConnectionsPerIP == 0 {
		cfg.Security.MaxConnectionsPerIP = 10
	}
	if cfg.Security.ConnectionRateLimit == 0 {
		cfg.Security.ConnectionRateLimit = 5
	}

	if cfg.GracefulShutdownTimeout == 0 {
		cfg.GracefulShutdownTimeout = 30 * time.Second
	}
}
