// Package config loads the load balancer's YAML configuration file and
// layers CLI flag and environment overrides on top, in that precedence
// order: CLI flags > environment > YAML > built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration for one load balancer process.
type Config struct {
	Host                string          `yaml:"host"`
	Port                uint16          `yaml:"port"`
	LBStrategy          string          `yaml:"lb_strategy"`
	HealthCheckInterval time.Duration   `yaml:"-"`
	Backends            []BackendConfig `yaml:"backends"`

	Admin   AdminConfig   `yaml:"admin"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`

	// AdmissionCapacity bounds global in-flight requests.
	AdmissionCapacity int `yaml:"admission_capacity"`
	// UpstreamTimeoutSeconds bounds a single upstream dispatch.
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds"`

	// ProxyIdentifier is stamped into X-Forwarded-By and X-Load-Balancer.
	ProxyIdentifier string `yaml:"proxy_identifier"`

	// raw form of health_check_interval as read from YAML, in seconds.
	HealthCheckIntervalSeconds int `yaml:"health_check_interval"`
}

type BackendConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Weight  *int   `yaml:"weight"`
	// TimeoutSeconds overrides UpstreamTimeoutSeconds for this backend
	// alone. Nil means "use the top-level default".
	TimeoutSeconds *int `yaml:"timeout_seconds"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type LoggingConfig struct {
	LokiURL      string `yaml:"loki_url"`
	InfoEnabled  *bool  `yaml:"info_enabled"`
	DebugEnabled *bool  `yaml:"debug_enabled"`
	ErrorEnabled *bool  `yaml:"error_enabled"`
}

const (
	DefaultHost                = "127.0.0.1"
	DefaultPort          uint16 = 3000
	DefaultStrategy             = "round_robin"
	DefaultHealthSeconds       = 10
	DefaultAdminAddr           = ":9090"
	DefaultAdmission            = 100
	DefaultUpstreamTimeout      = 30
	DefaultConfigPath           = "config/config.yaml"
)

// Flags holds the parsed CLI flags so callers (tests, main) can inspect
// what was explicitly supplied versus left at its flag default.
type Flags struct {
	ConfigPath    string
	Host          string
	Port          uint16
	Strategy      string
	HealthSeconds int
	set           map[string]bool
}

// ParseFlags parses os.Args[1:] (or the given args, for tests) into Flags,
// tracking which flags were explicitly supplied so they can override YAML
// without needing the zero value to mean "unset".
func ParseFlags(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := &Flags{set: map[string]bool{}}
	fs.StringVar(&f.ConfigPath, "config", DefaultConfigPath, "path to config file")
	fs.StringVar(&f.Host, "host", "", "override listen host")
	var port int
	fs.IntVar(&port, "port", 0, "override listen port")
	fs.StringVar(&f.Strategy, "strategy", "", "override lb_strategy")
	fs.IntVar(&f.HealthSeconds, "health-check-interval", 0, "override health_check_interval (seconds)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	f.Port = uint16(port)
	return f, nil
}

// Load reads .env (if present), then the YAML file at flags.ConfigPath,
// applies environment overrides, then CLI flag overrides, and validates
// the result.
func Load(flags *Flags) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of .env is not fatal; only report load failures for a
		// file that does exist but is unreadable/malformed.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	path := DefaultConfigPath
	if flags != nil && flags.ConfigPath != "" {
		path = flags.ConfigPath
	}

	cfg, err := readYAML(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	if flags != nil {
		applyFlags(cfg, flags)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readYAML(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing config file is tolerated; an operator may drive
			// everything through flags/env for a quick trial run.
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.HealthCheckInterval = time.Duration(cfg.HealthCheckIntervalSeconds) * time.Second
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LB_HOST")); v != "" {
		cfg.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("LB_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = uint16(p)
		}
	}
	if v := strings.TrimSpace(os.Getenv("LB_ADMIN_ADDR")); v != "" {
		cfg.Admin.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("LB_LOKI_URL")); v != "" {
		cfg.Logging.LokiURL = v
	}
}

func applyFlags(cfg *Config, flags *Flags) {
	if flags.set["host"] {
		cfg.Host = flags.Host
	}
	if flags.set["port"] {
		cfg.Port = flags.Port
	}
	if flags.set["strategy"] {
		cfg.LBStrategy = flags.Strategy
	}
	if flags.set["health-check-interval"] {
		cfg.HealthCheckInterval = time.Duration(flags.HealthSeconds) * time.Second
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LBStrategy == "" {
		cfg.LBStrategy = DefaultStrategy
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = DefaultHealthSeconds * time.Second
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = DefaultAdminAddr
	}
	if cfg.AdmissionCapacity <= 0 {
		cfg.AdmissionCapacity = DefaultAdmission
	}
	if cfg.UpstreamTimeoutSeconds <= 0 {
		cfg.UpstreamTimeoutSeconds = DefaultUpstreamTimeout
	}
	if cfg.ProxyIdentifier == "" {
		cfg.ProxyIdentifier = "fleetlb"
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			cfg.TLS.CertFile = "cert.pem"
		}
		if cfg.TLS.KeyFile == "" {
			cfg.TLS.KeyFile = "key.pem"
		}
	}
	for i := range cfg.Backends {
		if cfg.Backends[i].Weight == nil {
			one := 1
			cfg.Backends[i].Weight = &one
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.LBStrategy {
	case "round_robin", "weighted_round_robin", "least_connections", "random":
	default:
		return fmt.Errorf("unknown lb_strategy %q", cfg.LBStrategy)
	}
	if len(cfg.Backends) == 0 {
		return fmt.Errorf("at least one backend is required")
	}
	seen := make(map[string]struct{}, len(cfg.Backends))
	for i, b := range cfg.Backends {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = struct{}{}
		if strings.TrimSpace(b.URL) == "" {
			return fmt.Errorf("backend %q: url is required", b.Name)
		}
		if b.Weight != nil && *b.Weight < 1 {
			return fmt.Errorf("backend %q: weight must be >= 1", b.Name)
		}
		if b.TimeoutSeconds != nil && *b.TimeoutSeconds < 1 {
			return fmt.Errorf("backend %q: timeout_seconds must be >= 1", b.Name)
		}
	}
	return nil
}

// TLSAddr returns the host:port the optional HTTPS listener binds to:
// host:(port+443).
func (c *Config) TLSAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, int(c.Port)+443)
}

// Addr returns the host:port the plaintext listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
