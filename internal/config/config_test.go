package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadWithArgs(t *testing.T, path string, args ...string) (*Config, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	allArgs := append([]string{"-config", path}, args...)
	flags, err := ParseFlags(fs, allArgs)
	if err != nil {
		t.Fatal(err)
	}
	return Load(flags)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: http://127.0.0.1:8001
`)
	cfg, err := loadWithArgs(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, DefaultHost)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.LBStrategy != DefaultStrategy {
		t.Errorf("LBStrategy = %q, want %q", cfg.LBStrategy, DefaultStrategy)
	}
	if cfg.AdmissionCapacity != DefaultAdmission {
		t.Errorf("AdmissionCapacity = %d, want %d", cfg.AdmissionCapacity, DefaultAdmission)
	}
	if *cfg.Backends[0].Weight != 1 {
		t.Errorf("default backend weight = %d, want 1", *cfg.Backends[0].Weight)
	}
}

func TestFlagsOverrideYAML(t *testing.T) {
	path := writeYAML(t, `
host: 0.0.0.0
port: 4000
lb_strategy: random
backends:
  - name: a
    url: http://127.0.0.1:8001
`)
	cfg, err := loadWithArgs(t, path, "-host", "10.0.0.1", "-port", "5000", "-strategy", "least_connections")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "10.0.0.1" {
		t.Errorf("Host = %q, want 10.0.0.1 (flag should win over YAML)", cfg.Host)
	}
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if cfg.LBStrategy != "least_connections" {
		t.Errorf("LBStrategy = %q, want least_connections", cfg.LBStrategy)
	}
}

func TestEnvOverridesYAMLButNotFlags(t *testing.T) {
	path := writeYAML(t, `
host: 0.0.0.0
backends:
  - name: a
    url: http://127.0.0.1:8001
`)
	t.Setenv("LB_HOST", "192.168.1.1")

	cfg, err := loadWithArgs(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("Host = %q, want 192.168.1.1 (env should win over YAML)", cfg.Host)
	}

	cfg2, err := loadWithArgs(t, path, "-host", "10.10.10.10")
	if err != nil {
		t.Fatal(err)
	}
	if cfg2.Host != "10.10.10.10" {
		t.Errorf("Host = %q, want 10.10.10.10 (flag should win over env)", cfg2.Host)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	path := writeYAML(t, `
lb_strategy: made_up
backends:
  - name: a
    url: http://127.0.0.1:8001
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestValidateRejectsNoBackends(t *testing.T) {
	path := writeYAML(t, `
lb_strategy: round_robin
backends: []
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for empty backend list")
	}
}

func TestValidateRejectsDuplicateBackendNames(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: http://127.0.0.1:8001
  - name: a
    url: http://127.0.0.1:8002
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for duplicate backend name")
	}
}

func TestValidateRejectsEmptyURL(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: ""
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for empty backend url")
	}
}

func TestValidateRejectsWeightBelowOne(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: http://127.0.0.1:8001
    weight: 0
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for weight below 1")
	}
}

func TestValidateRejectsBackendTimeoutBelowOne(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: http://127.0.0.1:8001
    timeout_seconds: 0
`)
	if _, err := loadWithArgs(t, path); err == nil {
		t.Fatal("expected error for timeout_seconds below 1")
	}
}

func TestBackendTimeoutSecondsLoadsFromYAML(t *testing.T) {
	path := writeYAML(t, `
backends:
  - name: a
    url: http://127.0.0.1:8001
    timeout_seconds: 5
  - name: b
    url: http://127.0.0.1:8002
`)
	cfg, err := loadWithArgs(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backends[0].TimeoutSeconds == nil || *cfg.Backends[0].TimeoutSeconds != 5 {
		t.Errorf("backends[0].TimeoutSeconds = %v, want 5", cfg.Backends[0].TimeoutSeconds)
	}
	if cfg.Backends[1].TimeoutSeconds != nil {
		t.Errorf("backends[1].TimeoutSeconds = %v, want nil", cfg.Backends[1].TimeoutSeconds)
	}
}

func TestMissingConfigFileFallsBackToDefaultsAndFlags(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "does-not-exist.yaml")
	// A missing config file is tolerated, but validation still requires
	// at least one backend, which only flags/env can't supply here, so
	// this should fail validation rather than flag parsing.
	if _, err := loadWithArgs(t, missing); err == nil {
		t.Fatal("expected validation error when no backends are configured anywhere")
	}
}

func TestAddrAndTLSAddr(t *testing.T) {
	cfg := &Config{Host: "127.0.0.1", Port: 3000}
	if cfg.Addr() != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:3000", cfg.Addr())
	}
	if cfg.TLSAddr() != "127.0.0.1:3443" {
		t.Errorf("TLSAddr() = %q, want 127.0.0.1:3443", cfg.TLSAddr())
	}
}

func TestHealthCheckIntervalFlagOverride(t *testing.T) {
	path := writeYAML(t, `
health_check_interval: 5
backends:
  - name: a
    url: http://127.0.0.1:8001
`)
	cfg, err := loadWithArgs(t, path, "-health-check-interval", "30")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HealthCheckInterval != 30*time.Second {
		t.Errorf("HealthCheckInterval = %s, want 30s", cfg.HealthCheckInterval)
	}
}
