package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/address"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dh-dyn-update.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `updateInterval: 10m
api:
  url: https://api.example.invalid/
interfaces:
  AF_INET6: eth0
  AF_INET: -ipify.org
account: home
accounts:
  home:
    apiKey: 6SHU5P2HLDAYECUM
    hostname: home.example.com
reconcile:
  dryRun: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpdateInterval != 10*time.Minute {
		t.Errorf("expected interval 10m, got %s", cfg.UpdateInterval)
	}
	if cfg.API.URL != "https://api.example.invalid/" {
		t.Errorf("unexpected api url %q", cfg.API.URL)
	}
	if !cfg.Reconcile.DryRun {
		t.Error("expected dry run to be true")
	}

	want := Interfaces{
		{Key: "AF_INET6", Family: address.FamilyIPv6, Interface: "eth0"},
		{Key: "AF_INET", Family: address.FamilyIPv4, Interface: "-ipify.org"},
	}
	if len(cfg.Interfaces) != len(want) {
		t.Fatalf("expected %d interfaces, got %d", len(want), len(cfg.Interfaces))
	}
	for i := range want {
		if cfg.Interfaces[i] != want[i] {
			t.Errorf("interface %d: got %+v, want %+v", i, cfg.Interfaces[i], want[i])
		}
	}

	acct, err := cfg.Credentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.Hostname != "home.example.com" || acct.APIKey != "6SHU5P2HLDAYECUM" {
		t.Errorf("unexpected account %+v", acct)
	}
	if err := cfg.Validate(false); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpdateInterval != defaultUpdateInterval {
		t.Errorf("expected default interval, got %s", cfg.UpdateInterval)
	}
	if cfg.Provider != ProviderDreamHost {
		t.Errorf("expected default provider dreamhost, got %q", cfg.Provider)
	}
	if cfg.Account != defaultAccount {
		t.Errorf("expected default account, got %q", cfg.Account)
	}
	if cfg.Metrics.Address != defaultMetricsAddress {
		t.Errorf("expected default metrics address, got %q", cfg.Metrics.Address)
	}
	if cfg.IPLookup.IPv4URL != defaultIPv4LookupURL {
		t.Errorf("expected default ipv4 lookup url, got %q", cfg.IPLookup.IPv4URL)
	}
}

func TestLoadInvalidFamily(t *testing.T) {
	path := writeConfig(t, "interfaces:\n  AF_PACKET: eth0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown family key, got nil")
	}
}

func TestLoadUnreadable(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable for a directory, got %v", err)
	}

	path := writeConfig(t, "updateInterval: [\n")
	if _, err := Load(path); err == nil || errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DH_DYN_UPDATE_INTERVAL", "90s")
	t.Setenv("DH_DYN_UPDATE_API_KEY", "key-from-env")
	t.Setenv("DH_DYN_UPDATE_HOSTNAME", "env.example.com")
	t.Setenv("DH_DYN_UPDATE_AF_INET", "wan0")
	t.Setenv("DH_DYN_UPDATE_DRYRUN", "true")
	t.Setenv("DH_DYN_UPDATE_METRICS_ADDRESS", "")

	path := writeConfig(t, `interfaces:
  AF_INET: eth0
  AF_INET6: eth1
accounts:
  default:
    apiKey: from-file
    hostname: file.example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpdateInterval != 90*time.Second {
		t.Errorf("expected interval 90s, got %s", cfg.UpdateInterval)
	}
	if cfg.Interfaces[0].Interface != "wan0" || cfg.Interfaces[1].Interface != "eth1" {
		t.Errorf("unexpected interfaces %+v", cfg.Interfaces)
	}
	if !cfg.Reconcile.DryRun {
		t.Error("expected dry run from env")
	}
	if cfg.Metrics.Address != "" {
		t.Errorf("expected metrics disabled by empty env, got %q", cfg.Metrics.Address)
	}

	acct, err := cfg.Credentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.APIKey != "key-from-env" || acct.Hostname != "env.example.com" {
		t.Errorf("expected env credentials, got %+v", acct)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Interfaces: Interfaces{{Key: "AF_INET", Family: address.FamilyIPv4, Interface: "eth0"}},
			Account:    "default",
			Accounts:   map[string]Account{"default": {APIKey: "key", Hostname: "home.example.com"}},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		monitorOnly bool
		expectError bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no interfaces", mutate: func(c *Config) { c.Interfaces = nil }, expectError: true},
		{
			name: "duplicate family",
			mutate: func(c *Config) {
				c.Interfaces = append(c.Interfaces, Binding{Key: "IPv4", Family: address.FamilyIPv4, Interface: "eth1"})
			},
			expectError: true,
		},
		{name: "unknown account", mutate: func(c *Config) { c.Account = "other" }, expectError: true},
		{name: "unknown account monitor only", mutate: func(c *Config) { c.Account = "other" }, monitorOnly: true},
		{name: "missing api key", mutate: func(c *Config) { c.Accounts["default"] = Account{Hostname: "home.example.com"} }, expectError: true},
		{name: "missing hostname", mutate: func(c *Config) { c.Accounts["default"] = Account{APIKey: "key"} }, expectError: true},
		{name: "unsupported provider", mutate: func(c *Config) { c.Provider = "route53" }, expectError: true},
		{name: "cloudflare without token", mutate: func(c *Config) { c.Provider = ProviderCloudflare }, expectError: true},
		{
			name: "cloudflare valid",
			mutate: func(c *Config) {
				c.Provider = ProviderCloudflare
				c.Cloudflare = Cloudflare{Token: "token", Zone: "example.com"}
			},
		},
		{
			name: "libdns cloudflare needs zone name",
			mutate: func(c *Config) {
				c.Provider = ProviderLibdnsCloudflare
				c.Cloudflare = Cloudflare{Token: "token", ZoneID: "zone123"}
			},
			expectError: true,
		},
		{
			name: "libdns cloudflare valid",
			mutate: func(c *Config) {
				c.Provider = ProviderLibdnsCloudflare
				c.Cloudflare = Cloudflare{Token: "token", Zone: "example.com"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate(tt.monitorOnly)
			if tt.expectError && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSetAPIKey(t *testing.T) {
	cfg := &Config{Account: "default", Accounts: map[string]Account{"default": {Hostname: "home.example.com"}}}
	cfg.SetAPIKey("prompted")
	acct, err := cfg.Credentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct.APIKey != "prompted" {
		t.Errorf("expected prompted key, got %q", acct.APIKey)
	}
}
