package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evanofslack/dh-dyn-update/internal/address"
)

const (
	defaultUpdateInterval = 5 * time.Minute
	defaultAPIURL         = "https://api.dreamhost.com/"
	defaultAPITimeout     = 30 * time.Second
	defaultMetricsAddress = ":9090"
	defaultAccount        = "default"
	defaultProvider       = ProviderDreamHost
	defaultLogLevel       = "info"
	defaultLogEnv         = "prod"
	defaultIPv4LookupURL  = "https://api.ipify.org"
	defaultIPv6LookupURL  = "https://api6.ipify.org"

	envPrefix = "DH_DYN_UPDATE_"
)

// ErrUnreadable is returned by Load when the config file exists but cannot
// be read.
var ErrUnreadable = errors.New("read config file")

const (
	ProviderDreamHost        = "dreamhost"
	ProviderCloudflare       = "cloudflare"
	ProviderLibdnsCloudflare = "libdns-cloudflare"
)

type Config struct {
	UpdateInterval time.Duration      `yaml:"updateInterval"`
	Log            Log                `yaml:"log"`
	Metrics        Metrics            `yaml:"metrics"`
	API            API                `yaml:"api"`
	Provider       string             `yaml:"provider"`
	Cloudflare     Cloudflare         `yaml:"cloudflare"`
	Interfaces     Interfaces         `yaml:"interfaces"`
	Account        string             `yaml:"account"`
	Accounts       map[string]Account `yaml:"accounts"`
	Reconcile      Reconcile          `yaml:"reconcile"`
	IPLookup       IPLookup           `yaml:"ipLookup"`

	// env overrides for the selected account
	envAPIKey   string
	envHostname string
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

type Metrics struct {
	Address string `yaml:"address"`
}

type API struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Cloudflare struct {
	Token  string `yaml:"token"`
	Zone   string `yaml:"zone"`
	ZoneID string `yaml:"zoneId"`
	TTL    int    `yaml:"ttl"`
}

type Account struct {
	APIKey   string `yaml:"apiKey"`
	Hostname string `yaml:"hostname"`
}

type Reconcile struct {
	DryRun  bool   `yaml:"dryRun"`
	Comment string `yaml:"comment"`
}

type IPLookup struct {
	IPv4URL string `yaml:"ipv4URL"`
	IPv6URL string `yaml:"ipv6URL"`
}

// Binding maps one address family key to an interface name or an external
// lookup sentinel such as "-ipify.org".
type Binding struct {
	Key       string
	Family    address.Family
	Interface string
}

// Interfaces keeps the bindings in document order.
type Interfaces []Binding

func (in *Interfaces) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("interfaces: expected mapping, line %d", value.Line)
	}
	out := make(Interfaces, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		family, err := address.ParseFamily(k.Value)
		if err != nil {
			return fmt.Errorf("interfaces: line %d: %w", k.Line, err)
		}
		out = append(out, Binding{Key: k.Value, Family: family, Interface: strings.TrimSpace(v.Value)})
	}
	*in = out
	return nil
}

// Set replaces the binding for key's family, or appends one.
func (in *Interfaces) Set(key, iface string) error {
	family, err := address.ParseFamily(key)
	if err != nil {
		return err
	}
	for i, b := range *in {
		if b.Family == family {
			(*in)[i] = Binding{Key: key, Family: family, Interface: iface}
			return nil
		}
	}
	*in = append(*in, Binding{Key: key, Family: family, Interface: iface})
	return nil
}

func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Default().Warn("fail find config file, proceeding", "path", path)
	case err != nil:
		return nil, fmt.Errorf("%w %s: %w", ErrUnreadable, path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = defaultUpdateInterval
	}
	if cfg.API.URL == "" {
		cfg.API.URL = defaultAPIURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = defaultAPITimeout
	}
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}
	if cfg.Account == "" {
		cfg.Account = defaultAccount
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = defaultLogEnv
	}
	if cfg.IPLookup.IPv4URL == "" {
		cfg.IPLookup.IPv4URL = defaultIPv4LookupURL
	}
	if cfg.IPLookup.IPv6URL == "" {
		cfg.IPLookup.IPv6URL = defaultIPv6LookupURL
	}
}

// Override from environment if set
func (cfg *Config) applyEnv() error {
	if interval := os.Getenv(envPrefix + "INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.UpdateInterval = d
		} else {
			slog.Default().Warn("fail parse update interval to duration from string", "interval", interval, "error", err)
		}
	}
	if apiURL := os.Getenv(envPrefix + "API_URL"); apiURL != "" {
		cfg.API.URL = apiURL
	}
	if timeout := os.Getenv(envPrefix + "API_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.API.Timeout = d
		} else {
			slog.Default().Warn("fail parse api timeout to duration from string", "timeout", timeout, "error", err)
		}
	}
	if account := os.Getenv(envPrefix + "ACCOUNT"); account != "" {
		cfg.Account = account
	}
	cfg.envAPIKey = os.Getenv(envPrefix + "API_KEY")
	cfg.envHostname = os.Getenv(envPrefix + "HOSTNAME")

	if p := os.Getenv(envPrefix + "PROVIDER"); p != "" {
		cfg.Provider = p
	}
	if token := os.Getenv(envPrefix + "CLOUDFLARE_TOKEN"); token != "" {
		cfg.Cloudflare.Token = token
	}
	if zone := os.Getenv(envPrefix + "CLOUDFLARE_ZONE"); zone != "" {
		cfg.Cloudflare.Zone = zone
	}
	if ttl := os.Getenv(envPrefix + "CLOUDFLARE_TTL"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			cfg.Cloudflare.TTL = v
		} else {
			slog.Default().Warn("fail parse ttl to int from string", "ttl", ttl, "error", err)
		}
	}
	for _, key := range []string{"AF_INET", "AF_INET6"} {
		if iface := os.Getenv(envPrefix + key); iface != "" {
			if err := cfg.Interfaces.Set(key, iface); err != nil {
				return err
			}
		}
	}
	if dryRun := os.Getenv(envPrefix + "DRYRUN"); dryRun != "" {
		switch strings.ToLower(dryRun) {
		case "true":
			cfg.Reconcile.DryRun = true
		case "false":
			cfg.Reconcile.DryRun = false
		default:
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", dryRun)
		}
	}
	if addr, ok := os.LookupEnv(envPrefix + "METRICS_ADDRESS"); ok {
		cfg.Metrics.Address = addr
	} else if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetricsAddress
	}
	if loglevel := os.Getenv(envPrefix + "LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv(envPrefix + "LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
	return nil
}

// Credentials returns the selected account with environment overrides applied.
func (cfg *Config) Credentials() (Account, error) {
	acct, ok := cfg.Accounts[cfg.Account]
	if !ok && cfg.envAPIKey == "" && cfg.envHostname == "" {
		return Account{}, fmt.Errorf("could not find configuration for account %q", cfg.Account)
	}
	if cfg.envAPIKey != "" {
		acct.APIKey = cfg.envAPIKey
	}
	if cfg.envHostname != "" {
		acct.Hostname = cfg.envHostname
	}
	return acct, nil
}

// SetAPIKey stores a key for the selected account, e.g. one read from a prompt.
func (cfg *Config) SetAPIKey(key string) {
	cfg.envAPIKey = key
}

// Validate checks everything the poll loop depends on. In monitor-only mode
// no provider or account settings are needed.
func (cfg *Config) Validate(monitorOnly bool) error {
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("updateInterval must be positive, got %s", cfg.UpdateInterval)
	}
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("no interfaces configured, set AF_INET and/or AF_INET6")
	}
	seen := make(map[address.Family]bool)
	for _, b := range cfg.Interfaces {
		if b.Interface == "" {
			return fmt.Errorf("interface for %s is empty", b.Key)
		}
		if seen[b.Family] {
			return fmt.Errorf("duplicate interface binding for %s", b.Family)
		}
		seen[b.Family] = true
	}
	if monitorOnly {
		return nil
	}

	acct, err := cfg.Credentials()
	if err != nil {
		return err
	}
	if acct.Hostname == "" {
		return fmt.Errorf("account %q: hostname required", cfg.Account)
	}

	switch cfg.Provider {
	case ProviderDreamHost:
		if acct.APIKey == "" {
			return fmt.Errorf("account %q: apiKey required", cfg.Account)
		}
	case ProviderCloudflare:
		if cfg.Cloudflare.Token == "" {
			return fmt.Errorf("cloudflare: token required")
		}
		if cfg.Cloudflare.Zone == "" && cfg.Cloudflare.ZoneID == "" {
			return fmt.Errorf("cloudflare: zone or zoneId required")
		}
	case ProviderLibdnsCloudflare:
		if cfg.Cloudflare.Token == "" {
			return fmt.Errorf("cloudflare: token required")
		}
		if cfg.Cloudflare.Zone == "" {
			return fmt.Errorf("cloudflare: zone required for %s", ProviderLibdnsCloudflare)
		}
	default:
		return fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	return nil
}
