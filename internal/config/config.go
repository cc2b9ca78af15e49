package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix namespaces every environment variable, e.g. TRUTHVISION_API_URL.
	EnvPrefix = "TRUTHVISION"

	// DefaultAPIURL is the local development endpoint of the detection service.
	DefaultAPIURL = "http://localhost:8000"
)

// Config keys, shared by env, config file and CLI flags.
const (
	KeyAPIURL             = "api_url"
	KeyRequestTimeout     = "request_timeout"
	KeyHost               = "host"
	KeyPort               = "port"
	KeySessionTTL         = "session_ttl"
	KeyMaxRequestBodySize = "max_request_body_size"
	KeySourceFetchTimeout = "source_fetch_timeout"
	KeyAllowedSourceHosts = "allowed_source_hosts"
	KeyAzureAccountName   = "azure_account_name"
	KeyAzureAccountKey    = "azure_account_key"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
	KeyWorkers            = "workers"
)

type Config struct {
	APIBaseURL string
	// RequestTimeout bounds one analysis call; zero leaves it to the service.
	RequestTimeout time.Duration

	Host               string
	Port               string
	SessionTTL         time.Duration
	MaxRequestBodySize int64

	SourceFetchTimeout time.Duration
	AllowedSourceHosts []string
	AzureAccountName   string
	AzureAccountKey    string

	LogLevel  string
	LogFormat string
	Workers   int
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob references can be resolved.
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// NewViper returns a viper instance with defaults and environment binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyRequestTimeout, time.Duration(0))
	v.SetDefault(KeyHost, "127.0.0.1")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeySessionTTL, 30*time.Minute)
	v.SetDefault(KeyMaxRequestBodySize, int64(101*1024*1024)) // largest video plus multipart overhead
	v.SetDefault(KeySourceFetchTimeout, 30*time.Second)
	v.SetDefault(KeyAllowedSourceHosts, []string{})
	v.SetDefault(KeyAzureAccountName, "")
	v.SetDefault(KeyAzureAccountKey, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")
	v.SetDefault(KeyWorkers, 1)
	return v
}

// LoadFromEnv builds a Config from defaults and TRUTHVISION_* variables only.
func LoadFromEnv() (*Config, error) {
	return Load(NewViper())
}

// Load reads and validates a Config from v. An optional config file must
// already have been read into v by the caller.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIBaseURL:         strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIURL)), "/"),
		RequestTimeout:     v.GetDuration(KeyRequestTimeout),
		Host:               v.GetString(KeyHost),
		Port:               v.GetString(KeyPort),
		SessionTTL:         v.GetDuration(KeySessionTTL),
		MaxRequestBodySize: v.GetInt64(KeyMaxRequestBodySize),
		SourceFetchTimeout: v.GetDuration(KeySourceFetchTimeout),
		AllowedSourceHosts: splitList(v.GetStringSlice(KeyAllowedSourceHosts)),
		AzureAccountName:   strings.TrimSpace(v.GetString(KeyAzureAccountName)),
		AzureAccountKey:    strings.TrimSpace(v.GetString(KeyAzureAccountKey)),
		LogLevel:           v.GetString(KeyLogLevel),
		LogFormat:          v.GetString(KeyLogFormat),
		Workers:            v.GetInt(KeyWorkers),
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIURL
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API_URL: %q", cfg.APIBaseURL)
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxRequestBodySize <= 0 {
		return nil, fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", cfg.MaxRequestBodySize)
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be >= 0 (got %s)", cfg.RequestTimeout)
	}
	if cfg.SessionTTL <= 0 || cfg.SourceFetchTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got session_ttl=%s, source_fetch=%s)",
			cfg.SessionTTL, cfg.SourceFetchTimeout)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be >= 1 (got %d)", cfg.Workers)
	}
	return cfg, nil
}

// splitList accepts both real lists and a single comma separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
