// Package config loads initview settings from flags, environment, and an
// optional initview.yaml, in that order of precedence.
//
// Environment variables use the INITVIEW_ prefix with dots replaced by
// underscores, e.g. INITVIEW_JIRA_URL or INITVIEW_FETCH_BATCH_SIZE. The
// collector endpoint also honours the standard OTEL_EXPORTER_OTLP_* names.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mpietro40/jira-initiative-viewer/internal/jira"
	"github.com/mpietro40/jira-initiative-viewer/internal/telemetry"
	"github.com/mpietro40/jira-initiative-viewer/internal/types"
)

// Config is the resolved configuration.
type Config struct {
	Jira  JiraConfig
	Fetch FetchConfig
	Trace TraceConfig

	Telemetry TelemetryConfig

	// File is the config file that was read, or empty.
	File string
}

// JiraConfig holds connection settings.
type JiraConfig struct {
	URL        string
	Token      string
	Username   string // Basic auth when set, Bearer otherwise
	APIVersion string
}

// FetchConfig holds retrieval tuning.
type FetchConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	BatchSize      int
	MinBatchSize   int
	GrowStep       int
	MaxResults     int
}

// TraceConfig holds traversal settings.
type TraceConfig struct {
	InitiativeMax     int
	Deadline          time.Duration // 0 means no overall deadline
	CompletedStatuses []string
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled        bool
	Console        bool // pretty spans and metrics on stderr
	OTLPEndpoint   string
	MetricInterval time.Duration
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"url":            "jira.url",
	"username":       "jira.username",
	"api-version":    "jira.api_version",
	"batch-size":     "fetch.batch_size",
	"max-retries":    "fetch.max_retries",
	"read-timeout":   "fetch.read_timeout",
	"max-results":    "fetch.max_results",
	"initiative-max": "trace.initiative_max",
	"deadline":       "trace.deadline",
}

func setDefaults(v *viper.Viper) {
	p := jira.DefaultFetchPolicy()
	v.SetDefault("jira.url", "")
	v.SetDefault("jira.token", "")
	v.SetDefault("jira.username", "")
	v.SetDefault("jira.api_version", "2")
	v.SetDefault("fetch.connect_timeout", p.ConnectTimeout)
	v.SetDefault("fetch.read_timeout", p.ReadTimeout)
	v.SetDefault("fetch.max_retries", p.MaxRetries)
	v.SetDefault("fetch.retry_delay", p.RetryDelay)
	v.SetDefault("fetch.batch_size", p.BatchSize)
	v.SetDefault("fetch.min_batch_size", p.MinBatchSize)
	v.SetDefault("fetch.grow_step", p.GrowStep)
	v.SetDefault("fetch.max_results", 5000)
	v.SetDefault("trace.initiative_max", 100)
	v.SetDefault("trace.deadline", time.Duration(0))
	v.SetDefault("trace.completed_statuses", types.DefaultCompletedStatuses)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.console", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.metric_interval", telemetry.DefaultMetricInterval)
}

// Load reads configuration. path names an explicit config file; when empty,
// initview.yaml is searched for in the working directory and in
// $HOME/.config/initview, and a missing file is not an error. flags may be
// nil; flags that were set on the command line override everything else.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INITVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telemetry.otlp_endpoint",
		"INITVIEW_TELEMETRY_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	); err != nil {
		return nil, fmt.Errorf("bind telemetry env: %w", err)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("initview")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "initview"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		File: v.ConfigFileUsed(),
		Jira: JiraConfig{
			URL:        strings.TrimSpace(v.GetString("jira.url")),
			Token:      v.GetString("jira.token"),
			Username:   v.GetString("jira.username"),
			APIVersion: v.GetString("jira.api_version"),
		},
		Fetch: FetchConfig{
			ConnectTimeout: v.GetDuration("fetch.connect_timeout"),
			ReadTimeout:    v.GetDuration("fetch.read_timeout"),
			MaxRetries:     v.GetInt("fetch.max_retries"),
			RetryDelay:     v.GetDuration("fetch.retry_delay"),
			BatchSize:      v.GetInt("fetch.batch_size"),
			MinBatchSize:   v.GetInt("fetch.min_batch_size"),
			GrowStep:       v.GetInt("fetch.grow_step"),
			MaxResults:     v.GetInt("fetch.max_results"),
		},
		Trace: TraceConfig{
			InitiativeMax:     v.GetInt("trace.initiative_max"),
			Deadline:          v.GetDuration("trace.deadline"),
			CompletedStatuses: v.GetStringSlice("trace.completed_statuses"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        v.GetBool("telemetry.enabled"),
			Console:        v.GetBool("telemetry.console"),
			OTLPEndpoint:   strings.TrimSpace(v.GetString("telemetry.otlp_endpoint")),
			MetricInterval: v.GetDuration("telemetry.metric_interval"),
		},
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Jira.URL == "" {
		errs = append(errs, errors.New("jira.url is required"))
	} else if u, err := url.Parse(c.Jira.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("jira.url %q must be an http(s) URL", c.Jira.URL))
	}
	if c.Jira.Token == "" {
		errs = append(errs, errors.New("jira.token is required"))
	}
	if c.Fetch.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be positive, got %d", c.Fetch.MaxRetries))
	}
	if c.Fetch.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("fetch.batch_size must be positive, got %d", c.Fetch.BatchSize))
	}
	if c.Fetch.MinBatchSize <= 0 || c.Fetch.MinBatchSize > c.Fetch.BatchSize {
		errs = append(errs, fmt.Errorf("fetch.min_batch_size must be in 1..%d, got %d", c.Fetch.BatchSize, c.Fetch.MinBatchSize))
	}
	if c.Trace.Deadline < 0 {
		errs = append(errs, errors.New("trace.deadline must not be negative"))
	}
	if c.Telemetry.MetricInterval < 0 {
		errs = append(errs, errors.New("telemetry.metric_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// FetchPolicy converts the fetch settings for the client.
func (c *Config) FetchPolicy() jira.FetchPolicy {
	return jira.FetchPolicy{
		ConnectTimeout: c.Fetch.ConnectTimeout,
		ReadTimeout:    c.Fetch.ReadTimeout,
		MaxRetries:     c.Fetch.MaxRetries,
		RetryDelay:     c.Fetch.RetryDelay,
		BatchSize:      c.Fetch.BatchSize,
		MinBatchSize:   c.Fetch.MinBatchSize,
		GrowStep:       c.Fetch.GrowStep,
	}
}

// TelemetrySettings converts the telemetry section. console receives the dev
// exporters when telemetry.console is on.
func (c *Config) TelemetrySettings(console io.Writer) telemetry.Settings {
	s := telemetry.Settings{
		Enabled:        c.Telemetry.Enabled,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		MetricInterval: c.Telemetry.MetricInterval,
	}
	if c.Telemetry.Console {
		s.Console = console
	}
	return s
}
