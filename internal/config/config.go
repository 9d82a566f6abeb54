// Package config resolves profilematch settings from defaults, an optional
// yaml config file, PROFILEMATCH_* environment variables and command flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: delay is read from
// PROFILEMATCH_DELAY and x.bearer_token from PROFILEMATCH_X_BEARER_TOKEN.
const EnvPrefix = "PROFILEMATCH"

// DefaultDelay is the pause between people. Searching faster gets the session
// flagged by the engines.
const DefaultDelay = 46 * time.Second

// Config is the resolved configuration.
type Config struct {
	Input         string        `mapstructure:"input"`
	Output        string        `mapstructure:"output"`
	Sink          string        `mapstructure:"sink"`
	Engines       []string      `mapstructure:"engines"`
	EngineFile    string        `mapstructure:"engine_file"`
	Domain        string        `mapstructure:"domain"`
	NameField     string        `mapstructure:"name_field"`
	ContextFields []string      `mapstructure:"context_fields"`
	Terms         []string      `mapstructure:"terms"`
	Delay         time.Duration `mapstructure:"delay"`
	Jitter        float64       `mapstructure:"jitter"`
	SkipMalformed bool          `mapstructure:"skip_malformed"`
	MetricsPort   int           `mapstructure:"metrics_port"`

	HTTP HTTPConfig `mapstructure:"http"`
	Log  LogConfig  `mapstructure:"log"`
	X    XConfig    `mapstructure:"x"`
}

// HTTPConfig shapes the search sessions.
type HTTPConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Fingerprint string        `mapstructure:"fingerprint"`
	UserAgents  []string      `mapstructure:"user_agents"`
	UAStrategy  string        `mapstructure:"ua_strategy"`
	ProxyFile   string        `mapstructure:"proxy_file"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// XConfig holds the list export credentials.
type XConfig struct {
	BearerToken string `mapstructure:"bearer_token"`
	BaseURL     string `mapstructure:"base_url"`
}

// SetDefaults registers every key so environment variables are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input", "group_members.csv")
	v.SetDefault("output", "results.csv")
	v.SetDefault("sink", "")
	v.SetDefault("engines", []string{"google", "bing"})
	v.SetDefault("engine_file", "")
	v.SetDefault("domain", "linkedin.com")
	v.SetDefault("name_field", "Name")
	v.SetDefault("context_fields", []string{"Location"})
	v.SetDefault("terms", []string{"google", "designer"})
	v.SetDefault("delay", DefaultDelay)
	v.SetDefault("jitter", 0.0)
	v.SetDefault("skip_malformed", false)
	v.SetDefault("metrics_port", 0)

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.fingerprint", "go")
	v.SetDefault("http.user_agents", []string{})
	v.SetDefault("http.ua_strategy", "sticky")
	v.SetDefault("http.proxy_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("x.bearer_token", "")
	v.SetDefault("x.base_url", "https://api.x.com/2")
}

// New returns a viper instance with defaults and environment binding. A
// non-empty configFile must exist; otherwise ./profilematch.yaml and
// ~/.config/profilematch/config.yaml are tried.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("profilematch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "profilematch"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return v, nil
}

// Load decodes v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	c.Engines = clean(c.Engines)
	c.ContextFields = clean(c.ContextFields)
	c.Terms = clean(c.Terms)
	c.HTTP.UserAgents = clean(c.HTTP.UserAgents)
	return c, c.Validate()
}

// Validate reports settings a match run cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must not be negative, got %s", c.Delay))
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		errs = append(errs, fmt.Errorf("jitter must be between 0 and 1, got %g", c.Jitter))
	}
	if len(c.Engines) < 2 {
		errs = append(errs, fmt.Errorf("at least two engines are required, got %v", c.Engines))
	}
	if c.Domain == "" {
		errs = append(errs, errors.New("domain must not be empty"))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid metrics port %d", c.MetricsPort))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// clean trims entries and drops empty ones. A single comma-separated entry,
// as an environment variable yields, is split.
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
