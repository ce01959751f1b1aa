// Package config loads relay configuration from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production" yaml:"environment"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" yaml:"log_level"`
	ConfigFile  string `envconfig:"CONFIG_FILE" yaml:"-"`

	Server  ServerConfig   `envconfig:"SERVER" yaml:"server"`
	Crater  CraterConfig   `envconfig:"CRATER" yaml:"crater"`
	GitCode PlatformConfig `envconfig:"GITCODE" yaml:"gitcode"`
	GitHub  PlatformConfig `envconfig:"GITHUB" yaml:"github"`
	Gitee   PlatformConfig `envconfig:"GITEE" yaml:"gitee"`
	Bot     BotConfig      `envconfig:"BOT" yaml:"bot"`
	Slack   SlackConfig    `envconfig:"SLACK" yaml:"slack"`

	// Crater reaches the relay at CallbackBaseURL + "/callback/crater" and
	// authenticates with CallbackSecret as a bearer token.
	CallbackBaseURL string `envconfig:"CALLBACK_BASE_URL" yaml:"callback_base_url"`
	CallbackSecret  string `envconfig:"CALLBACK_SECRET" yaml:"callback_secret"`

	// Empty keeps mappings in memory.
	MappingDBPath string `envconfig:"MAPPING_DB_PATH" yaml:"mapping_db_path"`

	// Zero disables the limiter.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"0" yaml:"rate_limit_per_minute"`
}

// ServerConfig is the listen address.
type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
	Port            int           `envconfig:"PORT" default:"3000" yaml:"port"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout"`
}

// CraterConfig configures the crater API client.
type CraterConfig struct {
	APIURL   string        `envconfig:"API_URL" yaml:"api_url"`
	APIToken string        `envconfig:"API_TOKEN" yaml:"api_token"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"30s" yaml:"timeout"`
}

// PlatformConfig configures one code-hosting back-end.
type PlatformConfig struct {
	Enabled       bool          `envconfig:"ENABLED" yaml:"enabled"`
	APIURL        string        `envconfig:"API_URL" yaml:"api_url"`
	AccessToken   string        `envconfig:"ACCESS_TOKEN" yaml:"access_token"`
	WebhookSecret string        `envconfig:"WEBHOOK_SECRET" yaml:"webhook_secret"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30s" yaml:"timeout"`
}

// BotConfig holds the command settings.
type BotConfig struct {
	// Platform names the back-end that receives webhooks and gets replies.
	Platform           string `envconfig:"PLATFORM" default:"gitcode" yaml:"platform"`
	Name               string `envconfig:"NAME" default:"crater-bot" yaml:"name"`
	TriggerPrefix      string `envconfig:"TRIGGER_PREFIX" default:"@crater-bot" yaml:"trigger_prefix"`
	DefaultMode        string `envconfig:"DEFAULT_MODE" default:"build-and-test" yaml:"default_mode"`
	DefaultCrateSelect string `envconfig:"DEFAULT_CRATE_SELECT" default:"demo" yaml:"default_crate_select"`
	Priority           int    `envconfig:"PRIORITY" default:"0" yaml:"priority"`
}

// SlackConfig configures the optional callback mirror.
type SlackConfig struct {
	BotToken     string `envconfig:"BOT_TOKEN" yaml:"bot_token"`
	Channel      string `envconfig:"CHANNEL" yaml:"channel"`
	IssueBaseURL string `envconfig:"ISSUE_BASE_URL" yaml:"issue_base_url"`
}

// SlackEnabled returns true if a Slack token and channel are configured.
func (c *Config) SlackEnabled() bool {
	return c.Slack.BotToken != "" && c.Slack.Channel != ""
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsDevelopment reports whether human-readable logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Platform returns the selected back-end name, lower-cased, together with
// its settings. An empty name selects gitcode. ok is false for an unknown
// name.
func (c *Config) Platform() (name string, pc PlatformConfig, ok bool) {
	name = strings.ToLower(strings.TrimSpace(c.Bot.Platform))
	switch name {
	case "", "gitcode":
		return "gitcode", c.GitCode, true
	case "github":
		return name, c.GitHub, true
	case "gitee":
		return name, c.Gitee, true
	}
	return name, PlatformConfig{}, false
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Crater.APIURL == "" {
		errs = append(errs, errors.New("CRATER_API_URL is required"))
	}
	if c.Crater.APIToken == "" {
		errs = append(errs, errors.New("CRATER_API_TOKEN is required"))
	}
	if c.CallbackBaseURL == "" {
		errs = append(errs, errors.New("CALLBACK_BASE_URL is required"))
	}
	if c.CallbackSecret == "" {
		errs = append(errs, errors.New("CALLBACK_SECRET is required"))
	}
	if name, pc, ok := c.Platform(); !ok {
		errs = append(errs, fmt.Errorf("BOT_PLATFORM %q is not one of gitcode, github, gitee", c.Bot.Platform))
	} else {
		env := strings.ToUpper(name)
		if !pc.Enabled {
			errs = append(errs, fmt.Errorf("%s_ENABLED must be true", env))
		} else if pc.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("%s_WEBHOOK_SECRET is required", env))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", rerrors.ErrConfig, errors.Join(errs...))
}

// Load reads configuration. Precedence, highest first: the YAML file named
// by CONFIG_FILE, the process environment, the .env file, defaults.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with an environment prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// GitHub keeps an empty API URL, which selects github.com.
	cfg := Config{
		GitCode: PlatformConfig{Enabled: true, APIURL: "https://api.gitcode.com/api/v5"},
		Gitee:   PlatformConfig{APIURL: "https://gitee.com/api/v5"},
	}
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("%w: loading environment: %v", rerrors.ErrConfig, err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// loadDotEnv sets variables from path that are not already in the
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: reading %s: %v", rerrors.ErrConfig, path, err)
	}
	for k, v := range vars {
		if _, exists := os.LookupEnv(k); !exists {
			_ = os.Setenv(k, v)
		}
	}
	return nil
}

// applyFile overlays the YAML file at path. Keys absent from the file keep
// their current value.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", rerrors.ErrConfig, path, err)
	}
	return c.applyYAML(raw)
}

func (c *Config) applyYAML(raw []byte) error {
	expanded := expandEnvVars(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("%w: parse: %v", rerrors.ErrConfig, err)
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
