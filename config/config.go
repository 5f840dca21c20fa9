// Package config provides configuration loading and validation for the mock
// server.
//
// Values are layered, later sources winning: built-in defaults, a config
// file, a .env file in the working directory, MOCKAPI_* environment
// variables, and command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the mock server configuration.
type Config struct {
	// RepoRoot is the base for every relative path below.
	RepoRoot string `mapstructure:"repo_root" yaml:"repo_root" json:"repo_root"`

	ProvidersExamplesPath string `mapstructure:"providers_examples_path" yaml:"providers_examples_path" json:"providers_examples_path"`
	SlideshowSchemasPath  string `mapstructure:"slideshow_schemas_path" yaml:"slideshow_schemas_path" json:"slideshow_schemas_path"`
	SlideshowExamplesPath string `mapstructure:"slideshow_examples_path" yaml:"slideshow_examples_path" json:"slideshow_examples_path"`
	StoryOpenAPIFile      string `mapstructure:"story_openapi_file" yaml:"story_openapi_file" json:"story_openapi_file"`
	StoryExamplesPath     string `mapstructure:"story_examples_path" yaml:"story_examples_path" json:"story_examples_path"`

	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
	CORS   CORSConfig   `mapstructure:"cors" yaml:"cors" json:"cors"`
	Watch  WatchConfig  `mapstructure:"watch" yaml:"watch" json:"watch"`

	// Capabilities maps a provider id to the capability ids it exposes.
	// Providers without an entry expose every capability.
	Capabilities map[string][]string `mapstructure:"capabilities" yaml:"capabilities" json:"capabilities"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-" json:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen is the TCP address to listen on.
	Listen string `mapstructure:"listen" yaml:"listen" json:"listen"`

	// MaxConnections caps concurrent connections; 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" json:"max_connections"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// RequireJSON rejects POST bodies that are not application/json.
	RequireJSON bool `mapstructure:"require_json" yaml:"require_json" json:"require_json"`

	// Docs serves the story OpenAPI document at /openapi.json and
	// /openapi.yaml with a Swagger UI page at /docs.
	Docs bool `mapstructure:"docs" yaml:"docs" json:"docs"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// CORSConfig contains cross-origin settings.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// WatchConfig contains schema file watching settings.
type WatchConfig struct {
	// Enabled invalidates cached schemas when their files change.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// EnvPrefix prefixes every environment variable read.
const EnvPrefix = "MOCKAPI"

// DotEnvFile is read from the working directory when present.
const DotEnvFile = ".env"

// configFileNames is the list of config file names to search for (in order).
var configFileNames = []string{
	"mockapi.yaml",
	"mockapi.json",
	".mockapi.yaml",
}

// dotEnvKeys are the settings a .env file may carry.
var dotEnvKeys = []string{
	"repo_root",
	"providers_examples_path",
	"slideshow_schemas_path",
	"slideshow_examples_path",
	"story_openapi_file",
	"story_examples_path",
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"repo-root":  "repo_root",
	"listen":     "server.listen",
	"log-level":  "log.level",
	"log-format": "log.format",
	"watch":      "watch.enabled",
}

var (
	supportedLevels  = []string{"debug", "info", "warn", "error"}
	supportedFormats = []string{"text", "json"}
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("config validation errors:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Field)
		sb.WriteString(": ")
		sb.WriteString(err.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		RepoRoot:              "data",
		ProvidersExamplesPath: "providers/examples",
		SlideshowSchemasPath:  "slideshow/schemas",
		SlideshowExamplesPath: "slideshow/examples",
		StoryOpenAPIFile:      "story/openapi-video-story.patch.yaml",
		StoryExamplesPath:     "story/examples",
		Server: ServerConfig{
			Listen:            ":4009",
			MaxBodyBytes:      1 << 20,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Docs:              true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Capabilities: map[string][]string{
			"openrouter": {"text-gen"},
		},
	}
}

// setDefaults mirrors Default into viper so every key is known to
// AutomaticEnv.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("repo_root", d.RepoRoot)
	v.SetDefault("providers_examples_path", d.ProvidersExamplesPath)
	v.SetDefault("slideshow_schemas_path", d.SlideshowSchemasPath)
	v.SetDefault("slideshow_examples_path", d.SlideshowExamplesPath)
	v.SetDefault("story_openapi_file", d.StoryOpenAPIFile)
	v.SetDefault("story_examples_path", d.StoryExamplesPath)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.require_json", d.Server.RequireJSON)
	v.SetDefault("server.docs", d.Server.Docs)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("cors.enabled", d.CORS.Enabled)
	v.SetDefault("cors.allowed_origins", d.CORS.AllowedOrigins)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	caps := make(map[string]any, len(d.Capabilities))
	for id, names := range d.Capabilities {
		caps[id] = names
	}
	v.SetDefault("capabilities", caps)
}

// Load builds the configuration. If configPath is empty the working
// directory is searched for mockapi.yaml, mockapi.json and .mockapi.yaml in
// that order. Flags, when given, override every other source for the flags
// the user set.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := mergeDotEnv(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = configPath

	return &cfg, nil
}

// mergeDotEnv layers the .env file over the config file.
func mergeDotEnv(v *viper.Viper) error {
	if _, err := os.Stat(DotEnvFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(DotEnvFile)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", DotEnvFile, err)
	}

	values := make(map[string]any)
	for _, key := range dotEnvKeys {
		if env.IsSet(key) {
			values[key] = env.GetString(key)
		}
	}

	if len(values) == 0 {
		return nil
	}

	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("failed to merge %s: %w", DotEnvFile, err)
	}

	return nil
}

func findConfigFile() string {
	for _, name := range configFileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.RepoRoot == "" {
		errs = append(errs, ValidationError{Field: "repo_root", Message: "repo_root is required"})
	}

	if c.Server.Listen == "" {
		errs = append(errs, ValidationError{Field: "server.listen", Message: "listen address is required"})
	}

	if c.Server.MaxConnections < 0 {
		errs = append(errs, ValidationError{Field: "server.max_connections", Message: "max_connections must be non-negative"})
	}

	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, ValidationError{Field: "server.max_body_bytes", Message: "max_body_bytes must be positive"})
	}

	if c.Server.ReadHeaderTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.read_header_timeout", Message: "read_header_timeout must be non-negative"})
	}

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, ValidationError{Field: "server.shutdown_timeout", Message: "shutdown_timeout must be non-negative"})
	}

	if !contains(supportedLevels, c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unsupported level %q, must be one of: %s", c.Log.Level, strings.Join(supportedLevels, ", ")),
		})
	}

	if !contains(supportedFormats, c.Log.Format) {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unsupported format %q, must be one of: %s", c.Log.Format, strings.Join(supportedFormats, ", ")),
		})
	}

	if c.CORS.Enabled && len(c.CORS.AllowedOrigins) == 0 {
		errs = append(errs, ValidationError{Field: "cors.allowed_origins", Message: "at least one origin is required when cors is enabled"})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// Path resolves p against RepoRoot unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RepoRoot, p)
}

func (c *Config) ProvidersExamplesDir() string { return c.Path(c.ProvidersExamplesPath) }
func (c *Config) SlideshowSchemasDir() string  { return c.Path(c.SlideshowSchemasPath) }
func (c *Config) SlideshowExamplesDir() string { return c.Path(c.SlideshowExamplesPath) }
func (c *Config) StoryOpenAPIPath() string     { return c.Path(c.StoryOpenAPIFile) }
func (c *Config) StoryExamplesDir() string     { return c.Path(c.StoryExamplesPath) }

// NewLogger builds a slog.Logger writing to w in the configured format.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level()}

	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l LogConfig) level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
