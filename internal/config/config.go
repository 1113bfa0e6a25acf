// Package config provides configuration management for isomorph using Viper
// for loading from files, environment variables and command-line flags.
//
// Configuration is read from .isomorph.yml (or the file named by --config or
// ISOMORPH_CONFIG_FILE), overridden by ISOMORPH_ prefixed environment
// variables and bound flags. Load applies defaults and rejects invalid
// values with a config error.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/shell"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
	Build  BuildConfig  `mapstructure:"build" yaml:"build" json:"build"`
	Shell  ShellConfig  `mapstructure:"shell" yaml:"shell" json:"shell"`
	Render RenderConfig `mapstructure:"render" yaml:"render" json:"render"`
	Log    LogConfig    `mapstructure:"log" yaml:"log" json:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host" json:"host"`
	Port        int    `mapstructure:"port" yaml:"port" json:"port"`
	Environment string `mapstructure:"environment" yaml:"environment" json:"environment"`
	LiveReload  bool   `mapstructure:"live_reload" yaml:"live_reload" json:"live_reload"`
	// StaticDir is served for every path other than "/". Defaults to the
	// build output directory.
	StaticDir      string   `mapstructure:"static_dir" yaml:"static_dir" json:"static_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type BuildConfig struct {
	Shell      string `mapstructure:"shell" yaml:"shell" json:"shell"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file" json:"output_file"`
	Manifest   bool   `mapstructure:"manifest" yaml:"manifest" json:"manifest"`
}

type ShellConfig struct {
	Marker string `mapstructure:"marker" yaml:"marker" json:"marker"`
	// Cache keeps the parsed shell in memory until the watcher sees it change.
	Cache bool `mapstructure:"cache" yaml:"cache" json:"cache"`
}

type RenderConfig struct {
	MaxDepth     int      `mapstructure:"max_depth" yaml:"max_depth" json:"max_depth"`
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities" json:"capabilities"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.live_reload", true)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("build.shell", "web/index.html")
	v.SetDefault("build.output_dir", "dist")
	v.SetDefault("build.output_file", "index.html")
	v.SetDefault("build.manifest", false)

	v.SetDefault("shell.marker", shell.DefaultMarker)
	v.SetDefault("shell.cache", true)

	v.SetDefault("render.max_depth", 256)
	v.SetDefault("render.capabilities", []string{string(component.CapState), string(component.CapContext)})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		e := errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("cannot decode configuration: %v", err))
		e.Cause = err
		return nil, e
	}

	// Lists may arrive as comma-separated strings from the environment.
	config.Render.Capabilities = splitList(config.Render.Capabilities)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)
	config.Server.Environment = strings.ToLower(config.Server.Environment)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// LiveReloadEnabled reports whether /ws and the reload snippet are served.
func (c *Config) LiveReloadEnabled() bool {
	return c.IsDevelopment() && c.Server.LiveReload
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StaticRoot is the directory served for non-root paths.
func (c *Config) StaticRoot() string {
	if c.Server.StaticDir != "" {
		return c.Server.StaticDir
	}
	return c.Build.OutputDir
}

// OutputPath is the Final Document path of a build.
func (c *Config) OutputPath() string {
	return filepath.Join(c.Build.OutputDir, c.Build.OutputFile)
}

// RenderEnvironment is the component environment the configured
// capabilities describe.
func (c *Config) RenderEnvironment(values map[string]any) component.Environment {
	caps := make([]component.Capability, 0, len(c.Render.Capabilities))
	for _, name := range c.Render.Capabilities {
		caps = append(caps, component.Capability(name))
	}
	return component.NewEnvironment(caps, values)
}

// Logging returns the logger configuration.
func (c *Config) Logging() *logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Format = c.Log.Format
	return cfg
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"server", func() error { return validateServerConfig(&config.Server) }},
		{"build", func() error { return validateBuildConfig(&config.Build) }},
		{"shell", func() error { return validateShellConfig(&config.Shell) }},
		{"render", func() error { return validateRenderConfig(&config.Render) }},
		{"log", func() error { return validateLogConfig(&config.Log) }},
	}
	for _, c := range checks {
		if err := c.check(); err != nil {
			e := errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("%s config: %v", c.section, err))
			e.Cause = err
			return e
		}
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			return fmt.Errorf("host %w", err)
		}
	}
	if config.Environment != EnvDevelopment && config.Environment != EnvProduction {
		return fmt.Errorf("environment %q must be %s or %s", config.Environment, EnvDevelopment, EnvProduction)
	}
	if config.StaticDir != "" {
		if err := validatePath(config.StaticDir); err != nil {
			return fmt.Errorf("static_dir: %w", err)
		}
	}
	return nil
}

// validateBuildConfig validates build configuration values
func validateBuildConfig(config *BuildConfig) error {
	if err := validatePath(config.Shell); err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	if err := validatePath(config.OutputDir); err != nil {
		return fmt.Errorf("output_dir: %w", err)
	}
	if filepath.Clean(config.OutputDir) == "." {
		return fmt.Errorf("output_dir cannot be the working directory")
	}
	if config.OutputFile == "" || config.OutputFile != filepath.Base(config.OutputFile) || strings.HasPrefix(config.OutputFile, ".") {
		return fmt.Errorf("output_file %q must be a plain file name", config.OutputFile)
	}
	return nil
}

func validateShellConfig(config *ShellConfig) error {
	if strings.TrimSpace(config.Marker) == "" {
		return fmt.Errorf("marker cannot be empty")
	}
	// A marker made of ordinary text would collide with page content.
	if !strings.ContainsAny(config.Marker, "<>{}") {
		return fmt.Errorf("marker %q must contain markup delimiters such as <!-- --> or {{ }}", config.Marker)
	}
	return nil
}

func validateRenderConfig(config *RenderConfig) error {
	if config.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", config.MaxDepth)
	}
	for _, name := range config.Capabilities {
		if !component.IsKnownCapability(component.Capability(name)) {
			return fmt.Errorf("unknown capability %q", name)
		}
	}
	return nil
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}
	if !slices.Contains([]string{"text", "json"}, config.Format) {
		return fmt.Errorf("log format %q must be text or json", config.Format)
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}
