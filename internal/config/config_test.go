package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/shell"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, EnvDevelopment, config.Server.Environment)
	assert.True(t, config.LiveReloadEnabled())
	assert.Equal(t, "web/index.html", config.Build.Shell)
	assert.Equal(t, "dist", config.Build.OutputDir)
	assert.Equal(t, filepath.Join("dist", "index.html"), config.OutputPath())
	assert.Equal(t, "dist", config.StaticRoot())
	assert.Equal(t, shell.DefaultMarker, config.Shell.Marker)
	assert.True(t, config.Shell.Cache)
	assert.Equal(t, 256, config.Render.MaxDepth)
	assert.Equal(t, []string{"state", "context"}, config.Render.Capabilities)
	assert.Equal(t, "localhost:8080", config.Addr())
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		check  func(t *testing.T, c *Config)
	}{
		{
			name: "production disables live reload",
			values: map[string]any{
				"server.environment": "Production",
				"server.live_reload": true,
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, EnvProduction, c.Server.Environment)
				assert.False(t, c.IsDevelopment())
				assert.False(t, c.LiveReloadEnabled())
			},
		},
		{
			name:   "static dir overrides output dir",
			values: map[string]any{"server.static_dir": "public"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "public", c.StaticRoot())
			},
		},
		{
			name:   "comma separated capabilities",
			values: map[string]any{"render.capabilities": "context, state"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"context", "state"}, c.Render.Capabilities)
			},
		},
		{
			name:   "comma separated origins",
			values: map[string]any{"server.allowed_origins": "localhost:*,example.com"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, []string{"localhost:*", "example.com"}, c.Server.AllowedOrigins)
			},
		},
		{
			name:   "custom marker",
			values: map[string]any{"shell.marker": "{{ app }}"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "{{ app }}", c.Shell.Marker)
			},
		},
		{
			name:   "empty host binds all interfaces",
			values: map[string]any{"server.host": ""},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, ":8080", c.Addr())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for key, value := range tt.values {
				v.Set(key, value)
			}
			config, err := LoadFrom(v)
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ISOMORPH_SERVER_PORT", "9090")
	t.Setenv("ISOMORPH_BUILD_OUTPUT_DIR", "public")
	t.Setenv("ISOMORPH_RENDER_CAPABILITIES", "state")

	v := viper.New()
	v.SetEnvPrefix("ISOMORPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "public", config.Build.OutputDir)
	assert.Equal(t, []string{"state"}, config.Render.Capabilities)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".isomorph.yml")
	content := `server:
  port: 3000
  environment: production
build:
  shell: site/shell.html
  output_dir: out
  manifest: true
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "site/shell.html", config.Build.Shell)
	assert.True(t, config.Build.Manifest)
	assert.Equal(t, filepath.Join("out", "index.html"), config.OutputPath())

	logCfg := config.Logging()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  string
	}{
		{"undecodable port", "server.port", "invalid_port", "decode"},
		{"port out of range", "server.port", 70000, "port"},
		{"negative port", "server.port", -1, "port"},
		{"host injection", "server.host", "localhost; rm -rf /", "dangerous character"},
		{"malformed host", "server.host", "-bad-", "hostname"},
		{"unknown environment", "server.environment", "staging", "environment"},
		{"traversing static dir", "server.static_dir", "../outside", "traversal"},
		{"empty shell", "build.shell", "", "empty path"},
		{"shell with metacharacters", "build.shell", "web/$(id).html", "dangerous character"},
		{"traversing output dir", "build.output_dir", "../../etc", "traversal"},
		{"output dir is working directory", "build.output_dir", "./", "working directory"},
		{"nested output file", "build.output_file", "sub/index.html", "plain file name"},
		{"hidden output file", "build.output_file", ".index.html", "plain file name"},
		{"blank marker", "shell.marker", "  ", "marker cannot be empty"},
		{"plain text marker", "shell.marker", "ROOT", "markup delimiters"},
		{"zero depth", "render.max_depth", 0, "max_depth"},
		{"unknown capability", "render.capabilities", []string{"state", "network"}, "unknown capability"},
		{"unknown log level", "log.level", "verbose", "log level"},
		{"unknown log format", "log.format", "xml", "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			config, err := LoadFrom(v)
			require.Error(t, err)
			assert.Nil(t, config)
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
			assert.Equal(t, errors.ErrorTypeConfig, errors.TypeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRenderEnvironment(t *testing.T) {
	config, err := LoadFrom(viper.New())
	require.NoError(t, err)

	env := config.RenderEnvironment(map[string]any{"site": "demo"})
	assert.True(t, env.Supplies(component.CapState))
	assert.True(t, env.Supplies(component.CapContext))
	value, ok := env.Value("site")
	assert.True(t, ok)
	assert.Equal(t, "demo", value)

	config.Render.Capabilities = []string{"context"}
	assert.False(t, config.RenderEnvironment(nil).Supplies(component.CapState))
}

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		host  string
		valid bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"0.0.0.0", true},
		{"example.com", true},
		{"my-host.internal", true},
		{"host_name", false},
		{"-leading", false},
		{"evil`cmd`", false},
		{"a|b", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := validateHostname(tt.host)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateConfigWithDetails(t *testing.T) {
	dir := t.TempDir()
	shellPath := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(shellPath, []byte(`<div id="root"><!--ROOT--></div>`), 0o600))

	v := viper.New()
	v.Set("build.shell", shellPath)
	v.Set("server.static_dir", dir)
	config, err := LoadFrom(v)
	require.NoError(t, err)

	result := ValidateConfigWithDetails(config)
	assert.True(t, result.Valid)
	assert.False(t, result.HasErrors())
	assert.False(t, result.HasWarnings(), result.String())

	config.Server.Port = 80
	config.Server.Environment = EnvProduction
	config.Server.StaticDir = filepath.Join(dir, "missing")
	config.Build.Shell = filepath.Join(dir, "nope.html")

	result = ValidateConfigWithDetails(config)
	assert.True(t, result.Valid)
	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"server.port", "server.live_reload", "server.static_dir", "build.shell"}, fields)
	assert.Contains(t, result.String(), "Validation warnings:")

	config.Render.MaxDepth = -1
	result = ValidateConfigWithDetails(config)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "max_depth")
}
