//go:build property

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("valid settings always load", prop.ForAll(
		func(port int, host, outDir string, depth int) bool {
			v := viper.New()
			v.Set("server.port", port)
			v.Set("server.host", host)
			v.Set("build.output_dir", outDir)
			v.Set("render.max_depth", depth)

			config, err := LoadFrom(v)
			if err != nil {
				t.Logf("unexpected error: %v", err)
				return false
			}
			return config.Addr() == fmt.Sprintf("%s:%d", host, port) &&
				config.OutputPath() == filepath.Join(outDir, "index.html")
		},
		gen.IntRange(1024, 65535),
		gen.RegexMatch(`^[a-z][a-z0-9]{0,10}(\.[a-z][a-z0-9]{0,10}){0,2}$`),
		gen.RegexMatch(`^[a-z][a-z0-9_]{0,10}(/[a-z0-9_]{1,8}){0,2}$`),
		gen.IntRange(1, 4096),
	))

	properties.Property("traversing paths are rejected", prop.ForAll(
		func(depth int, tail string) bool {
			path := strings.Repeat("../", depth) + tail
			return validatePath(path) != nil
		},
		gen.IntRange(1, 5),
		gen.RegexMatch(`^[a-z]{0,8}$`),
	))

	properties.Property("hostname validation is deterministic", prop.ForAll(
		func(host string) bool {
			return (validateHostname(host) == nil) == (validateHostname(host) == nil)
		},
		gen.AnyString(),
	))

	properties.Property("markers without delimiters are rejected", prop.ForAll(
		func(marker string) bool {
			err := validateShellConfig(&ShellConfig{Marker: marker})
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
