package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
var outputFormats = []string{"text", "json", "yaml"}

var serverBindings = map[string]string{
	"port":        "server.port",
	"host":        "server.host",
	"environment": "server.environment",
	"live-reload": "server.live_reload",
	"static-dir":  "server.static_dir",
}

var buildBindings = map[string]string{
	"shell":       "build.shell",
	"output-dir":  "build.output_dir",
	"output-file": "build.output_file",
	"manifest":    "build.manifest",
	"marker":      "shell.marker",
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().StringP("environment", "e", "development", "Environment (development, production)")
	cmd.Flags().Bool("live-reload", true, "Reload browsers when the shell changes (development only)")
	cmd.Flags().String("static-dir", "", "Directory served for paths other than / (default is the output directory)")
	AddFlagValidation(cmd, "port", ValidatePort)
}

func addShellFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("shell", "s", "web/index.html", "Shell template containing the root marker")
	cmd.Flags().String("marker", "<!--ROOT-->", "Placeholder replaced by the rendered tree")
}

func addBuildFlags(cmd *cobra.Command) {
	addShellFlags(cmd)
	cmd.Flags().StringP("output-dir", "d", "dist", "Output directory, cleared on every build")
	cmd.Flags().String("output-file", "index.html", "Name of the rendered document")
	cmd.Flags().Bool("manifest", false, "Write manifest.yaml with file hashes")
}

func addOutputFlags(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "format", "f", "text", "Output format ("+strings.Join(outputFormats, ", ")+")")
	AddFlagValidation(cmd, "format", ValidateFormat)
}

// bindFlags binds each flag present on cmd to its configuration key.
// Binding happens when the command runs, so commands sharing a key do not
// override each other.
func bindFlags(cmd *cobra.Command, bindings map[string]string) error {
	for flagName, configKey := range bindings {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(configKey, flag); err != nil {
			return fmt.Errorf("bind --%s: %w", flagName, err)
		}
	}
	return nil
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if err := v.validator(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// ValidateFormat accepts the names in outputFormats.
func ValidateFormat(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("invalid output format %s, must be one of: %s", format, strings.Join(outputFormats, ", "))
	}
	return nil
}

// writeOutput writes v as JSON or YAML, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}
