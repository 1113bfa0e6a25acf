package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/isomorph/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	Long: `Print the configuration after merging the config file, ISOMORPH_*
environment variables and defaults, followed by any validation warnings.

Examples:
  isomorph config
  isomorph config --format json
  ISOMORPH_SERVER_PORT=3000 isomorph config`,
	RunE: runConfig,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (text, json, yaml)")
	AddFlagValidation(configCmd, "format", ValidateFormat)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := writeOutput(out, configFormat, rt.cfg, func(w io.Writer) error {
		return writeConfigText(w, rt.cfg)
	}); err != nil {
		return err
	}

	if configFormat == "json" {
		return nil
	}
	result := config.ValidateConfigWithDetails(rt.cfg)
	if result.HasWarnings() {
		fmt.Fprintln(out)
		fmt.Fprint(out, result.String())
	}
	return nil
}

func writeConfigText(w io.Writer, cfg *config.Config) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# config file: %s\n", used)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
