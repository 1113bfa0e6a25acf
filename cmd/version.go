package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/isomorph/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit, build time and platform of this binary.

Examples:
  isomorph version
  isomorph version --short
  isomorph version --format json`,
	RunE: runVersion,
}

var (
	versionFormat string
	versionShort  bool
)

func init() {
	rootCmd.AddCommand(versionCmd)
	addOutputFlags(versionCmd, &versionFormat)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print only the version number")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if versionShort {
		fmt.Fprintln(out, version.GetVersion())
		return nil
	}
	info := version.GetBuildInfo()
	return writeOutput(out, versionFormat, info, func(w io.Writer) error {
		_, err := fmt.Fprint(w, info.String())
		return err
	})
}
