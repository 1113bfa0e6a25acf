package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/hydrate"
	"github.com/conneroisu/isomorph/internal/renderer"
	"github.com/conneroisu/isomorph/internal/site"
)

var hydrateCmd = &cobra.Command{
	Use:   "hydrate <file|->",
	Short: "Hydrate a delivered document and report what had to be corrected",
	Long: `Parse a delivered document, attach the site tree to its root element
and report every mismatch hydration corrected along with the bound event
handlers. Use - to read the document from stdin.

Examples:
  isomorph hydrate dist/index.html
  curl -s localhost:8080/ | isomorph hydrate - --format yaml
  isomorph hydrate page.html --write > fixed.html`,
	Args: cobra.ExactArgs(1),
	RunE: runHydrate,
}

var (
	hydrateFormat string
	hydrateWrite  bool
	hydrateStrict bool
)

func init() {
	rootCmd.AddCommand(hydrateCmd)
	addOutputFlags(hydrateCmd, &hydrateFormat)
	hydrateCmd.Flags().BoolVarP(&hydrateWrite, "write", "w", false, "Print the corrected document instead of a report")
	hydrateCmd.Flags().BoolVar(&hydrateStrict, "strict", false, "Fail when any mismatch was corrected")
}

// Correction is one reported hydration mismatch.
type Correction struct {
	Path     string `json:"path" yaml:"path"`
	Kind     string `json:"kind" yaml:"kind"`
	Expected string `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   string `json:"actual,omitempty" yaml:"actual,omitempty"`
}

// HydrateReport is the output of the hydrate command.
type HydrateReport struct {
	Corrections []Correction        `json:"corrections" yaml:"corrections"`
	Events      map[string][]string `json:"events" yaml:"events"`
}

func runHydrate(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	doc, err := readDocument(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	tree, err := renderer.BuildTree(ctx, site.Page)
	if err != nil {
		return err
	}
	root, err := hydrate.Boot(ctx, doc, tree,
		hydrate.WithRenderer(rt.renderer()),
		hydrate.WithLogger(rt.logger),
	)
	if err != nil {
		return err
	}

	warnings := root.Warnings()
	out := cmd.OutOrStdout()
	if hydrateWrite {
		if err := html.Render(out, doc); err != nil {
			return err
		}
		fmt.Fprintln(out)
	} else {
		report := newHydrateReport(warnings, root.Events())
		if err := writeOutput(out, hydrateFormat, report, report.writeText); err != nil {
			return err
		}
	}

	if hydrateStrict && len(warnings) > 0 {
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("hydration corrected %d mismatches", len(warnings)))
	}
	return nil
}

func readDocument(stdin io.Reader, name string) (*html.Node, error) {
	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open document: %w", err)
		}
		defer f.Close()
		r = f
	}
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc, nil
}

func newHydrateReport(warnings []errors.HydrationMismatchWarning, events map[string][]string) *HydrateReport {
	report := &HydrateReport{
		Corrections: make([]Correction, 0, len(warnings)),
		Events:      events,
	}
	for _, w := range warnings {
		report.Corrections = append(report.Corrections, Correction{
			Path:     w.Path,
			Kind:     string(w.Kind),
			Expected: w.Expected,
			Actual:   w.Actual,
		})
	}
	return report
}

func (r *HydrateReport) writeText(w io.Writer) error {
	if len(r.Corrections) == 0 {
		fmt.Fprintln(w, "Hydrated without corrections")
	} else {
		fmt.Fprintf(w, "Corrected %d mismatches:\n", len(r.Corrections))
		for _, c := range r.Corrections {
			fmt.Fprintf(w, "  %-10s %-6s expected %q, got %q\n", c.Kind, c.Path, c.Expected, c.Actual)
		}
	}

	keys := make([]string, 0, len(r.Events))
	for k := range r.Events {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fmt.Fprintf(w, "Bound handlers: %d\n", len(keys))
	for _, k := range keys {
		fmt.Fprintf(w, "  %-6s %s\n", k, strings.Join(r.Events[k], ", "))
	}
	return nil
}
