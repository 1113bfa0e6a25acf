// Package build produces the static artifact: it renders the site tree once
// in static mode, injects it into the shell and persists the Final Document
// into a freshly cleared output directory.
//
// A run moves through Idle, Preparing, Rendering, Writing and Done, or ends in
// Failed. The document is rendered in memory before the output directory is
// touched, so a broken shell or a failing render leaves the previous artifact
// in place.
//
// Builds against the same output directory must not run concurrently.
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/metrics"
	"github.com/conneroisu/isomorph/internal/renderer"
	"github.com/conneroisu/isomorph/internal/shell"
)

// DefaultOutputFile is the name of the Final Document inside the output
// directory.
const DefaultOutputFile = "index.html"

// State is a step of the build state machine.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRendering
	StateWriting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRendering:
		return "rendering"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options are all inputs of one build.
type Options struct {
	// ShellPath is the shell template file.
	ShellPath string
	// Marker overrides shell.DefaultMarker.
	Marker string
	// Factory builds the tree to render.
	Factory component.Factory
	// OutputDir is cleared and receives the artifact.
	OutputDir string
	// OutputFile is the document name, DefaultOutputFile when empty.
	OutputFile string
	// Manifest also writes manifest.yaml listing every file and its digest.
	Manifest bool
}

func (o Options) withDefaults() Options {
	if o.OutputFile == "" {
		o.OutputFile = DefaultOutputFile
	}
	if o.Marker == "" {
		o.Marker = shell.DefaultMarker
	}
	return o
}

// Validate checks that the options are complete.
func (o Options) Validate() error {
	switch {
	case o.ShellPath == "":
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "shell path is required")
	case o.Factory == nil:
		return errors.NewValidationError(errors.ErrCodeValidationFailed, "tree factory is required")
	case o.OutputFile == ManifestFile:
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("output file cannot be named %s", ManifestFile))
	case o.OutputFile != "" && (o.OutputFile != filepath.Base(o.OutputFile) || o.OutputFile == ".." || o.OutputFile == "."):
		return errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("output file %q must be a plain file name", o.OutputFile))
	}
	return nil
}

// Result describes a finished build.
type Result struct {
	// OutputPath is the Final Document's path.
	OutputPath string
	// Files are the names written into the output directory, sorted.
	Files []string
	Bytes int
	// Hash is the hex SHA-256 of the Final Document.
	Hash  string
	State State
}

// Orchestrator runs builds and records their state transitions.
type Orchestrator struct {
	renderer *renderer.Renderer
	logger   logging.Logger
	recorder *metrics.Recorder

	mu          sync.Mutex
	state       State
	transitions []State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRenderer sets the renderer used for the static render.
func WithRenderer(r *renderer.Renderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRecorder counts builds by outcome.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = rec }
}

// NewOrchestrator creates an idle Orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		renderer: renderer.New(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("build")
	return o
}

// Build runs one build with a default Orchestrator.
func Build(ctx context.Context, opts Options) (*Result, error) {
	return NewOrchestrator().Run(ctx, opts)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transitions returns the states entered by the last run, in order.
func (o *Orchestrator) Transitions() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.transitions)
}

func (o *Orchestrator) enter(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
	o.transitions = append(o.transitions, s)
}

// Run executes a build.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	o.mu.Lock()
	o.state = StateIdle
	o.transitions = []State{StateIdle}
	o.mu.Unlock()

	perf := logging.StartOperation(o.logger, "build")
	res, err := o.run(ctx, opts.withDefaults())
	o.recorder.ObserveBuild(err)
	if err != nil {
		o.enter(StateFailed)
		perf.EndWithError(ctx, err, "output_dir", opts.OutputDir)
		return nil, err
	}
	o.enter(StateDone)
	res.State = StateDone
	perf.End(ctx, "output", res.OutputPath, "bytes", res.Bytes, "files", len(res.Files))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.enter(StatePreparing)
	tmpl, err := shell.LoadWithMarker(opts.ShellPath, opts.Marker)
	if err != nil {
		return nil, err
	}
	if _, err := checkOutputDir(opts.OutputDir, opts.ShellPath); err != nil {
		return nil, err
	}

	o.enter(StateRendering)
	tree, err := renderer.BuildTree(ctx, opts.Factory)
	if err != nil {
		return nil, err
	}
	markup, err := o.renderer.Render(ctx, tree, renderer.ModeStatic)
	if err != nil {
		return nil, err
	}
	doc, err := tmpl.Inject(markup)
	if err != nil {
		return nil, err
	}

	o.enter(StateWriting)
	dir, err := prepareOutputDir(opts.OutputDir, opts.ShellPath)
	if err != nil {
		return nil, err
	}
	o.logger.Debug(ctx, "Output directory prepared", "dir", dir)
	path := filepath.Join(dir, opts.OutputFile)
	if err := writeFile(path, doc); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(doc))
	res := &Result{
		OutputPath: path,
		Files:      []string{opts.OutputFile},
		Bytes:      len(doc),
		Hash:       hex.EncodeToString(sum[:]),
	}

	if opts.Manifest {
		if err := writeManifest(dir, []ManifestEntry{{Name: opts.OutputFile, SHA256: res.Hash, Size: len(doc)}}); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, ManifestFile)
	}
	slices.Sort(res.Files)
	return res, nil
}
