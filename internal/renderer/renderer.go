// Package renderer converts a Component Tree into HTML.
//
// Rendering happens in two steps. Evaluate resolves composites into a tree
// of VNodes (elements, text and raw fragments) with hydration keys already
// assigned; the markup writer then serialises that tree. Both steps are
// deterministic: the same tree and mode always produce the same bytes.
//
// ModeStatic output carries no hydration metadata and is what static builds
// write. ModeInteractive adds data-h* attributes describing keys, component
// boundaries, initial state and bound events; it is the markup the hydrate
// package reconciles against.
package renderer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/metrics"
	"github.com/conneroisu/isomorph/internal/shell"
)

// Mode selects the flavour of markup.
type Mode int

const (
	// ModeStatic omits hydration metadata.
	ModeStatic Mode = iota
	// ModeInteractive emits markup the hydration bootstrapper can adopt.
	ModeInteractive
)

// String returns the mode name used in flags, config and metrics.
func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "static":
		return ModeStatic, nil
	case "interactive":
		return ModeInteractive, nil
	default:
		return ModeStatic, fmt.Errorf("unknown render mode %q", s)
	}
}

// DefaultMaxDepth bounds tree nesting, composites included.
const DefaultMaxDepth = 256

// Renderer renders trees with a fixed environment. It holds no per-render
// state and is safe for concurrent use.
type Renderer struct {
	env      component.Environment
	maxDepth int
	reserved []string
	logger   logging.Logger
	recorder *metrics.Recorder
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithEnvironment sets the capabilities and values supplied to components.
func WithEnvironment(env component.Environment) Option {
	return func(r *Renderer) { r.env = env }
}

// WithMaxDepth sets the nesting limit.
func WithMaxDepth(depth int) Option {
	return func(r *Renderer) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithReserved replaces the tokens rendered markup must never contain.
func WithReserved(tokens ...string) Option {
	return func(r *Renderer) { r.reserved = tokens }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithRecorder records render counts and durations.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Renderer) { r.recorder = rec }
}

// New creates a Renderer. By default every known capability is supplied and
// the shell marker is reserved.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		env:      component.DefaultEnvironment(),
		maxDepth: DefaultMaxDepth,
		reserved: []string{shell.DefaultMarker},
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders tree with a default Renderer.
func Render(tree component.Node, mode Mode) (string, error) {
	return New().Render(context.Background(), tree, mode)
}

// Render converts tree to HTML. Failures are render errors; a component that
// panics or uses a capability it may not use fails the render instead of the
// caller.
func (r *Renderer) Render(ctx context.Context, tree component.Node, mode Mode) (string, error) {
	start := time.Now()
	out, err := r.render(ctx, tree, mode)
	r.recorder.ObserveRender(mode.String(), time.Since(start), err)
	if err != nil {
		r.logger.Debug(ctx, "Render failed", "mode", mode.String(), "error", err.Error())
		return "", err
	}
	return out, nil
}

func (r *Renderer) render(ctx context.Context, tree component.Node, mode Mode) (string, error) {
	nodes, err := r.Evaluate(ctx, tree, mode, component.NewStore())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writeNodes(&b, nodes)
	out := b.String()

	for _, token := range r.reserved {
		if token != "" && strings.Contains(out, token) {
			return "", errors.NewRenderError(errors.ErrCodeReservedToken,
				fmt.Sprintf("rendered markup contains reserved token %s", token), nil)
		}
	}
	return out, nil
}

// Evaluate resolves tree into VNodes using store for component state. A
// fresh store yields initial state; the hydrate package passes a retained
// one so client-side state survives re-renders.
func (r *Renderer) Evaluate(ctx context.Context, tree component.Node, mode Mode, store *component.Store) ([]VNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if store == nil {
		store = component.NewStore()
	}

	ev := &evaluator{
		ctx:      ctx,
		env:      r.env,
		store:    store,
		maxDepth: r.maxDepth,
	}
	nodes, err := ev.resolve(tree, "0", "", 0)
	if err != nil {
		return nil, err
	}
	nodes = mergeText(nodes)
	assignKeys(nodes, "")
	if mode == ModeInteractive {
		if err := annotate(nodes); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// BuildTree calls factory, converting its failures and panics into render
// errors with code ERR_FACTORY_FAILED. Errors that are already typed pass
// through.
func BuildTree(ctx context.Context, factory component.Factory) (tree component.Node, err error) {
	if factory == nil {
		return component.Node{}, errors.NewRenderError(errors.ErrCodeFactoryFailed, "no tree factory", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewRenderError(errors.ErrCodeFactoryFailed, fmt.Sprintf("tree factory panicked: %v", r), nil)
		}
	}()
	tree, err = factory(ctx)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			return component.Node{}, err
		}
		return component.Node{}, errors.NewRenderError(errors.ErrCodeFactoryFailed, "tree factory failed", err)
	}
	return tree, nil
}

// Templ adapts tree to a templ.Component so it can be rendered by the templ
// runtime, for example through templ.Handler or inside a templ layout.
func Templ(tree component.Node, mode Mode, opts ...Option) templ.Component {
	r := New(opts...)
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out, err := r.Render(ctx, tree, mode)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	})
}
