// Package hydrate adopts server-rendered markup on the client side.
//
// A Bootstrapper evaluates the same Component Tree the server rendered and
// walks the delivered DOM alongside it. Matching nodes are kept; differing
// text and attributes are patched in place; nodes of the wrong kind or tag are
// replaced; surplus nodes are removed and missing ones appended. Every
// correction is reported as a HydrationMismatchWarning, after which the DOM
// equals a fresh client render.
package hydrate

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/renderer"
)

// MismatchHandler observes corrections made while attaching.
type MismatchHandler func(ctx context.Context, w errors.HydrationMismatchWarning)

// Bootstrapper attaches trees to DOM roots.
type Bootstrapper struct {
	renderer   *renderer.Renderer
	logger     logging.Logger
	onMismatch MismatchHandler
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithRenderer sets the renderer used to evaluate trees.
func WithRenderer(r *renderer.Renderer) Option {
	return func(b *Bootstrapper) { b.renderer = r }
}

// WithLogger sets the logger mismatches are reported to.
func WithLogger(l logging.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// WithMismatchHandler registers a callback for every correction.
func WithMismatchHandler(h MismatchHandler) Option {
	return func(b *Bootstrapper) { b.onMismatch = h }
}

// New creates a Bootstrapper.
func New(opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		renderer: renderer.New(),
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("hydrate")
	return b
}

// Root is a hydrated DOM subtree bound to its tree. Event dispatch and the
// re-render it triggers are serialised.
type Root struct {
	b     *Bootstrapper
	node  *html.Node
	tree  component.Node
	store *component.Store

	mu       sync.Mutex
	handlers map[string]map[string]component.Handler
	warnings *errors.WarningCollector
}

// Boot finds the element with id component.RootID in doc and attaches tree
// to it.
func Boot(ctx context.Context, doc *html.Node, tree component.Node, opts ...Option) (*Root, error) {
	var root *html.Node
	if doc != nil {
		root = findByID(doc, component.RootID)
	}
	if root == nil {
		return nil, errors.NewHydrationError(errors.ErrCodeRootNotFound,
			fmt.Sprintf("document has no element with id %q", component.RootID))
	}
	return New(opts...).Attach(ctx, tree, root)
}

// Attach reconciles root's children with tree and binds its handlers. It
// fails only when the tree cannot be evaluated.
func (b *Bootstrapper) Attach(ctx context.Context, tree component.Node, root *html.Node) (*Root, error) {
	if root == nil || root.Type != html.ElementNode {
		return nil, errors.NewHydrationError(errors.ErrCodeRootNotFound, "hydration root must be an element")
	}

	r := &Root{
		b:        b,
		node:     root,
		tree:     tree,
		store:    component.NewStore(),
		warnings: errors.NewWarningCollector(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sync(ctx, true); err != nil {
		return nil, err
	}
	if n := r.warnings.Len(); n > 0 {
		b.logger.Info(ctx, "Hydration corrected delivered markup", "corrections", n)
	}
	return r, nil
}

// sync evaluates the tree against the retained store and reconciles the DOM.
// Corrections are reported only when report is set.
func (r *Root) sync(ctx context.Context, report bool) error {
	nodes, err := r.b.renderer.Evaluate(ctx, r.tree, renderer.ModeInteractive, r.store)
	if err != nil {
		return err
	}
	r.handlers = collectHandlers(nodes, nil)

	warn := func(w errors.HydrationMismatchWarning) {
		if !report {
			return
		}
		r.warnings.Add(w)
		r.b.logger.Warn(ctx, &w, "Hydration mismatch", "path", w.Path, "kind", string(w.Kind))
		if r.b.onMismatch != nil {
			r.b.onMismatch(ctx, w)
		}
	}

	expected, err := expectedNodes(nodes, r.node)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "cannot build expected DOM", err)
	}

	defer func() {
		if p := recover(); p != nil {
			fresh, err := expectedNodes(nodes, r.node)
			if err != nil {
				return
			}
			rebuild(r.node, fresh)
			warn(errors.HydrationMismatchWarning{
				Kind:   errors.MismatchRebuild,
				Actual: fmt.Sprint(p),
			})
		}
	}()
	rc := &reconciler{warn: warn}
	rc.children(r.node, expected, "", true)
	return nil
}

func collectHandlers(nodes []renderer.VNode, into map[string]map[string]component.Handler) map[string]map[string]component.Handler {
	if into == nil {
		into = make(map[string]map[string]component.Handler)
	}
	for _, n := range nodes {
		if len(n.Handlers) > 0 {
			into[n.Key] = n.Handlers
		}
		collectHandlers(n.Children, into)
	}
	return into
}

// Dispatch runs the handler bound to event on the element with hydration key
// key, then re-renders with the retained state and patches the DOM.
func (r *Root) Dispatch(ctx context.Context, key, event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handlers[key][event]
	if !ok {
		return errors.NewHydrationError(errors.ErrCodeUnknownHandler,
			fmt.Sprintf("no %q handler bound at %s", event, key)).WithPath(key)
	}
	if err := h(ctx, component.Event{Type: event, Key: key}); err != nil {
		return fmt.Errorf("%s handler at %s: %w", event, key, err)
	}
	return r.sync(ctx, false)
}

// Events lists the bound handlers as key to event names.
func (r *Root) Events() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.handlers))
	for key, hs := range r.handlers {
		for event := range hs {
			out[key] = append(out[key], event)
		}
		slices.Sort(out[key])
	}
	return out
}

// Warnings returns the corrections made when attaching.
func (r *Root) Warnings() []errors.HydrationMismatchWarning {
	return r.warnings.Warnings()
}

// Node returns the root element.
func (r *Root) Node() *html.Node {
	return r.node
}

// HTML serialises the root's children.
func (r *Root) HTML() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for c := r.node.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}
