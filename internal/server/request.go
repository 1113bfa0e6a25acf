package server

import (
	"context"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/renderer"
	"github.com/conneroisu/isomorph/internal/shell"
)

// RequestRenderer produces the interactive Final Document for one request.
// It keeps no per-request state, so one value serves concurrent requests;
// every call evaluates the tree against a fresh state store.
type RequestRenderer struct {
	shells   shell.Source
	factory  component.Factory
	renderer *renderer.Renderer
}

// NewRequestRenderer creates a RequestRenderer. A nil renderer selects
// renderer.New().
func NewRequestRenderer(shells shell.Source, factory component.Factory, r *renderer.Renderer) *RequestRenderer {
	if r == nil {
		r = renderer.New()
	}
	return &RequestRenderer{shells: shells, factory: factory, renderer: r}
}

// Render loads the shell, renders the tree in interactive mode and injects
// it. Shell problems are template errors; everything the tree does wrong is
// a render error.
func (rr *RequestRenderer) Render(ctx context.Context) (string, error) {
	tmpl, err := rr.shells.Template(ctx)
	if err != nil {
		return "", err
	}
	tree, err := renderer.BuildTree(ctx, rr.factory)
	if err != nil {
		return "", err
	}
	markup, err := rr.renderer.Render(ctx, tree, renderer.ModeInteractive)
	if err != nil {
		return "", err
	}
	return tmpl.Inject(markup)
}
