package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/shell"
)

func TestRequestRendererRender(t *testing.T) {
	rr := staticPages(t, nil)

	doc, err := rr.Render(context.Background())
	require.NoError(t, err)
	assert.Contains(t, doc, `<div id="root"><div data-hk="0">`)
	assert.Contains(t, doc, `data-hs="{&#34;Counter.count&#34;:0}"`)
}

func TestRequestRendererConcurrent(t *testing.T) {
	rr := staticPages(t, nil)
	want, err := rr.Render(context.Background())
	require.NoError(t, err)

	var g errgroup.Group
	docs := make([]string, 32)
	for i := range docs {
		g.Go(func() error {
			doc, err := rr.Render(context.Background())
			docs[i] = doc
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, doc := range docs {
		assert.Equal(t, want, doc)
	}
}

func TestRequestRendererErrors(t *testing.T) {
	dir := t.TempDir()
	collide := filepath.Join(dir, "collide.html")
	require.NoError(t, os.WriteFile(collide, []byte(`<div id="root"><!--ROOT--></div>`), 0o600))

	tests := []struct {
		name    string
		shells  shell.Source
		factory component.Factory
		code    string
	}{
		{
			name:    "missing shell",
			shells:  shell.NewFileSource(filepath.Join(dir, "nope.html"), ""),
			factory: component.Static(page()),
			code:    errors.ErrCodeShellUnreadable,
		},
		{
			name:   "failing factory",
			shells: shell.NewFileSource(collide, ""),
			factory: func(context.Context) (component.Node, error) {
				panic("no tree")
			},
			code: errors.ErrCodeFactoryFailed,
		},
		{
			name:    "invalid tree",
			shells:  shell.NewFileSource(collide, ""),
			factory: component.Static(component.El("bad tag", nil)),
			code:    errors.ErrCodeInvalidTag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequestRenderer(tt.shells, tt.factory, nil).Render(context.Background())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestRequestRendererPicksUpShellChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte(`<main id="root"><!--ROOT--></main>`), 0o600))
	cached := shell.NewCachedSource(path, "")
	rr := NewRequestRenderer(cached, component.Static(component.Text("hi")), nil)

	doc, err := rr.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `<main id="root">hi</main>`, doc)

	require.NoError(t, os.WriteFile(path, []byte(`<section id="root"><!--ROOT--></section>`), 0o600))
	doc, err = rr.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `<main id="root">hi</main>`, doc, "cached until invalidated")

	cached.Invalidate()
	doc, err = rr.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `<section id="root">hi</section>`, doc)
}

func TestSecurityHeaders(t *testing.T) {
	assert.Equal(t,
		"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; "+
			"connect-src 'self'; object-src 'none'; frame-ancestors 'none'; base-uri 'self'",
		buildCSPHeader(ProductionSecurityConfig().CSP))
	assert.Contains(t, buildCSPHeader(DevelopmentSecurityConfig().CSP), "script-src 'self' 'unsafe-inline'")
}
