package renderer

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/metrics"
)

func hello() component.Node {
	return component.El("div", nil,
		component.El("h1", nil, component.Text("Hello")),
		component.El("p", nil, component.Text("This is SSG")),
	)
}

func counter() *component.Definition {
	return component.Define("Counter", func(s *component.Scope, _ component.Props) (component.Node, error) {
		count := s.State("count", 0)
		n, _ := component.Value[int](count)
		return component.El("button", component.Attrs{"type": "button"}, component.Textf("Count: %d", n)).
			On("click", func(context.Context, component.Event) error {
				count.Set(n + 1)
				return nil
			}), nil
	}, component.CapState)
}

func TestRenderStaticNestedTree(t *testing.T) {
	out, err := Render(hello(), ModeStatic)
	require.NoError(t, err)
	assert.Equal(t, `<div><h1>Hello</h1><p>This is SSG</p></div>`, out)
}

func TestRenderMarkupRules(t *testing.T) {
	testCases := []struct {
		name     string
		tree     component.Node
		expected string
	}{
		{
			name:     "escapes text",
			tree:     component.El("p", nil, component.Text(`<b>&"x"</b>`)),
			expected: `<p>&lt;b&gt;&amp;&#34;x&#34;&lt;/b&gt;</p>`,
		},
		{
			name:     "escapes attribute values",
			tree:     component.El("a", component.Attrs{"title": `"quoted" & <tag>`}),
			expected: `<a title="&#34;quoted&#34; &amp; &lt;tag&gt;"></a>`,
		},
		{
			name:     "sorts attributes",
			tree:     component.El("div", component.Attrs{"id": "x", "class": "c", "aria-label": "l"}),
			expected: `<div aria-label="l" class="c" id="x"></div>`,
		},
		{
			name:     "lowercases names",
			tree:     component.El("DIV", component.Attrs{"ID": "x"}),
			expected: `<div id="x"></div>`,
		},
		{
			name:     "void element",
			tree:     component.El("p", nil, component.Text("a"), component.El("br", nil), component.Text("b")),
			expected: `<p>a<br>b</p>`,
		},
		{
			name:     "script content is raw",
			tree:     component.El("script", nil, component.Text(`if (a < b && c) {}`)),
			expected: `<script>if (a < b && c) {}</script>`,
		},
		{
			name:     "group splices children",
			tree:     component.El("ul", nil, component.Group(component.El("li", nil), component.El("li", nil))),
			expected: `<ul><li></li><li></li></ul>`,
		},
		{
			name:     "empty renders nothing",
			tree:     component.El("div", nil, component.Empty(), component.Text("")),
			expected: `<div></div>`,
		},
		{
			name:     "embed is written verbatim",
			tree:     component.El("footer", nil, component.Embed(templ.Raw(`<small>&copy; 2026</small>`))),
			expected: `<footer><small>&copy; 2026</small></footer>`,
		},
		{
			name:     "top level empty",
			tree:     component.Empty(),
			expected: ``,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Render(tc.tree, ModeStatic)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	panics := component.Define("Boom", func(*component.Scope, component.Props) (component.Node, error) {
		panic("kaboom")
	})
	fails := component.Define("Fails", func(*component.Scope, component.Props) (component.Node, error) {
		return component.Node{}, stderrors.New("no data")
	})
	undeclared := component.Define("Sneaky", func(s *component.Scope, _ component.Props) (component.Node, error) {
		s.State("x", 1)
		return component.Text("x"), nil
	})

	deep := component.Text("leaf")
	for i := 0; i < 10; i++ {
		deep = component.El("div", nil, deep)
	}

	testCases := []struct {
		name string
		tree component.Node
		opts []Option
		code string
	}{
		{"component panic", component.C(panics, nil), nil, errors.ErrCodeComponentPanic},
		{"component error", component.El("div", nil, component.C(fails, nil)), nil, errors.ErrCodeComponentFailed},
		{"undeclared capability", component.C(undeclared, nil), nil, errors.ErrCodeCapabilityMissing},
		{
			"unsupplied capability",
			component.C(counter(), nil),
			[]Option{WithEnvironment(component.NewEnvironment(nil, nil))},
			errors.ErrCodeCapabilityMissing,
		},
		{"invalid tag", component.El("di v", nil), nil, errors.ErrCodeInvalidTag},
		{"invalid attribute", component.El("div", component.Attrs{`on"x`: "1"}), nil, errors.ErrCodeInvalidAttribute},
		{"reserved attribute", component.El("div", component.Attrs{"data-hk": "9"}), nil, errors.ErrCodeInvalidAttribute},
		{"duplicate attribute", component.El("div", component.Attrs{"id": "a", "ID": "b"}), nil, errors.ErrCodeInvalidAttribute},
		{"void children", component.El("img", nil, component.Text("x")), nil, errors.ErrCodeVoidChildren},
		{"raw text escape", component.El("script", nil, component.Text("</SCRIPT><b>")), nil, errors.ErrCodeRawTextEscape},
		{"element in script", component.El("style", nil, component.El("b", nil)), nil, errors.ErrCodeInvalidNode},
		{"nil definition", component.Node{Kind: component.KindComposite}, nil, errors.ErrCodeInvalidNode},
		{"nil embed", component.Node{Kind: component.KindEmbed}, nil, errors.ErrCodeInvalidNode},
		{"max depth", deep, []Option{WithMaxDepth(5)}, errors.ErrCodeMaxDepth},
		{"reserved token", component.Embed(templ.Raw(`<!--ROOT-->`)), nil, errors.ErrCodeReservedToken},
		{
			"embed failure",
			component.Embed(templ.ComponentFunc(func(context.Context, io.Writer) error { return stderrors.New("bad") })),
			nil,
			errors.ErrCodeEmbedFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts...).Render(context.Background(), tc.tree, ModeStatic)
			require.Error(t, err)
			assert.True(t, errors.IsRenderError(err), "got %T: %v", err, err)
			assert.True(t, errors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestRenderErrorNamesComponent(t *testing.T) {
	boom := component.Define("Boom", func(*component.Scope, component.Props) (component.Node, error) {
		panic("kaboom")
	})
	_, err := Render(component.El("main", nil, component.C(boom, nil)), ModeStatic)
	require.Error(t, err)

	var re *errors.Error
	require.True(t, stderrors.As(err, &re))
	assert.Equal(t, "Boom", re.Component)
	assert.Equal(t, "0.0", re.Path)
}

func TestRenderInteractive(t *testing.T) {
	tree := component.El("div", nil, component.C(counter(), nil))

	out, err := Render(tree, ModeInteractive)
	require.NoError(t, err)
	assert.Equal(t,
		`<div data-hk="0"><button data-hc="Counter" data-he="click" data-hk="0.0" data-hs="{&#34;Counter.count&#34;:0}" type="button">Count: 0</button></div>`,
		out)

	static, err := Render(tree, ModeStatic)
	require.NoError(t, err)
	assert.Equal(t, `<div><button type="button">Count: 0</button></div>`, static)
}

func TestRenderNestedComposites(t *testing.T) {
	inner := counter()
	outer := component.Define("Panel", func(*component.Scope, component.Props) (component.Node, error) {
		return component.C(inner, nil), nil
	})

	nodes, err := New().Evaluate(context.Background(), component.C(outer, nil), ModeInteractive, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, []string{"Panel", "Counter"}, nodes[0].Components)

	hc, ok := nodes[0].Attr(AttrComponent)
	require.True(t, ok)
	assert.Equal(t, "Panel Counter", hc)
}

func TestEvaluateMergesText(t *testing.T) {
	tree := component.El("p", nil,
		component.Text("a"),
		component.Group(component.Text("b"), component.Text("c")),
		component.El("br", nil),
		component.Text("d"),
	)
	nodes, err := New().Evaluate(context.Background(), tree, ModeStatic, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	children := nodes[0].Children
	require.Len(t, children, 3)
	assert.Equal(t, "abc", children[0].Text)
	assert.Equal(t, "0.0", children[0].Key)
	assert.Equal(t, "br", children[1].Tag)
	assert.Equal(t, "0.1", children[1].Key)
	assert.Equal(t, "d", children[2].Text)
}

func TestEvaluateRetainsState(t *testing.T) {
	tree := component.El("div", nil, component.C(counter(), nil))
	store := component.NewStore()
	r := New()
	ctx := context.Background()

	nodes, err := r.Evaluate(ctx, tree, ModeInteractive, store)
	require.NoError(t, err)
	button := nodes[0].Children[0]
	require.NoError(t, button.Handlers["click"](ctx, component.Event{Type: "click", Key: button.Key}))

	nodes, err = r.Evaluate(ctx, tree, ModeInteractive, store)
	require.NoError(t, err)
	assert.Equal(t, "Count: 1", nodes[0].Children[0].Children[0].Text)
	assert.Equal(t, 1, nodes[0].Children[0].State["Counter.count"])
}

func TestRenderContextValue(t *testing.T) {
	greeting := component.Define("Greeting", func(s *component.Scope, _ component.Props) (component.Node, error) {
		name, _ := s.Value("user").(string)
		return component.El("span", nil, component.Text("Hi "+name)), nil
	}, component.CapContext)

	env := component.NewEnvironment(component.KnownCapabilities, map[string]any{"user": "Ada"})
	out, err := New(WithEnvironment(env)).Render(context.Background(), component.C(greeting, nil), ModeStatic)
	require.NoError(t, err)
	assert.Equal(t, `<span>Hi Ada</span>`, out)
}

func TestRenderIsDeterministic(t *testing.T) {
	tree := component.El("section", component.Attrs{"b": "2", "a": "1", "c": "3"},
		component.C(counter(), nil),
		component.El("ul", nil, component.El("li", component.Attrs{"z": "", "y": ""})),
	)
	first, err := Render(tree, ModeInteractive)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Render(tree, ModeInteractive)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

var hydrationAttr = regexp.MustCompile(` data-h[kcse]="[^"]*"`)

func TestInteractiveStripsToStatic(t *testing.T) {
	tree := component.El("main", component.Attrs{"id": "app"}, hello(), component.C(counter(), nil))

	static, err := Render(tree, ModeStatic)
	require.NoError(t, err)
	interactive, err := Render(tree, ModeInteractive)
	require.NoError(t, err)

	assert.Greater(t, len(interactive), len(static))
	assert.Equal(t, static, hydrationAttr.ReplaceAllString(interactive, ""))
}

func TestRenderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Render(ctx, hello(), ModeStatic)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderRecordsMetrics(t *testing.T) {
	rec := metrics.New()
	r := New(WithRecorder(rec))

	_, err := r.Render(context.Background(), hello(), ModeStatic)
	require.NoError(t, err)
	_, err = r.Render(context.Background(), component.El("bad tag", nil), ModeInteractive)
	require.Error(t, err)

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "isomorph_renders_total" {
			found = true
			assert.Len(t, f.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}

func TestTemplAdapter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Templ(hello(), ModeStatic).Render(context.Background(), &buf))
	assert.Equal(t, `<div><h1>Hello</h1><p>This is SSG</p></div>`, buf.String())

	err := Templ(component.El("img", nil, component.Text("x")), ModeStatic).Render(context.Background(), &buf)
	assert.True(t, errors.HasCode(err, errors.ErrCodeVoidChildren))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Interactive")
	require.NoError(t, err)
	assert.Equal(t, ModeInteractive, m)
	assert.Equal(t, "interactive", m.String())

	m, err = ParseMode("static")
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, m)

	_, err = ParseMode("hybrid")
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(Mode(7).String(), "mode("))
}

func TestMarkupMatchesRender(t *testing.T) {
	nodes, err := New().Evaluate(context.Background(), hello(), ModeStatic, nil)
	require.NoError(t, err)
	assert.Equal(t, `<div><h1>Hello</h1><p>This is SSG</p></div>`, Markup(nodes))
	assert.True(t, IsVoid("br"))
	assert.False(t, IsVoid("div"))
}

func TestBuildTree(t *testing.T) {
	ctx := context.Background()

	tree, err := BuildTree(ctx, component.Static(component.Text("ok")))
	require.NoError(t, err)
	assert.Equal(t, "ok", tree.Text)

	tests := []struct {
		name    string
		factory component.Factory
	}{
		{"nil factory", nil},
		{"failing factory", func(context.Context) (component.Node, error) { return component.Node{}, stderrors.New("no data") }},
		{"panicking factory", func(context.Context) (component.Node, error) { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildTree(ctx, tt.factory)
			require.Error(t, err)
			assert.True(t, errors.IsRenderError(err))
			assert.True(t, errors.HasCode(err, errors.ErrCodeFactoryFailed))
		})
	}

	typed := errors.NewTemplateError(errors.ErrCodeMarkerMissing, "no marker")
	_, err = BuildTree(ctx, func(context.Context) (component.Node, error) { return component.Node{}, typed })
	assert.Same(t, typed, err)
}
