// Package site holds the demo application tree. The build command, the
// server and the hydrate command all render Page, so the markup they
// produce always agrees.
package site

import (
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/conneroisu/isomorph/internal/component"
)

// NameKey is the host value Footer reads the site name from.
const NameKey = "site.name"

// Greeting renders a heading for props["name"].
var Greeting = component.Define("Greeting", func(_ *component.Scope, props component.Props) (component.Node, error) {
	name, ok := props["name"].(string)
	if !ok || name == "" {
		return component.Node{}, fmt.Errorf("greeting needs a name, got %v", props["name"])
	}
	return component.El("h1", nil, component.Textf("Hello, %s", name)), nil
})

// Counter is a stateful click counter starting at props["start"].
var Counter = component.Define("Counter", func(s *component.Scope, props component.Props) (component.Node, error) {
	start, _ := props["start"].(int)
	count := s.State("count", start)
	n, _ := component.Value[int](count)

	return component.El("div", component.Attrs{"class": "counter"},
		component.El("output", nil, component.Textf("Count: %d", n)),
		component.El("button", component.Attrs{"type": "button"}, component.Text("+1")).
			On("click", func(context.Context, component.Event) error {
				count.Set(n + 1)
				return nil
			}),
		component.El("button", component.Attrs{"type": "button"}, component.Text("Reset")).
			On("click", func(context.Context, component.Event) error {
				count.Set(start)
				return nil
			}),
	), nil
}, component.CapState)

// Footer shows the host-supplied site name next to a templ fragment.
var Footer = component.Define("Footer", func(s *component.Scope, _ component.Props) (component.Node, error) {
	name, _ := s.Value(NameKey).(string)
	if name == "" {
		name = "isomorph"
	}
	return component.El("footer", nil,
		component.Embed(templ.Raw(`<small>&copy; 2026</small>`)),
		component.Textf(" %s", name),
	), nil
}, component.CapContext)

// Page is the tree factory of the demo site.
func Page(context.Context) (component.Node, error) {
	return component.El("main", component.Attrs{"class": "page"},
		component.C(Greeting, component.Props{"name": "isomorph"}),
		component.El("p", nil, component.Text("Rendered once at build time, on every request, and again in the browser.")),
		component.C(Counter, component.Props{"start": 0}),
		component.C(Footer, nil),
	), nil
}
