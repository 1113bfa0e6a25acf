// Package component defines the Component Tree consumed by the renderer and
// the hydration bootstrapper.
//
// A tree is built from Node values. Node is a tagged variant: Kind says which
// of the fields are meaningful, and the renderer resolves every kind in a
// single evaluation function. Trees are constructed by the application layer
// and are treated as immutable by this module; constructing a tree must not
// have side effects, so the same factory can serve concurrent requests.
package component

import (
	"context"
	"fmt"
	"maps"

	"github.com/a-h/templ"
)

// RootID is the id of the element that hosts the rendered tree in the shell.
const RootID = "root"

// Kind discriminates the Node variant.
type Kind int

const (
	// KindEmpty renders nothing. It is the zero value.
	KindEmpty Kind = iota
	// KindText is escaped character data.
	KindText
	// KindIntrinsic is an HTML element: Tag, Attrs, Children, Handlers.
	KindIntrinsic
	// KindComposite is a component reference: Component, Props.
	KindComposite
	// KindEmbed is an opaque templ component rendered as a fragment.
	KindEmbed
	// KindGroup contributes its Children to the parent without a wrapper.
	KindGroup
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindIntrinsic:
		return "intrinsic"
	case KindComposite:
		return "composite"
	case KindEmbed:
		return "embed"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Attrs maps attribute names to values.
type Attrs map[string]string

// Props are the inputs of a composite node.
type Props map[string]any

// Node is one node of a Component Tree.
type Node struct {
	Kind Kind

	// Text is the content of a KindText node.
	Text string

	// Tag, Attrs, Children and Handlers describe a KindIntrinsic node.
	// Children is also used by KindGroup.
	Tag      string
	Attrs    Attrs
	Children []Node
	Handlers map[string]Handler

	// Component and Props describe a KindComposite node.
	Component *Definition
	Props     Props

	// Embed is the templ component of a KindEmbed node.
	Embed templ.Component
}

// El creates an intrinsic node.
func El(tag string, attrs Attrs, children ...Node) Node {
	return Node{Kind: KindIntrinsic, Tag: tag, Attrs: attrs, Children: children}
}

// Text creates a text node.
func Text(s string) Node {
	return Node{Kind: KindText, Text: s}
}

// Textf creates a text node from a format string.
func Textf(format string, args ...any) Node {
	return Text(fmt.Sprintf(format, args...))
}

// C creates a composite node referencing def.
func C(def *Definition, props Props) Node {
	return Node{Kind: KindComposite, Component: def, Props: props}
}

// Embed wraps a templ component.
func Embed(c templ.Component) Node {
	return Node{Kind: KindEmbed, Embed: c}
}

// Group creates a node whose children are spliced into the parent.
func Group(children ...Node) Node {
	return Node{Kind: KindGroup, Children: children}
}

// Empty returns a node that renders nothing.
func Empty() Node {
	return Node{}
}

// On returns a copy of n with handler attached for event. Handlers only exist
// on intrinsic nodes; On panics for any other kind since that is a tree
// construction bug.
func (n Node) On(event string, handler Handler) Node {
	if n.Kind != KindIntrinsic {
		panic(fmt.Sprintf("component: On(%q) on %s node", event, n.Kind))
	}
	handlers := make(map[string]Handler, len(n.Handlers)+1)
	maps.Copy(handlers, n.Handlers)
	handlers[event] = handler
	n.Handlers = handlers
	return n
}

// Factory builds a Component Tree. Implementations must be free of side
// effects.
type Factory func(ctx context.Context) (Node, error)

// Static returns a Factory that always yields n.
func Static(n Node) Factory {
	return func(context.Context) (Node, error) {
		return n, nil
	}
}
