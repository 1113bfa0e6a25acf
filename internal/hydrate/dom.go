package hydrate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/conneroisu/isomorph/internal/errors"
	"github.com/conneroisu/isomorph/internal/renderer"
)

// expectedNodes parses the markup of nodes in the context of parent. The
// result has the shape the parser gave the delivered document: implied
// elements such as tbody, foreign-content namespaces, adjusted attribute
// names and normalised newlines all match.
func expectedNodes(nodes []renderer.VNode, parent *html.Node) ([]*html.Node, error) {
	return html.ParseFragment(strings.NewReader(renderer.Markup(nodes)), parent)
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func detach(n *html.Node) *html.Node {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	return n
}

func isBlank(n *html.Node) bool {
	return n.Type == html.TextNode && strings.TrimSpace(n.Data) == ""
}

// reconciler patches a live DOM subtree towards an expected one.
type reconciler struct {
	warn func(errors.HydrationMismatchWarning)
}

func childPath(prefix string, i int) string {
	if prefix == "" {
		return strconv.Itoa(i)
	}
	return prefix + "." + strconv.Itoa(i)
}

// children reconciles parent's children with expected. At the hydration
// root, whitespace-only text at either edge comes from shell formatting and
// is dropped without a warning.
func (rc *reconciler) children(parent *html.Node, expected []*html.Node, prefix string, root bool) {
	actual := childNodes(parent)
	if root {
		for len(actual) > 0 && isBlank(actual[0]) && (len(expected) == 0 || expected[0].Type != html.TextNode) {
			parent.RemoveChild(actual[0])
			actual = actual[1:]
		}
		for len(actual) > 0 && isBlank(actual[len(actual)-1]) &&
			(len(expected) == 0 || expected[len(expected)-1].Type != html.TextNode) {
			parent.RemoveChild(actual[len(actual)-1])
			actual = actual[:len(actual)-1]
		}
	}

	for i, exp := range expected {
		path := childPath(prefix, i)
		if i >= len(actual) {
			parent.AppendChild(detach(exp))
			rc.warn(errors.HydrationMismatchWarning{
				Path: path, Kind: errors.MismatchMissing, Expected: describe(exp),
			})
			continue
		}
		rc.node(parent, actual[i], exp, path)
	}

	if len(actual) > len(expected) {
		for i, extra := range actual[len(expected):] {
			parent.RemoveChild(extra)
			rc.warn(errors.HydrationMismatchWarning{
				Path: childPath(prefix, len(expected)+i), Kind: errors.MismatchExtra, Actual: describe(extra),
			})
		}
	}
}

func (rc *reconciler) node(parent, act, exp *html.Node, path string) {
	switch {
	case act.Type == html.TextNode && exp.Type == html.TextNode:
		if norm.NFC.String(act.Data) != norm.NFC.String(exp.Data) {
			rc.warn(errors.HydrationMismatchWarning{
				Path: path, Kind: errors.MismatchText, Expected: exp.Data, Actual: act.Data,
			})
			act.Data = exp.Data
		}
	case act.Type == html.ElementNode && exp.Type == html.ElementNode &&
		act.Data == exp.Data && act.Namespace == exp.Namespace:
		if !sameAttrs(act.Attr, exp.Attr) {
			rc.warn(errors.HydrationMismatchWarning{
				Path: path, Kind: errors.MismatchAttributes,
				Expected: formatAttrs(exp.Attr), Actual: formatAttrs(act.Attr),
			})
			act.Attr = slices.Clone(exp.Attr)
		}
		rc.children(act, childNodes(exp), path, false)
	default:
		rc.warn(errors.HydrationMismatchWarning{
			Path: path, Kind: errors.MismatchReplaced, Expected: describe(exp), Actual: describe(act),
		})
		parent.InsertBefore(detach(exp), act)
		parent.RemoveChild(act)
	}
}

// rebuild discards root's children and installs expected.
func rebuild(root *html.Node, expected []*html.Node) {
	for c := root.FirstChild; c != nil; c = root.FirstChild {
		root.RemoveChild(c)
	}
	for _, n := range expected {
		root.AppendChild(detach(n))
	}
}

func attrKey(a html.Attribute) string {
	if a.Namespace != "" {
		return a.Namespace + ":" + a.Key
	}
	return a.Key
}

func sameAttrs(a, b []html.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	want := make(map[string]string, len(b))
	for _, attr := range b {
		want[attrKey(attr)] = attr.Val
	}
	for _, attr := range a {
		v, ok := want[attrKey(attr)]
		if !ok || v != attr.Val {
			return false
		}
	}
	return true
}

func formatAttrs(attrs []html.Attribute) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%q", attrKey(a), a.Val))
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}

func describe(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		if len(n.Attr) == 0 {
			return "<" + n.Data + ">"
		}
		return "<" + n.Data + " " + formatAttrs(n.Attr) + ">"
	case html.CommentNode:
		return "<!--" + n.Data + "-->"
	default:
		return fmt.Sprintf("node(%d)", n.Type)
	}
}

// findByID returns the first element below n whose id is id.
func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
