package renderer

import (
	"strings"

	"github.com/a-h/templ"
)

var newlineEaters = map[string]bool{"pre": true, "textarea": true, "listing": true}

// writeNodes serialises resolved nodes. Evaluation has already validated
// tags, attribute names and raw-text content, so writing cannot fail.
func writeNodes(b *strings.Builder, nodes []VNode) {
	for i := range nodes {
		writeNode(b, &nodes[i], false)
	}
}

func writeNode(b *strings.Builder, n *VNode, rawText bool) {
	switch n.Type {
	case VText:
		if rawText {
			b.WriteString(n.Text)
			return
		}
		b.WriteString(templ.EscapeString(n.Text))
	case VRaw:
		b.WriteString(n.Text)
	case VElement:
		b.WriteByte('<')
		b.WriteString(n.Tag)
		for _, a := range n.Attrs {
			b.WriteByte(' ')
			b.WriteString(a.Name)
			b.WriteString(`="`)
			b.WriteString(templ.EscapeString(a.Value))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		if voidElements[n.Tag] {
			return
		}
		raw := rawTextElements[n.Tag]
		// Parsers drop one newline directly after these start tags.
		if newlineEaters[n.Tag] && len(n.Children) > 0 && n.Children[0].Type == VText &&
			strings.HasPrefix(n.Children[0].Text, "\n") {
			b.WriteByte('\n')
		}
		for i := range n.Children {
			writeNode(b, &n.Children[i], raw)
		}
		b.WriteString("</")
		b.WriteString(n.Tag)
		b.WriteByte('>')
	}
}

// Markup serialises nodes produced by Evaluate.
func Markup(nodes []VNode) string {
	var b strings.Builder
	writeNodes(&b, nodes)
	return b.String()
}
