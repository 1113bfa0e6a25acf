package renderer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/conneroisu/isomorph/internal/component"
	"github.com/conneroisu/isomorph/internal/errors"
)

// VType discriminates resolved nodes.
type VType int

const (
	VElement VType = iota
	VText
	// VRaw is a pre-rendered HTML fragment from an embedded templ component.
	VRaw
)

// Attr is one attribute of a resolved element.
type Attr struct {
	Name  string
	Value string
}

// VNode is a node of the resolved tree: composites are gone, tags and
// attribute names are lower-case, attributes are sorted and adjacent text
// is merged.
type VNode struct {
	Type     VType
	Tag      string
	Attrs    []Attr
	Children []VNode
	// Text is the unescaped content of a VText node or the HTML of a VRaw node.
	Text string

	// Key is the hydration key: the dot-separated position path.
	Key string
	// Components lists, outermost first, the composites whose output starts
	// at this element.
	Components []string
	// State holds the state of those composites as "Component.key" entries.
	State    map[string]any
	Handlers map[string]component.Handler
}

// Attr returns the value of the named attribute.
func (v VNode) Attr(name string) (string, bool) {
	for _, a := range v.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Hydration attribute names emitted in interactive mode.
const (
	AttrKey       = "data-hk"
	AttrComponent = "data-hc"
	AttrState     = "data-hs"
	AttrEvents    = "data-he"
)

var (
	tagPattern   = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	attrPattern  = regexp.MustCompile(`^[a-z_:][a-z0-9_:.-]*$`)
	eventPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

	reservedAttrs = []string{AttrKey, AttrComponent, AttrState, AttrEvents}

	voidElements = map[string]bool{
		"area": true, "base": true, "br": true, "col": true, "embed": true,
		"hr": true, "img": true, "input": true, "link": true, "meta": true,
		"source": true, "track": true, "wbr": true,
	}
	rawTextElements = map[string]bool{"script": true, "style": true}
)

// IsVoid reports whether tag never has children or a closing tag.
func IsVoid(tag string) bool {
	return voidElements[tag]
}

type evaluator struct {
	ctx      context.Context
	env      component.Environment
	store    *component.Store
	maxDepth int
}

// resolve evaluates n. src is the position of n in the source tree and owner
// the instance path of the enclosing composite; together they identify
// composite instances independently of how text is merged later.
func (ev *evaluator) resolve(n component.Node, src, owner string, depth int) ([]VNode, error) {
	if depth > ev.maxDepth {
		return nil, errors.NewRenderError(errors.ErrCodeMaxDepth,
			fmt.Sprintf("tree nesting exceeds %d levels", ev.maxDepth), nil).WithPath(src)
	}

	switch n.Kind {
	case component.KindEmpty:
		return nil, nil
	case component.KindText:
		if n.Text == "" {
			return nil, nil
		}
		return []VNode{{Type: VText, Text: n.Text}}, nil
	case component.KindGroup:
		return ev.resolveChildren(n.Children, src, owner, depth+1)
	case component.KindIntrinsic:
		return ev.resolveIntrinsic(n, src, owner, depth)
	case component.KindComposite:
		return ev.resolveComposite(n, src, owner, depth)
	case component.KindEmbed:
		return ev.resolveEmbed(n, src)
	default:
		return nil, errors.NewRenderError(errors.ErrCodeInvalidNode,
			fmt.Sprintf("unknown node kind %s", n.Kind), nil).WithPath(src)
	}
}

func (ev *evaluator) resolveChildren(children []component.Node, src, owner string, depth int) ([]VNode, error) {
	var out []VNode
	for i, child := range children {
		nodes, err := ev.resolve(child, src+"."+strconv.Itoa(i), owner, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

func (ev *evaluator) resolveIntrinsic(n component.Node, src, owner string, depth int) ([]VNode, error) {
	tag := strings.ToLower(n.Tag)
	if !tagPattern.MatchString(tag) {
		return nil, errors.NewRenderError(errors.ErrCodeInvalidTag,
			fmt.Sprintf("invalid tag name %q", n.Tag), nil).WithPath(src)
	}
	if voidElements[tag] && len(n.Children) > 0 {
		return nil, errors.NewRenderError(errors.ErrCodeVoidChildren,
			fmt.Sprintf("void element <%s> cannot have children", tag), nil).WithPath(src)
	}

	attrs, err := normalizeAttrs(n.Attrs, src)
	if err != nil {
		return nil, err
	}

	children, err := ev.resolveChildren(n.Children, src, owner, depth+1)
	if err != nil {
		return nil, err
	}
	children = mergeText(children)

	if rawTextElements[tag] {
		if err := checkRawText(tag, children, src); err != nil {
			return nil, err
		}
	}

	var handlers map[string]component.Handler
	if len(n.Handlers) > 0 {
		handlers = make(map[string]component.Handler, len(n.Handlers))
		for event, h := range n.Handlers {
			if !eventPattern.MatchString(event) || h == nil {
				return nil, errors.NewRenderError(errors.ErrCodeInvalidNode,
					fmt.Sprintf("invalid handler for event %q", event), nil).WithPath(src)
			}
			handlers[event] = h
		}
	}

	return []VNode{{
		Type:     VElement,
		Tag:      tag,
		Attrs:    attrs,
		Children: children,
		Handlers: handlers,
	}}, nil
}

func (ev *evaluator) resolveComposite(n component.Node, src, owner string, depth int) ([]VNode, error) {
	def := n.Component
	if def == nil || def.Render == nil {
		return nil, errors.NewRenderError(errors.ErrCodeInvalidNode,
			"composite node has no component definition", nil).WithPath(src)
	}

	if err := component.CheckRequirements(def, ev.env); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeCapabilityMissing, "capability not supplied", err).
			WithComponent(def.Name).
			WithPath(src)
	}

	id := owner + "/" + def.Name + "@" + src
	scope := component.NewScope(def, ev.env, ev.store, id)

	out, err := callComponent(def, scope, n.Props)
	if err != nil {
		var re *errors.Error
		if stderrors.As(err, &re) && re.Type == errors.ErrorTypeRender {
			if re.Component == "" {
				re.WithComponent(def.Name)
			}
			if re.Path == "" {
				re.WithPath(src)
			}
			return nil, re
		}
		return nil, errors.NewRenderError(errors.ErrCodeComponentFailed, "component returned an error", err).
			WithComponent(def.Name).
			WithPath(src)
	}

	nodes, err := ev.resolve(out, src, id, depth+1)
	if err != nil {
		return nil, err
	}

	snapshot := scope.Snapshot()
	for i := range nodes {
		if nodes[i].Type != VElement {
			continue
		}
		nodes[i].Components = append([]string{def.Name}, nodes[i].Components...)
		if len(snapshot) > 0 {
			if nodes[i].State == nil {
				nodes[i].State = make(map[string]any, len(snapshot))
			}
			for k, v := range snapshot {
				nodes[i].State[def.Name+"."+k] = v
			}
		}
	}
	return nodes, nil
}

// callComponent runs def.Render, converting panics into render errors.
func callComponent(def *component.Definition, scope *component.Scope, props component.Props) (out component.Node, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if capErr, ok := r.(*component.CapabilityError); ok {
			err = errors.NewRenderError(errors.ErrCodeCapabilityMissing, "capability not available", capErr).
				WithComponent(def.Name)
			return
		}
		err = errors.NewRenderError(errors.ErrCodeComponentPanic,
			fmt.Sprintf("component panicked: %v", r), nil).WithComponent(def.Name)
	}()
	return def.Render(scope, props)
}

func (ev *evaluator) resolveEmbed(n component.Node, src string) (nodes []VNode, err error) {
	if n.Embed == nil {
		return nil, errors.NewRenderError(errors.ErrCodeInvalidNode, "embed node has no component", nil).WithPath(src)
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewRenderError(errors.ErrCodeEmbedFailed,
				fmt.Sprintf("embedded component panicked: %v", r), nil).WithPath(src)
		}
	}()

	var b strings.Builder
	if err := n.Embed.Render(ev.ctx, &b); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeEmbedFailed, "embedded component failed", err).WithPath(src)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []VNode{{Type: VRaw, Text: b.String()}}, nil
}

func normalizeAttrs(in component.Attrs, src string) ([]Attr, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]Attr, 0, len(in))
	seen := make(map[string]bool, len(in))
	for name, value := range in {
		lower := strings.ToLower(name)
		if !attrPattern.MatchString(lower) {
			return nil, errors.NewRenderError(errors.ErrCodeInvalidAttribute,
				fmt.Sprintf("invalid attribute name %q", name), nil).WithPath(src)
		}
		if slices.Contains(reservedAttrs, lower) {
			return nil, errors.NewRenderError(errors.ErrCodeInvalidAttribute,
				fmt.Sprintf("attribute %q is reserved for hydration", name), nil).WithPath(src)
		}
		if seen[lower] {
			return nil, errors.NewRenderError(errors.ErrCodeInvalidAttribute,
				fmt.Sprintf("attribute %q given twice", lower), nil).WithPath(src)
		}
		seen[lower] = true
		out = append(out, Attr{Name: lower, Value: value})
	}
	sortAttrs(out)
	return out, nil
}

func sortAttrs(attrs []Attr) {
	slices.SortFunc(attrs, func(a, b Attr) int { return strings.Compare(a.Name, b.Name) })
}

func checkRawText(tag string, children []VNode, src string) error {
	closing := "</" + tag
	for _, c := range children {
		if c.Type != VText {
			return errors.NewRenderError(errors.ErrCodeInvalidNode,
				fmt.Sprintf("<%s> may only contain text", tag), nil).WithPath(src)
		}
		if strings.Contains(strings.ToLower(c.Text), closing) {
			return errors.NewRenderError(errors.ErrCodeRawTextEscape,
				fmt.Sprintf("<%s> content contains %s", tag, closing), nil).WithPath(src)
		}
	}
	return nil
}

// mergeText joins adjacent text nodes so the resolved tree has the shape an
// HTML parser produces from the markup.
func mergeText(nodes []VNode) []VNode {
	if len(nodes) < 2 {
		return nodes
	}
	out := make([]VNode, 0, len(nodes))
	for _, n := range nodes {
		if last := len(out) - 1; n.Type == VText && last >= 0 && out[last].Type == VText {
			out[last].Text += n.Text
			continue
		}
		out = append(out, n)
	}
	return out
}

func assignKeys(nodes []VNode, prefix string) {
	for i := range nodes {
		key := strconv.Itoa(i)
		if prefix != "" {
			key = prefix + "." + key
		}
		nodes[i].Key = key
		if nodes[i].Type == VElement {
			assignKeys(nodes[i].Children, key)
		}
	}
}

// annotate adds the interactive-mode attributes.
func annotate(nodes []VNode) error {
	for i := range nodes {
		n := &nodes[i]
		if n.Type != VElement {
			continue
		}
		n.Attrs = append(n.Attrs, Attr{Name: AttrKey, Value: n.Key})
		if len(n.Components) > 0 {
			n.Attrs = append(n.Attrs, Attr{Name: AttrComponent, Value: strings.Join(n.Components, " ")})
		}
		if len(n.State) > 0 {
			data, err := json.Marshal(n.State)
			if err != nil {
				return errors.NewRenderError(errors.ErrCodeComponentFailed, "component state is not serialisable", err).
					WithPath(n.Key)
			}
			n.Attrs = append(n.Attrs, Attr{Name: AttrState, Value: string(data)})
		}
		if len(n.Handlers) > 0 {
			events := make([]string, 0, len(n.Handlers))
			for event := range n.Handlers {
				events = append(events, event)
			}
			slices.Sort(events)
			n.Attrs = append(n.Attrs, Attr{Name: AttrEvents, Value: strings.Join(events, ",")})
		}
		sortAttrs(n.Attrs)
		if err := annotate(n.Children); err != nil {
			return err
		}
	}
	return nil
}
