package component

import (
	"fmt"
	"maps"
	"slices"
)

// Capability names a primitive the rendering host may supply to components.
type Capability string

const (
	// CapState gives a component per-instance state through Scope.State.
	CapState Capability = "state"
	// CapContext gives a component read access to host values through Scope.Value.
	CapContext Capability = "context"
)

// KnownCapabilities lists every capability the renderer understands.
var KnownCapabilities = []Capability{CapState, CapContext}

// IsKnownCapability reports whether c is one of KnownCapabilities.
func IsKnownCapability(c Capability) bool {
	return slices.Contains(KnownCapabilities, c)
}

// RenderFunc evaluates a composite into a subtree.
type RenderFunc func(s *Scope, props Props) (Node, error)

// Definition is a reusable component.
type Definition struct {
	Name string
	// Requires lists the capabilities Render uses. Using an undeclared
	// capability is a render error.
	Requires []Capability
	Render   RenderFunc
}

// Define creates a Definition.
func Define(name string, render RenderFunc, requires ...Capability) *Definition {
	return &Definition{Name: name, Requires: requires, Render: render}
}

// Declares reports whether the definition lists c in Requires.
func (d *Definition) Declares(c Capability) bool {
	return slices.Contains(d.Requires, c)
}

// Environment describes what the rendering host supplies. It is read-only
// once constructed and may be shared between concurrent renders.
type Environment struct {
	capabilities map[Capability]bool
	values       map[string]any
}

// NewEnvironment creates an environment supplying caps and values.
func NewEnvironment(caps []Capability, values map[string]any) Environment {
	env := Environment{
		capabilities: make(map[Capability]bool, len(caps)),
		values:       maps.Clone(values),
	}
	for _, c := range caps {
		env.capabilities[c] = true
	}
	return env
}

// DefaultEnvironment supplies every known capability and no values.
func DefaultEnvironment() Environment {
	return NewEnvironment(KnownCapabilities, nil)
}

// Supplies reports whether the environment provides c.
func (e Environment) Supplies(c Capability) bool {
	return e.capabilities[c]
}

// Value returns a host value.
func (e Environment) Value(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// CapabilityError reports a capability used without being available.
type CapabilityError struct {
	Component  string
	Capability Capability
	// Undeclared is true when the component did not list the capability in
	// Requires; otherwise the environment did not supply it.
	Undeclared bool
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Undeclared {
		return fmt.Sprintf("component %s uses capability %q without declaring it", e.Component, e.Capability)
	}
	return fmt.Sprintf("component %s requires capability %q, which the rendering environment does not supply", e.Component, e.Capability)
}

// CheckRequirements returns a CapabilityError for the first capability def
// requires that env does not supply.
func CheckRequirements(def *Definition, env Environment) error {
	for _, c := range def.Requires {
		if !env.Supplies(c) {
			return &CapabilityError{Component: def.Name, Capability: c}
		}
	}
	return nil
}

// Scope is the view a composite's Render has of its rendering host.
type Scope struct {
	def   *Definition
	env   Environment
	store *Store
	path  string
	used  []string
}

// NewScope creates the scope of one composite instance. path identifies the
// instance within the tree and keys its state in store.
func NewScope(def *Definition, env Environment, store *Store, path string) *Scope {
	return &Scope{def: def, env: env, store: store, path: path}
}

// Component returns the name of the component being rendered.
func (s *Scope) Component() string {
	return s.def.Name
}

// Path returns the instance path.
func (s *Scope) Path() string {
	return s.path
}

// require panics with a *CapabilityError when c is unavailable. The
// renderer recovers it and reports a render error.
func (s *Scope) require(c Capability) {
	if !s.def.Declares(c) {
		panic(&CapabilityError{Component: s.def.Name, Capability: c, Undeclared: true})
	}
	if !s.env.Supplies(c) {
		panic(&CapabilityError{Component: s.def.Name, Capability: c})
	}
}

// State returns the instance state stored under key, initialised to initial
// the first time the instance is rendered against its store.
func (s *Scope) State(key string, initial any) *State {
	s.require(CapState)
	id := s.path + "#" + key
	s.store.init(id, initial)
	if !slices.Contains(s.used, key) {
		s.used = append(s.used, key)
	}
	return &State{store: s.store, id: id}
}

// Value returns a host value, or nil when the host did not provide key.
func (s *Scope) Value(key string) any {
	s.require(CapContext)
	v, _ := s.env.Value(key)
	return v
}

// Snapshot returns the current value of every state key the instance used
// during this render.
func (s *Scope) Snapshot() map[string]any {
	if len(s.used) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.used))
	for _, key := range s.used {
		v, _ := s.store.get(s.path + "#" + key)
		out[key] = v
	}
	return out
}
