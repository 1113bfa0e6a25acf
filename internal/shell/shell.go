// Package shell loads HTML shell templates and substitutes their single
// marker token with rendered markup.
//
// A shell is opaque HTML containing exactly one marker. Inject replaces that
// one occurrence and nothing else; a document that has already been injected
// has no marker left and is rejected if used as a template again.
package shell

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/isomorph/internal/errors"
)

// DefaultMarker is the placeholder replaced by rendered markup.
const DefaultMarker = "<!--ROOT-->"

// Template is a validated shell.
type Template struct {
	// Source is the full shell text.
	Source string
	// Marker is the token Source contains exactly once.
	Marker string
	// Path is the file the template was loaded from, if any.
	Path string
}

// Parse validates src as a shell using marker (DefaultMarker when empty).
func Parse(src, marker string) (*Template, error) {
	if marker == "" {
		marker = DefaultMarker
	}
	t := &Template{Source: src, Marker: marker}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads and validates the shell at path using DefaultMarker.
func Load(path string) (*Template, error) {
	return LoadWithMarker(path, DefaultMarker)
}

// LoadWithMarker reads and validates the shell at path.
func LoadWithMarker(path, marker string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		e := errors.NewTemplateError(errors.ErrCodeShellUnreadable, "cannot read shell template").WithPath(path)
		e.Cause = err
		return nil, e
	}

	t, err := Parse(string(data), marker)
	if err != nil {
		var te *errors.Error
		if stderrors.As(err, &te) {
			te.WithPath(path)
		}
		return nil, err
	}
	t.Path = path
	return t, nil
}

// Validate checks that the marker occurs exactly once.
func (t *Template) Validate() error {
	if t.Marker == "" {
		return errors.NewTemplateError(errors.ErrCodeMarkerMissing, "template has no marker configured")
	}
	switch n := strings.Count(t.Source, t.Marker); {
	case n == 0:
		return errors.NewTemplateError(errors.ErrCodeMarkerMissing,
			fmt.Sprintf("shell does not contain marker %s", t.Marker)).WithPath(t.Path)
	case n > 1:
		return errors.NewTemplateError(errors.ErrCodeMarkerDuplicate,
			fmt.Sprintf("shell contains marker %s %d times, want exactly 1", t.Marker, n)).
			WithPath(t.Path).
			WithContext("count", n)
	}
	return nil
}

// Inject returns the shell with its marker replaced by markup.
func (t *Template) Inject(markup string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if strings.Contains(markup, t.Marker) {
		return "", errors.NewTemplateError(errors.ErrCodeMarkerCollision,
			fmt.Sprintf("rendered markup contains marker %s", t.Marker)).WithPath(t.Path)
	}

	i := strings.Index(t.Source, t.Marker)
	var b strings.Builder
	b.Grow(len(t.Source) - len(t.Marker) + len(markup))
	b.WriteString(t.Source[:i])
	b.WriteString(markup)
	b.WriteString(t.Source[i+len(t.Marker):])
	return b.String(), nil
}

// Inject parses template with DefaultMarker and substitutes markup.
func Inject(template, markup string) (string, error) {
	t := &Template{Source: template, Marker: DefaultMarker}
	return t.Inject(markup)
}
