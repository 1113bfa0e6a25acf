package shell

import (
	"context"
	"sync"
)

// Source yields a validated shell template.
type Source interface {
	Template(ctx context.Context) (*Template, error)
}

// FileSource reads and validates the shell from disk on every call.
type FileSource struct {
	Path   string
	Marker string
}

// NewFileSource creates a FileSource.
func NewFileSource(path, marker string) *FileSource {
	if marker == "" {
		marker = DefaultMarker
	}
	return &FileSource{Path: path, Marker: marker}
}

// Template implements Source.
func (s *FileSource) Template(ctx context.Context) (*Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadWithMarker(s.Path, s.Marker)
}

// StaticSource serves one template that is immutable for the life of the
// process. It is validated once, at construction.
type StaticSource struct {
	t *Template
}

// NewStaticSource validates src and wraps it.
func NewStaticSource(src, marker string) (*StaticSource, error) {
	t, err := Parse(src, marker)
	if err != nil {
		return nil, err
	}
	return &StaticSource{t: t}, nil
}

// Template implements Source.
func (s *StaticSource) Template(context.Context) (*Template, error) {
	return s.t, nil
}

// CachedSource loads a shell file once and serves it until Invalidate is
// called, after which the next call reloads and revalidates it. A failed
// load is not cached. Safe for concurrent use.
type CachedSource struct {
	file *FileSource

	mu     sync.RWMutex
	cached *Template
	loads  int
}

// NewCachedSource creates a CachedSource over the shell at path.
func NewCachedSource(path, marker string) *CachedSource {
	return &CachedSource{file: NewFileSource(path, marker)}
}

// Template implements Source.
func (s *CachedSource) Template(ctx context.Context) (*Template, error) {
	s.mu.RLock()
	t := s.cached
	s.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	t, err := s.file.Template(ctx)
	if err != nil {
		return nil, err
	}
	s.cached = t
	s.loads++
	return t, nil
}

// Invalidate drops the cached template.
func (s *CachedSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// Loads returns how many times the file has been loaded successfully.
func (s *CachedSource) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

// Path returns the watched shell file.
func (s *CachedSource) Path() string {
	return s.file.Path
}
