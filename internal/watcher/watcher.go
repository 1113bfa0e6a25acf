// Package watcher reports debounced file changes. The development server and
// `isomorph watch` use it to notice edits to the shell template.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/isomorph/internal/logging"
)

// DefaultDelay is the quiet period after which pending changes are reported.
const DefaultDelay = 100 * time.Millisecond

// FileWatcher watches files for changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    logging.Logger

	mutex    sync.RWMutex
	files    map[string]bool
	filters  []FileFilter
	handlers []ChangeHandler

	closeOnce sync.Once
	closeErr  error
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a changed file is reported
type FileFilter func(path string) bool

// ChangeHandler handles a batch of debounced change events
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(fw *FileWatcher) { fw.logger = l }
}

// NewFileWatcher creates a file watcher that reports changes once no new
// change has arrived for delay.
func NewFileWatcher(delay time.Duration, opts ...Option) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	fw := &FileWatcher{
		watcher:   w,
		debouncer: NewDebouncer(delay),
		logger:    logging.Discard(),
		files:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(fw)
	}
	fw.logger = fw.logger.WithComponent("watcher")
	return fw, nil
}

// AddFilter adds a file filter. Every filter must accept a path.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// WatchFile reports changes to the file at path. The parent directory is
// watched so that editors replacing the file through a rename are noticed;
// once any file is registered, changes to other files are ignored.
func (fw *FileWatcher) WatchFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: %s is not a directory", path, dir)
	}

	fw.mutex.Lock()
	fw.files[abs] = true
	fw.mutex.Unlock()
	return fw.watcher.Add(dir)
}

// AddPath watches a directory without restricting which files are reported.
func (fw *FileWatcher) AddPath(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	return fw.watcher.Add(abs)
}

// Run delivers debounced changes to the handlers until ctx is done or the
// watcher is closed. It closes the watcher before returning.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		case events := <-fw.debouncer.Output():
			fw.dispatch(ctx, events)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (fw *FileWatcher) Close() error {
	fw.closeOnce.Do(func() {
		fw.debouncer.Stop()
		fw.closeErr = fw.watcher.Close()
	})
	return fw.closeErr
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	if len(fw.files) > 0 && !fw.files[filepath.Clean(path)] {
		return false
	}
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || !fw.accepts(event.Name) {
		return
	}

	change := ChangeEvent{Path: event.Name}
	if info, err := os.Stat(event.Name); err == nil {
		change.ModTime = info.ModTime()
		change.Size = info.Size()
	}

	switch {
	case event.Has(fsnotify.Create):
		change.Type = EventTypeCreated
	case event.Has(fsnotify.Write):
		change.Type = EventTypeModified
	case event.Has(fsnotify.Remove):
		change.Type = EventTypeDeleted
	case event.Has(fsnotify.Rename):
		change.Type = EventTypeRenamed
	default:
		change.Type = EventTypeModified
	}

	fw.debouncer.Add(change)
}

func (fw *FileWatcher) dispatch(ctx context.Context, events []ChangeEvent) {
	fw.mutex.RLock()
	handlers := slices.Clone(fw.handlers)
	fw.mutex.RUnlock()

	for _, event := range events {
		fw.logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
	}
	for _, handler := range handlers {
		if err := handler(ctx, events); err != nil {
			fw.logger.Error(ctx, err, "File watcher handler failed")
		}
	}
}

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	output  chan []ChangeEvent
	mutex   sync.Mutex
	timer   *time.Timer
	pending map[string]ChangeEvent
	stopped bool
}

// NewDebouncer creates a Debouncer that flushes after delay of quiet.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		output:  make(chan []ChangeEvent, 10),
		pending: make(map[string]ChangeEvent),
	}
}

// Add records event and restarts the quiet period. A later event for the
// same path replaces an earlier one.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}

	d.pending[event.Path] = event
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// Output delivers batches sorted by path.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Stop discards pending events.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.pending)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	slices.SortFunc(events, func(a, b ChangeEvent) int { return strings.Compare(a.Path, b.Path) })

	select {
	case d.output <- events:
	default:
		// Consumer is behind; it will still see the next batch.
	}
	clear(d.pending)
}

// HTMLFilter accepts HTML documents.
func HTMLFilter(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// NoTempFilter rejects editor swap and backup files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasPrefix(base, ".#"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		base == "4913":
		return false
	}
	return true
}
