package errors

import (
	"fmt"
	"sync"
)

// MismatchKind classifies a hydration correction.
type MismatchKind string

const (
	MismatchText       MismatchKind = "text"
	MismatchAttributes MismatchKind = "attributes"
	MismatchReplaced   MismatchKind = "replaced"
	MismatchExtra      MismatchKind = "extra"
	MismatchMissing    MismatchKind = "missing"
	MismatchRebuild    MismatchKind = "rebuild"
)

// HydrationMismatchWarning reports a divergence between delivered markup and
// the tree's expected shape. It is non-fatal: the DOM has already been
// corrected when the warning is raised.
type HydrationMismatchWarning struct {
	// Path is the hydration key path of the corrected node ("0.1.2").
	Path     string
	Kind     MismatchKind
	Expected string
	Actual   string
}

// Error implements the error interface so warnings can be logged as errors.
func (w *HydrationMismatchWarning) Error() string {
	return fmt.Sprintf("hydration mismatch (%s) at %s: expected %q, got %q", w.Kind, w.Path, w.Expected, w.Actual)
}

// WarningCollector collects hydration warnings. Safe for concurrent use.
type WarningCollector struct {
	warnings []HydrationMismatchWarning
	mutex    sync.RWMutex
}

// NewWarningCollector creates an empty collector.
func NewWarningCollector() *WarningCollector {
	return &WarningCollector{
		warnings: make([]HydrationMismatchWarning, 0),
	}
}

// Add records a warning.
func (wc *WarningCollector) Add(w HydrationMismatchWarning) {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	wc.warnings = append(wc.warnings, w)
}

// Warnings returns a copy of the collected warnings in insertion order.
func (wc *WarningCollector) Warnings() []HydrationMismatchWarning {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	result := make([]HydrationMismatchWarning, len(wc.warnings))
	copy(result, wc.warnings)
	return result
}

// Len returns the number of collected warnings.
func (wc *WarningCollector) Len() int {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	return len(wc.warnings)
}

// ByKind returns the warnings of one kind.
func (wc *WarningCollector) ByKind(kind MismatchKind) []HydrationMismatchWarning {
	wc.mutex.RLock()
	defer wc.mutex.RUnlock()
	var out []HydrationMismatchWarning
	for _, w := range wc.warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

// Clear drops all warnings.
func (wc *WarningCollector) Clear() {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	wc.warnings = wc.warnings[:0]
}
