package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	cause := stderrors.New("boom")
	err := NewRenderError(ErrCodeComponentPanic, "component panicked", cause).
		WithComponent("Counter").
		WithPath("0.1")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_COMPONENT_PANIC]")
	assert.Contains(t, msg, "component:Counter")
	assert.Contains(t, msg, "at:0.1")
	assert.Contains(t, msg, "component panicked")
	assert.Contains(t, msg, "boom")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestErrorIs(t *testing.T) {
	a := NewTemplateError(ErrCodeMarkerMissing, "no marker")
	b := NewTemplateError(ErrCodeMarkerMissing, "different message")
	c := NewTemplateError(ErrCodeMarkerDuplicate, "two markers")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))

	wrapped := fmt.Errorf("loading shell: %w", a)
	assert.True(t, stderrors.Is(wrapped, b))
	assert.True(t, IsTemplateError(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeMarkerMissing))
}

func TestPredicates(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		render     bool
		template   bool
		filesystem bool
		typ        ErrorType
	}{
		{"render", NewRenderError(ErrCodeMaxDepth, "too deep", nil), true, false, false, ErrorTypeRender},
		{"template", NewTemplateError(ErrCodeMarkerCollision, "collision"), false, true, false, ErrorTypeTemplate},
		{"filesystem", NewFileSystemError(ErrCodeClearFailed, "clear", nil), false, false, true, ErrorTypeFileSystem},
		{"foreign", stderrors.New("plain"), false, false, false, ""},
		{"nil", nil, false, false, false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.render, IsRenderError(tc.err))
			assert.Equal(t, tc.template, IsTemplateError(tc.err))
			assert.Equal(t, tc.filesystem, IsFileSystemError(tc.err))
			assert.Equal(t, tc.typ, TypeOf(tc.err))
		})
	}
}

func TestRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewRenderError(ErrCodeMaxDepth, "x", nil)))
	assert.False(t, IsRecoverable(NewFileSystemError(ErrCodeWriteFailed, "x", nil)))
	assert.False(t, IsRecoverable(stderrors.New("x")))
}

func TestWithContext(t *testing.T) {
	err := NewFileSystemError(ErrCodeCreateFailed, "mkdir", nil).
		WithContext("dir", "/tmp/out").
		WithContext("mode", "0755")

	require.NotNil(t, err.Context)
	assert.Equal(t, "/tmp/out", err.Context["dir"])
	assert.Equal(t, "0755", err.Context["mode"])
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewRenderError(ErrCodeCapabilityMissing, "missing", nil))
	handler.Handle(ctx, NewTemplateError(ErrCodeMarkerMissing, "missing"))
	handler.Handle(ctx, NewHydrationError(ErrCodeRootNotFound, "no root"))
	handler.Handle(ctx, stderrors.New("plain"))

	assert.Equal(t, []string{"Render failed", "Shell template rejected", "Unhandled error occurred"}, logger.errors)
	assert.Equal(t, []string{"Recoverable error occurred"}, logger.warns)
}

func TestWarningCollector(t *testing.T) {
	collector := NewWarningCollector()
	assert.Equal(t, 0, collector.Len())

	collector.Add(HydrationMismatchWarning{Path: "0", Kind: MismatchText, Expected: "a", Actual: "b"})
	collector.Add(HydrationMismatchWarning{Path: "0.1", Kind: MismatchExtra, Actual: "<span>"})

	assert.Equal(t, 2, collector.Len())
	assert.Len(t, collector.ByKind(MismatchExtra), 1)
	assert.Empty(t, collector.ByKind(MismatchReplaced))

	warnings := collector.Warnings()
	warnings[0].Path = "mutated"
	assert.Equal(t, "0", collector.Warnings()[0].Path)

	collector.Clear()
	assert.Equal(t, 0, collector.Len())
}

func TestWarningCollectorConcurrent(t *testing.T) {
	collector := NewWarningCollector()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				collector.Add(HydrationMismatchWarning{Path: fmt.Sprintf("%d.%d", id, i), Kind: MismatchText})
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 200, collector.Len())
}

func TestHydrationMismatchWarningError(t *testing.T) {
	w := &HydrationMismatchWarning{Path: "0.2", Kind: MismatchMissing, Expected: "<li>"}
	assert.Contains(t, w.Error(), "missing")
	assert.Contains(t, w.Error(), "0.2")
}
