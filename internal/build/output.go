package build

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/conneroisu/isomorph/internal/errors"
)

// FileMode is the permission of every written artifact file.
const FileMode os.FileMode = 0o644

// writeFile atomically replaces path with content. The temporary file
// atomic creates is owner-only, so the mode is set afterwards.
func writeFile(path, content string) error {
	if err := atomic.WriteFile(path, strings.NewReader(content)); err != nil {
		return errors.NewFileSystemError(errors.ErrCodeWriteFailed, "cannot write "+filepath.Base(path), err).WithPath(path)
	}
	if err := os.Chmod(path, FileMode); err != nil {
		return errors.NewFileSystemError(errors.ErrCodeWriteFailed, "cannot set mode of "+filepath.Base(path), err).WithPath(path)
	}
	return nil
}

// prepareOutputDir makes dir an existing, empty directory and returns its
// absolute path. It refuses directories whose clearing would destroy
// something other than a previous artifact.
func prepareOutputDir(dir, shellPath string) (string, error) {
	abs, err := checkOutputDir(dir, shellPath)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(abs)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", errors.NewFileSystemError(errors.ErrCodeCreateFailed, "cannot create output directory", err).WithPath(abs)
		}
		return abs, nil
	case err != nil:
		return "", errors.NewFileSystemError(errors.ErrCodeCreateFailed, "cannot inspect output directory", err).WithPath(abs)
	case !info.IsDir():
		return "", errors.NewFileSystemError(errors.ErrCodeNotADirectory, "output path exists and is not a directory", nil).WithPath(abs)
	}

	if err := clearDir(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func checkOutputDir(dir, shellPath string) (string, error) {
	unsafe := func(reason string) error {
		return errors.NewFileSystemError(errors.ErrCodeUnsafeOutputDir,
			fmt.Sprintf("refusing to use output directory: %s", reason), nil).WithPath(dir)
	}

	if strings.TrimSpace(dir) == "" {
		return "", unsafe("path is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.NewFileSystemError(errors.ErrCodeUnsafeOutputDir, "cannot resolve output directory", err).WithPath(dir)
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return "", unsafe("filesystem root")
	}
	if cwd, err := os.Getwd(); err == nil && abs == cwd {
		return "", unsafe("current working directory")
	}
	if shellPath != "" {
		shellAbs, err := filepath.Abs(shellPath)
		if err == nil && within(abs, shellAbs) {
			return "", unsafe("it contains the shell template")
		}
	}
	return abs, nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// clearDir removes every entry of dir. It keeps going after a failure and
// reports all of them together.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.NewFileSystemError(errors.ErrCodeClearFailed, "cannot list output directory", err).WithPath(dir)
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.NewFileSystemError(errors.ErrCodeClearFailed,
			fmt.Sprintf("could not remove %d of %d entries", len(errs), len(entries)), stderrors.Join(errs...)).
			WithPath(dir).
			WithContext("failures", len(errs))
	}
	return nil
}
