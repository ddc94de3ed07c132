package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goliatone/go-reportbuilder/pkg/model"
)

var (
	// ErrEmptyArtifact is returned when asked to deliver zero bytes.
	ErrEmptyArtifact = errors.New("artifact: empty payload")
	// ErrInvalidName is returned when a filename cannot be confined to the
	// download directory.
	ErrInvalidName = errors.New("artifact: invalid filename")
)

var unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)

// DirSink writes artifacts into a local directory. Each file is written to a
// temporary sibling and renamed into place, so an interrupted delivery never
// leaves a partial report behind.
type DirSink struct {
	dir string
}

// NewDirSink creates the directory if needed and returns a sink rooted there.
func NewDirSink(dir string) (*DirSink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact: download directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create %s: %w", abs, err)
	}
	return &DirSink{dir: abs}, nil
}

// Dir returns the absolute download directory.
func (s *DirSink) Dir() string {
	return s.dir
}

// Path returns where an artifact with the given name would be written.
func (s *DirSink) Path(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" || clean == "." || clean == ".." {
		return "", ErrInvalidName
	}
	full := filepath.Join(s.dir, clean)
	if filepath.Dir(full) != s.dir {
		return "", ErrInvalidName
	}
	return full, nil
}

// Deliver writes a.Data to the download directory under a.Filename.
func (s *DirSink) Deliver(ctx context.Context, a model.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(a.Data) == 0 {
		return ErrEmptyArtifact
	}
	target, err := s.Path(a.Filename)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("artifact: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(a.Data); err != nil {
		cleanup()
		return fmt.Errorf("artifact: write %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("artifact: close %s: %w", target, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("artifact: chmod %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("artifact: rename into %s: %w", target, err)
	}
	return nil
}

// SanitizeName keeps only word characters, dashes and dots from the base name.
func SanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return unsafeNameChars.ReplaceAllString(base, "_")
}
