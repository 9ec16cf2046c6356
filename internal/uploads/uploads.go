// Package uploads stores event assets under a local directory and refers to
// them by file name only.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var allowed = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"pdf": true, "doc": true, "docx": true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Allowed reports whether filename carries a permitted extension.
func Allowed(filename string) bool {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return ext != "" && allowed[strings.ToLower(ext)]
}

// SecureFilename reduces a client-supplied name to a safe base name.
func SecureFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	base := filepath.Base(filename)
	base = strings.ReplaceAll(base, " ", "_")
	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimLeft(base, "._")
	return base
}

// Dir saves assets into a directory.
type Dir struct {
	Root string
}

// NewDir ensures root exists.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Dir{Root: root}, nil
}

// Save writes content under a sanitized, uuid-prefixed name and returns that name.
func (d *Dir) Save(filename string, content io.Reader) (string, error) {
	if !Allowed(filename) {
		return "", fmt.Errorf("file type not allowed: %q", filename)
	}
	safe := SecureFilename(filename)
	if safe == "" || !Allowed(safe) {
		return "", fmt.Errorf("invalid file name: %q", filename)
	}
	name := uuid.NewString()[:8] + "_" + safe

	f, err := os.OpenFile(filepath.Join(d.Root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create asset: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close asset: %w", err)
	}
	return name, nil
}

// Remove deletes a stored asset. Removing a missing asset is not an error.
func (d *Dir) Remove(name string) error {
	err := os.Remove(filepath.Join(d.Root, filepath.Base(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove asset: %w", err)
	}
	return nil
}
