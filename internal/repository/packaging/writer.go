package packaging

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/pkgrender/internal/logger"

	// Ensure SHA512 available for verified replacement.
	_ "crypto/sha512"
)

// Status describes what a write did to the repository.
type Status string

const (
	// StatusCreated means the file did not exist before.
	StatusCreated Status = "created"
	// StatusUpdated means the file existed with different content.
	StatusUpdated Status = "updated"
	// StatusUnchanged means the file already held exactly the rendered bytes.
	StatusUnchanged Status = "unchanged"
)

const (
	// DefaultFileMode is the mode of written manifests.
	DefaultFileMode os.FileMode = 0o644

	// directoryMode is used for intermediate directories.
	directoryMode os.FileMode = 0o755

	// replaceChecksumFunction verifies bytes swapped in over an existing file.
	replaceChecksumFunction = crypto.SHA512
)

var errNonLocalPath = errors.New("path escapes the repository root")

// Writer writes files below a repository root.
type Writer struct {
	root string
	mode os.FileMode
}

// NewWriter creates a Writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{
		root: filepath.Clean(root),
		mode: DefaultFileMode,
	}
}

// Root returns the repository root.
func (w *Writer) Root() string {
	return w.root
}

// Path maps a slash-separated repository path onto the filesystem.
func (w *Writer) Path(relPath string) (string, error) {
	local := filepath.FromSlash(relPath)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%s: %w", relPath, errNonLocalPath)
	}

	return filepath.Join(w.root, local), nil
}

// Write stores content at relPath atomically.
func (w *Writer) Write(ctx context.Context, relPath string, content []byte) (Status, error) {
	target, err := w.Path(relPath)
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(filepath.Dir(target), directoryMode); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	existing, err := os.ReadFile(target)

	switch {
	case err == nil && bytes.Equal(existing, content):
		logger.DebugKV(ctx, "Manifest unchanged", "path", target)

		return StatusUnchanged, nil
	case err == nil:
		if err = w.replace(target, content); err != nil {
			return "", err
		}

		return StatusUpdated, nil
	case errors.Is(err, os.ErrNotExist):
		if err = writeFileAtomic(target, content, w.mode); err != nil {
			return "", err
		}

		return StatusCreated, nil
	default:
		return "", fmt.Errorf("read existing manifest: %w", err)
	}
}

// Plan reports what Write would do with content, without touching the repository.
func (w *Writer) Plan(_ context.Context, relPath string, content []byte) (Status, error) {
	target, err := w.Path(relPath)
	if err != nil {
		return "", err
	}

	existing, err := os.ReadFile(target)

	switch {
	case err == nil && bytes.Equal(existing, content):
		return StatusUnchanged, nil
	case err == nil:
		return StatusUpdated, nil
	case errors.Is(err, os.ErrNotExist):
		return StatusCreated, nil
	default:
		return "", fmt.Errorf("read existing manifest: %w", err)
	}
}

// replace swaps new content in over an existing file, rolling back on failure.
func (w *Writer) replace(target string, content []byte) error {
	hasher := replaceChecksumFunction.New()
	// hash.Hash.Write never returns an error.
	_, _ = hasher.Write(content)

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: w.mode,
		Checksum:   hasher.Sum(nil),
		Hash:       replaceChecksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(content), options); err != nil {
		// Apply stages the new bytes next to the target; don't leave them behind.
		staged := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".new")
		_ = os.Remove(staged)

		return fmt.Errorf("replace manifest: %w", err)
	}

	return nil
}

// writeFileAtomic writes a new file through a temporary sibling and a rename.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	tmpName := tmp.Name()
	committed := false

	defer func() {
		_ = tmp.Close()

		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}

	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temporary file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temporary file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temporary file: %w", err)
	}

	committed = true

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}

	defer func() {
		_ = d.Close()
	}()

	// Some filesystems refuse to fsync directories; the rename already happened.
	_ = d.Sync()

	return nil
}
