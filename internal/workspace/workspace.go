package workspace

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/logfields"
)

const dirPrefix = "releasekeeper-"

// Manager handles one ephemeral staging workspace.
type Manager struct {
	baseDir string
	tempDir string
}

// NewManager creates a workspace manager rooted at baseDir. Staging next to
// the destination keeps Promote a same-filesystem rename.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Create creates a uniquely named workspace directory.
func (m *Manager) Create() error {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return errors.FileSystemError("failed to create workspace base directory").
			WithCause(err).WithContext("path", m.baseDir).Build()
	}
	tempDir, err := os.MkdirTemp(m.baseDir, dirPrefix)
	if err != nil {
		return errors.FileSystemError("failed to create workspace directory").
			WithCause(err).WithContext("path", m.baseDir).Build()
	}
	m.tempDir = tempDir
	slog.Debug("Created workspace", logfields.Path(tempDir))
	return nil
}

// GetPath returns the path to the workspace directory.
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the workspace directory and everything still staged in it.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(m.tempDir); err != nil {
		return errors.FileSystemError("failed to cleanup workspace").
			WithCause(err).WithContext("path", m.tempDir).Build()
	}
	slog.Debug("Cleaned up workspace", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the workspace.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.tempDir == "" {
		return "", errors.InternalError("workspace not created").Build()
	}
	subdir := filepath.Join(m.tempDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", errors.FileSystemError("failed to create subdirectory").
			WithCause(err).WithContext("path", subdir).Build()
	}
	return subdir, nil
}

// Promote moves a staged file to dst, creating parent directories and
// replacing any existing file. When a rename is not possible (different
// filesystems) the file is copied and the staged copy removed.
func Promote(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return errors.FileSystemError("failed to create destination directory").
			WithCause(err).WithContext("path", dst).Build()
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return errors.FileSystemError("failed to move staged file into place").
			WithCause(err).WithContext("path", dst).Build()
	}
	return os.Remove(src)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) // #nosec G304 -- staged path inside our workspace
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".promote-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil { // #nosec G302 -- public assets are world readable
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
