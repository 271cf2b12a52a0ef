package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// DefraDirName is the subdirectory holding DefraDB data.
	DefraDirName = "defradb"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DefraPath returns the path to the DefraDB data directory.
func (d *Dir) DefraPath() string {
	return filepath.Join(d.path, DefraDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// ExportsDir returns the directory for exported files (epub, etc.).
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// ExportPath returns where a book's EPUB export is written.
func (d *Dir) ExportPath(bookID string) string {
	return filepath.Join(d.ExportsDir(), bookID+".epub")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Creating the defradb directory also creates the parent
	if err := os.MkdirAll(d.DefraPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create defradb directory: %w", err)
	}
	if err := os.MkdirAll(d.ExportsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
