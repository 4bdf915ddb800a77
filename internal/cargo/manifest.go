// Package cargo reads Cargo manifests to locate the root of a Rust
// workspace.
package cargo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// ManifestFile is the name of a Cargo manifest.
const ManifestFile = "Cargo.toml"

// Manifest holds the parts of Cargo.toml atlas reports on. Every other
// table is ignored.
type Manifest struct {
	Package   *Package   `toml:"package"`
	Workspace *Workspace `toml:"workspace"`
}

type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

type Workspace struct {
	Members []string `toml:"members"`
	Exclude []string `toml:"exclude"`
}

// Name returns the package name, or "" for a virtual manifest.
func (m *Manifest) Name() string {
	if m == nil || m.Package == nil {
		return ""
	}
	return m.Package.Name
}

// IsWorkspace reports whether the manifest declares a [workspace] table.
func (m *Manifest) IsWorkspace() bool {
	return m != nil && m.Workspace != nil
}

// ReadManifest parses dir/Cargo.toml. A missing manifest returns
// fs.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &m, nil
}

// FindWorkspaceRoot walks up from start and returns, in order of
// preference: the nearest directory whose manifest declares [workspace],
// the nearest directory with any manifest, the nearest directory holding
// .git, or start itself. The walk stops at the first .git directory.
func FindWorkspaceRoot(start string) string {
	var packageDir, repoDir string
	for dir := start; ; {
		m, err := ReadManifest(dir)
		switch {
		case err == nil && m.IsWorkspace():
			return dir
		case packageDir == "" && (err == nil || !errors.Is(err, fs.ErrNotExist)):
			packageDir = dir
		}

		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			repoDir = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	switch {
	case packageDir != "":
		return packageDir
	case repoDir != "":
		return repoDir
	}
	return start
}
