package provider

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// LocalPortProvider resolves ports from a ports tree already checked
// out on disk, "<Root>/<port>/CONTROL" per port, one version per port
// (real vcpkg's actual on-disk layout, unlike GitPortProvider's
// one-tag-per-version scheme, which models a registry that keeps every
// historical version addressable instead of just the tree's current
// state).
type LocalPortProvider struct {
	Root string

	cache map[string]*portspec.SourceControlFile
}

// NewLocalPortProvider returns a provider reading ports from root.
func NewLocalPortProvider(root string) *LocalPortProvider {
	return &LocalPortProvider{Root: root, cache: make(map[string]*portspec.SourceControlFile)}
}

func (l *LocalPortProvider) PortDirectory(port string) string {
	return filepath.Join(l.Root, port)
}

func (l *LocalPortProvider) controlFile(port string) (*portspec.SourceControlFile, error) {
	if scf, ok := l.cache[port]; ok {
		return scf, nil
	}
	path := filepath.Join(l.PortDirectory(port), "CONTROL")
	text, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFound{Port: port}
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	scf, err := parseControlFile(string(text))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing CONTROL file for %s", port)
	}
	l.cache[port] = scf
	return scf, nil
}

// GetControlFile implements PortProvider.
func (l *LocalPortProvider) GetControlFile(port string) (*portspec.SourceControlFile, error) {
	return l.controlFile(port)
}

// GetControlFileAt implements PortProvider: since a local ports tree
// carries only its current on-disk version, this succeeds only when
// spec.Version matches that version exactly.
func (l *LocalPortProvider) GetControlFileAt(spec VersionSpec) (*portspec.SourceControlFile, error) {
	scf, err := l.controlFile(spec.Port)
	if err != nil {
		return nil, err
	}
	if cmp, err := pkgver.Compare(scf.Version, spec.Version); err != nil || cmp != 0 {
		return nil, &NotFound{Port: spec.Port, Version: spec.Version.Version.Text}
	}
	return scf, nil
}

// GetPortVersions implements PortProvider: a local tree only ever has
// the one version currently checked out.
func (l *LocalPortProvider) GetPortVersions(port string) ([]pkgver.SchemedVersion, error) {
	scf, err := l.controlFile(port)
	if err != nil {
		return nil, err
	}
	return []pkgver.SchemedVersion{scf.Version}, nil
}
