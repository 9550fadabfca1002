package statusdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/internal/fs"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// WriteListfile walks triplet-root-relative paths and writes the
// listfile for spec@version under info/, naming every file, directory
// (trailing slash), and symlink the package deposited. It must be
// called before the paragraph transitions to StateInstalled (spec.md
// §4.4.4's ordering requirement).
func (db *Database) WriteListfile(spec portspec.PackageSpec, version pkgver.SchemedVersion, paths []string) error {
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		full := filepath.Join(db.root, spec.Triplet.String(), p)
		fi, err := os.Lstat(full)
		if err != nil {
			return errors.Wrapf(err, "stat-ing installed path %s", full)
		}
		rel := filepath.ToSlash(filepath.Join(spec.Triplet.String(), p))
		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			lines = append(lines, rel)
		case fi.IsDir():
			lines = append(lines, rel+"/")
		default:
			lines = append(lines, rel)
		}
	}
	sort.Strings(lines)

	path := db.InfoListPath(spec, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating info directory")
	}
	text := strings.Join(lines, "\n")
	if len(lines) > 0 {
		text += "\n"
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

// ListfilePaths returns every triplet-root-relative path recorded in
// spec@version's listfile, in the order it was written (reverse order
// is the caller's responsibility, per spec.md §4.4.4's removal rule).
func (db *Database) ListfilePaths(spec portspec.PackageSpec, version pkgver.SchemedVersion) ([]string, error) {
	path := db.InfoListPath(spec, version)
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading listfile %s", path)
	}
	var out []string
	for _, line := range strings.Split(string(text), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// RemoveListfile deletes every file and symlink named in spec@version's
// listfile, then prunes any directory from the listfile that is now
// empty, walking deepest-first so a directory's children are gone
// before the directory itself is considered (spec.md §4.4.4). It never
// deletes a directory absent from the listfile.
func (db *Database) RemoveListfile(spec portspec.PackageSpec, version pkgver.SchemedVersion) error {
	entries, err := db.ListfilePaths(spec, version)
	if err != nil {
		return err
	}

	var dirs []string
	for i := len(entries) - 1; i >= 0; i-- {
		rel := entries[i]
		full := filepath.Join(db.root, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
		if strings.HasSuffix(rel, "/") {
			dirs = append(dirs, full)
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing installed file %s", full)
		}
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "reading directory %s before prune", dir)
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "pruning empty directory %s", dir)
			}
		}
	}

	return os.Remove(db.InfoListPath(spec, version))
}

// FileConflictError reports that installing a package would overwrite a
// path already owned by another installed package (spec.md §4.4.5).
type FileConflictError struct {
	Path       string
	OwnedBy    portspec.PackageSpec
	Installing portspec.PackageSpec
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("statusdb: installing %s would overwrite %s, already owned by %s",
		e.Installing.String(), e.Path, e.OwnedBy.String())
}

// CheckConflicts verifies that none of stagedPaths (triplet-root-
// relative, as produced by fsutil.ListFiles over the staged package
// directory) collides with a path already claimed by another installed
// package's listfile. Directories are never conflicts: only regular
// files and symlinks are checked, matching spec.md §4.4.5's "collision"
// semantics (two packages may both own the same directory).
func (db *Database) CheckConflicts(installing portspec.PackageSpec, stagedPaths []string) error {
	db.mu.Lock()
	installed := make([]StatusParagraph, 0, len(db.byKey))
	for _, sp := range db.byKey {
		if sp.Feature == portspec.CoreFeature && sp.State == StateInstalled && !sp.Spec.Equal(installing) {
			installed = append(installed, sp)
		}
	}
	db.mu.Unlock()

	owner := make(map[string]portspec.PackageSpec)
	for _, sp := range installed {
		entries, err := db.ListfilePaths(sp.Spec, sp.Version)
		if err != nil {
			continue // a missing listfile for a recorded-installed package is a separate integrity issue
		}
		for _, e := range entries {
			if strings.HasSuffix(e, "/") {
				continue
			}
			owner[e] = sp.Spec
		}
	}

	triplet := installing.Triplet.String()
	for _, p := range stagedPaths {
		rel := filepath.ToSlash(filepath.Join(triplet, p))
		if ownerSpec, ok := owner[rel]; ok {
			return &FileConflictError{Path: rel, OwnedBy: ownerSpec, Installing: installing}
		}
		// No listfile claims rel, but a regular file may already sit there
		// from outside this database's bookkeeping (a manual drop-in, or
		// drift from a prior crash); that is still a real collision even
		// though no installed paragraph owns it.
		full := filepath.Join(db.root, filepath.FromSlash(rel))
		if regular, err := fs.IsRegular(full); err == nil && regular {
			return &FileConflictError{Path: rel, OwnedBy: portspec.PackageSpec{}, Installing: installing}
		}
	}
	return nil
}
