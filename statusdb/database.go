package statusdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"

	"github.com/microsoft/vcpkg-tool-sub005/internal/fs"
	"github.com/microsoft/vcpkg-tool-sub005/paragraph"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

const (
	statusFileName   = "status"
	updatesDirName   = "updates"
	infoDirName      = "info"
	vcpkgDirName     = "vcpkg"
	collapseLockName = ".status.lock"
)

// Database is the in-memory collapsed view of the installed-tree status
// log, plus enough bookkeeping to append further mutations crash-safely
// (spec.md §4.4.2, §4.4.3).
type Database struct {
	root string // the installed root directory

	mu         sync.Mutex
	byKey      map[string]StatusParagraph
	nextUpdate int
}

func vcpkgDir(root string) string    { return filepath.Join(root, vcpkgDirName) }
func statusPath(root string) string  { return filepath.Join(vcpkgDir(root), statusFileName) }
func updatesDir(root string) string  { return filepath.Join(vcpkgDir(root), updatesDirName) }
func infoDir(root string) string     { return filepath.Join(vcpkgDir(root), infoDirName) }

// Load implements database_load (spec.md §4.4.2): read status, then
// every file in updates/ in numerically sorted order, appending.
func Load(root string) (*Database, error) {
	db := &Database{root: root, byKey: make(map[string]StatusParagraph)}

	if err := db.applyFile(statusPath(root), true); err != nil {
		return nil, err
	}

	updateFiles, err := sortedUpdateFiles(root)
	if err != nil {
		return nil, err
	}
	for _, name := range updateFiles {
		if err := db.applyFile(filepath.Join(updatesDir(root), name), true); err != nil {
			return nil, err
		}
	}

	last := 0
	for _, name := range updateFiles {
		if n, err := strconv.Atoi(name); err == nil && n > last {
			last = n
		}
	}
	db.nextUpdate = last + 1
	return db, nil
}

// LoadCollapse implements database_load_collapse (spec.md §4.4.2): under
// a file lock (github.com/theckman/go-flock, the same library teacher's
// analyzer.go-adjacent lockfile handling in cmd/dep uses for its own
// cross-process guard), rewrite status with the collapsed view and
// remove the consumed updates/ files.
func LoadCollapse(root string) (*Database, error) {
	if err := os.MkdirAll(updatesDir(root), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating updates directory")
	}
	if err := os.MkdirAll(infoDir(root), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating info directory")
	}

	lock := flock.NewFlock(filepath.Join(vcpkgDir(root), collapseLockName))
	if err := lock.Lock(); err != nil {
		return nil, errors.Wrap(err, "acquiring status collapse lock")
	}
	defer lock.Unlock()

	db, err := Load(root)
	if err != nil {
		return nil, err
	}

	updateFiles, err := sortedUpdateFiles(root)
	if err != nil {
		return nil, err
	}
	if len(updateFiles) == 0 {
		return db, nil
	}

	if err := db.writeStatusFile(); err != nil {
		return nil, err
	}
	for _, name := range updateFiles {
		if err := os.Remove(filepath.Join(updatesDir(root), name)); err != nil {
			return nil, errors.Wrapf(err, "removing consumed update file %s", name)
		}
	}
	db.nextUpdate = 1
	return db, nil
}

func sortedUpdateFiles(root string) ([]string, error) {
	entries, err := os.ReadDir(updatesDir(root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing update files")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (db *Database) applyFile(path string, missingOK bool) error {
	text, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && missingOK {
			return nil
		}
		return errors.Wrapf(err, "reading %s", path)
	}
	paragraphs, err := paragraph.ParseAllString(string(text))
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	for _, p := range paragraphs {
		sp, err := statusParagraphFromParagraph(p)
		if err != nil {
			return errors.Wrapf(err, "in %s", path)
		}
		db.byKey[sp.key()] = sp
	}
	return nil
}

// writeStatusFile rewrites the status file from the current collapsed
// view, in a stable key order so repeated collapses produce identical
// bytes for identical state.
func (db *Database) writeStatusFile() error {
	keys := make([]string, 0, len(db.byKey))
	for k := range db.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	paragraphs := make([]*paragraph.Paragraph, 0, len(keys))
	for _, k := range keys {
		paragraphs = append(paragraphs, db.byKey[k].toParagraph())
	}
	text := paragraph.EncodeAll(paragraphs)

	tmp := statusPath(db.root) + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return errors.Wrap(err, "writing status temp file")
	}
	// The temp file sits beside the status file, so this is a same-
	// directory rename; RenameWithFallback also copies and removes if the
	// rename itself fails with a cross-device-link error.
	if err := fs.RenameWithFallback(tmp, statusPath(db.root)); err != nil {
		return errors.Wrap(err, "renaming status temp file into place")
	}
	return nil
}

// Put implements one mutation of spec.md §4.4.3: write sp to a fresh
// updates/<NNNNN> file before any observable file-tree change the
// caller makes, then update the in-memory view. Callers writing a
// half-installed paragraph must call Put, change the file tree, then
// Put the installed paragraph, in that order.
func (db *Database) Put(sp StatusParagraph) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := os.MkdirAll(updatesDir(db.root), 0o755); err != nil {
		return errors.Wrap(err, "creating updates directory")
	}
	name := fmt.Sprintf("%05d", db.nextUpdate)
	path := filepath.Join(updatesDir(db.root), name)
	text := paragraph.EncodeAll([]*paragraph.Paragraph{sp.toParagraph()})
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return errors.Wrapf(err, "writing update file %s", path)
	}
	db.nextUpdate++
	db.byKey[sp.key()] = sp
	return nil
}

// Get returns the collapsed StatusParagraph for (spec, feature), if any.
func (db *Database) Get(spec portspec.PackageSpec, feature string) (StatusParagraph, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := (StatusParagraph{Spec: spec, Feature: feature}).key()
	sp, ok := db.byKey[key]
	return sp, ok
}

// Installed implements planner.StatusLookup: reports the installed
// feature set, version, and ABI tag for spec, if its core feature is
// recorded as installed.
func (db *Database) Installed(spec portspec.PackageSpec) (plan.InstalledInfo, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	core, ok := db.byKey[(StatusParagraph{Spec: spec, Feature: portspec.CoreFeature}).key()]
	if !ok || core.State != StateInstalled {
		return plan.InstalledInfo{}, false
	}

	features := []string{portspec.CoreFeature}
	prefix := spec.String() + ":"
	for key, sp := range db.byKey {
		if sp.Feature == portspec.CoreFeature || sp.Feature == "" {
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if sp.Spec.Equal(spec) && sp.State == StateInstalled {
			features = append(features, sp.Feature)
		}
	}
	sort.Strings(features[1:])

	return plan.InstalledInfo{Features: features, Version: core.Version, AbiTag: core.AbiTag}, true
}

// ReverseDependents returns every installed PackageSpec whose recorded
// Depends list names spec, core or any feature.
func (db *Database) ReverseDependents(spec portspec.PackageSpec) []portspec.PackageSpec {
	db.mu.Lock()
	defer db.mu.Unlock()

	seen := make(map[string]bool)
	var out []portspec.PackageSpec
	target := spec.String()
	for _, sp := range db.byKey {
		if sp.State != StateInstalled {
			continue
		}
		for _, dep := range sp.Depends {
			name := dep
			if idx := strings.Index(name, "["); idx >= 0 {
				name = name[:idx]
			}
			// An entry without a triplet names spec by its name alone.
			if name == target || name == spec.Name {
				if !seen[sp.Spec.String()] {
					seen[sp.Spec.String()] = true
					out = append(out, sp.Spec)
				}
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// All returns every collapsed StatusParagraph, for callers that need to
// enumerate the whole installed tree (e.g. a future `list` front end).
func (db *Database) All() []StatusParagraph {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]StatusParagraph, 0, len(db.byKey))
	for _, sp := range db.byKey {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// InfoListPath returns the listfile path for an installed package, per
// spec.md §4.4.1's "info/<spec>_<version>_<triplet>.list" layout.
func (db *Database) InfoListPath(spec portspec.PackageSpec, version pkgver.SchemedVersion) string {
	name := fmt.Sprintf("%s_%s_%s.list", spec.Name, version.Version.Text, spec.Triplet.String())
	return filepath.Join(infoDir(db.root), name)
}

// Root returns the installed root this database was loaded from.
func (db *Database) Root() string { return db.root }
