package provider

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// GitPortProvider is a reference PortProvider backed by a git working
// tree: each port version is a tag of the form "<port>-<version>"
// pointing at a commit whose tree holds a CONTROL file at
// "ports/<port>/CONTROL". It is a thin adapter over Masterminds/vcs, not
// a registry implementation: auth, overlay resolution, and registry
// discovery stay external per spec.md §1.
type GitPortProvider struct {
	repo    *vcs.GitRepo
	scratch string // directory used for tag exports

	mu    sync.Mutex
	cache map[string]*portspec.SourceControlFile // tag -> parsed control file
}

// NewGitPortProvider opens (cloning if necessary) a git repository at
// remote into local, using it as the ports tree.
func NewGitPortProvider(remote, local, scratchDir string) (*GitPortProvider, error) {
	repo, err := vcs.NewGitRepo(remote, local)
	if err != nil {
		return nil, errors.Wrap(err, "opening ports git repository")
	}
	if !repo.CheckLocal() {
		if err := repo.Get(); err != nil {
			return nil, errors.Wrap(err, "cloning ports git repository")
		}
	}
	return &GitPortProvider{
		repo:    repo,
		scratch: scratchDir,
		cache:   make(map[string]*portspec.SourceControlFile),
	}, nil
}

func (g *GitPortProvider) tagFor(port, version string) string {
	return fmt.Sprintf("%s-%s", port, version)
}

// GetPortVersions lists every tag matching "<port>-*", newest first by
// tag name (the registry layer, not this adapter, is responsible for any
// more sophisticated version-ordering source; this thin adapter only
// reports what exists).
func (g *GitPortProvider) GetPortVersions(port string) ([]pkgver.SchemedVersion, error) {
	tags, err := g.repo.Tags()
	if err != nil {
		return nil, errors.Wrap(err, "listing tags")
	}
	prefix := port + "-"
	var versions []string
	for _, t := range tags {
		if len(t) > len(prefix) && t[:len(prefix)] == prefix {
			versions = append(versions, t[len(prefix):])
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	out := make([]pkgver.SchemedVersion, 0, len(versions))
	for _, v := range versions {
		out = append(out, pkgver.SchemedVersion{Scheme: pkgver.SchemeRelaxed, Version: pkgver.Version{Text: v}})
	}
	return out, nil
}

// GetControlFile returns the SourceControlFile at the newest known
// version of port.
func (g *GitPortProvider) GetControlFile(port string) (*portspec.SourceControlFile, error) {
	versions, err := g.GetPortVersions(port)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, &NotFound{Port: port}
	}
	return g.GetControlFileAt(VersionSpec{Port: port, Version: versions[0]})
}

// GetControlFileAt checks out the tag for spec.Port@spec.Version.Text
// into a scratch export directory and parses its CONTROL file.
func (g *GitPortProvider) GetControlFileAt(spec VersionSpec) (*portspec.SourceControlFile, error) {
	tag := g.tagFor(spec.Port, spec.Version.Version.Text)

	g.mu.Lock()
	if cached, ok := g.cache[tag]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	if !g.repo.IsReference(tag) {
		return nil, &NotFound{Port: spec.Port, Version: spec.Version.Version.Text}
	}

	exportDir, err := ioutil.TempDir(g.scratch, "port-export-")
	if err != nil {
		return nil, errors.Wrap(err, "creating scratch export directory")
	}
	defer os.RemoveAll(exportDir)

	if err := g.repo.UpdateVersion(tag); err != nil {
		return nil, errors.Wrapf(err, "checking out tag %s", tag)
	}
	if err := g.repo.ExportDir(exportDir); err != nil {
		return nil, errors.Wrapf(err, "exporting tree at tag %s", tag)
	}

	controlPath := filepath.Join(exportDir, "ports", spec.Port, "CONTROL")
	text, err := ioutil.ReadFile(controlPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", controlPath)
	}

	scf, err := parseControlFile(string(text))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing CONTROL file for %s", tag)
	}

	g.mu.Lock()
	g.cache[tag] = scf
	g.mu.Unlock()
	return scf, nil
}
