// Package provider defines the external-collaborator interfaces the
// planner consumes (spec.md §6) plus reference adapter implementations.
// The registry system, overlay ports, and manifest parsing themselves
// stay out of the core per spec.md §1; these adapters are thin
// interface implementations only (spec.md §2's "Port/version providers
// (interface adapters only)" 10% budget line).
package provider

import (
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// NotFound is returned by PortProvider when a requested port or version
// does not exist, distinct from I/O errors.
type NotFound struct {
	Port    string
	Version string // empty when the lookup was unversioned
}

func (e *NotFound) Error() string {
	if e.Version == "" {
		return "port not found: " + e.Port
	}
	return "port " + e.Port + "@" + e.Version + " not found"
}

// VersionSpec names a specific version of a port to resolve.
type VersionSpec struct {
	Port    string
	Version pkgver.SchemedVersion
}

// PortProvider resolves a port name (optionally a specific version) to a
// SourceControlFile (spec.md §6).
type PortProvider interface {
	// GetControlFile returns the latest known SourceControlFile for
	// port, or a *NotFound error.
	GetControlFile(port string) (*portspec.SourceControlFile, error)
	// GetControlFileAt returns the SourceControlFile for the specific
	// version named by spec, or a *NotFound error.
	GetControlFileAt(spec VersionSpec) (*portspec.SourceControlFile, error)
	// GetPortVersions returns every known version of port, newest
	// first.
	GetPortVersions(port string) ([]pkgver.SchemedVersion, error)
}

// BaselineProvider resolves a port name to the baseline minimum version
// for the current project (spec.md §6). Returns (zero, false) when the
// port has no baseline entry.
type BaselineProvider interface {
	BaselineFor(port string) (pkgver.SchemedVersion, bool)
}

// CMakeVarProvider batch-evaluates triplet/feature platform expressions
// by invoking the toolchain once per batched request, required to cache
// per spec.md §4.1.3.
type CMakeVarProvider interface {
	// LoadGenericTripletVars batch-loads the variable map for a
	// generic (no specific port) triplet evaluation.
	LoadGenericTripletVars(t *triplet.Triplet) error
	// LoadTagVars batch-loads the variable maps for a set of
	// (PackageSpec, port directory) pairs in a single toolchain
	// invocation.
	LoadTagVars(reqs []TagVarRequest) error
	// GetTagVars returns the previously-loaded variable map for spec,
	// or (nil, false) if it was never loaded by a matching Load call.
	GetTagVars(spec portspec.PackageSpec) (map[string]string, bool)
}

// TagVarRequest is one element of a LoadTagVars batch.
type TagVarRequest struct {
	Spec      portspec.PackageSpec
	PortDir   string
}
