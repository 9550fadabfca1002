// Package portspec defines the data model shared by the planner, ABI
// engine, cache, and status database: PackageSpec, FeatureSpec,
// Dependency, and SourceControlFile (spec.md §3).
package portspec

import (
	"fmt"
	"sort"

	"github.com/microsoft/vcpkg-tool-sub005/platformexpr"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// CoreFeature is the implicit always-present feature every port carries.
const CoreFeature = "core"

// DefaultFeature denotes a port's declared default feature set; it is
// expanded during feature resolution (spec.md §4.1.2) and never stored
// in a resolved feature set.
const DefaultFeature = "default"

// PackageSpec identifies a port built for a specific triplet. Equality
// and ordering are lexicographic on (Name, Triplet canonical string),
// per spec.md §3.
type PackageSpec struct {
	Name    string
	Triplet *triplet.Triplet
}

func (p PackageSpec) String() string {
	return fmt.Sprintf("%s:%s", p.Name, p.Triplet.String())
}

// Equal reports whether p and other name the same port built for the
// same triplet.
func (p PackageSpec) Equal(other PackageSpec) bool {
	return p.Name == other.Name && p.Triplet.Equal(other.Triplet)
}

// Less implements the PackageSpec ordering of spec.md §3: lexicographic
// on (Name, Triplet canonical name). Used by the planner to break
// topological-sort ties deterministically (spec.md §4.1.4).
func (p PackageSpec) Less(other PackageSpec) bool {
	if p.Name != other.Name {
		return p.Name < other.Name
	}
	return p.Triplet.Less(other.Triplet)
}

// FeatureSpec names one feature of one PackageSpec.
type FeatureSpec struct {
	Spec    PackageSpec
	Feature string
}

func (f FeatureSpec) String() string {
	if f.Feature == "" || f.Feature == CoreFeature {
		return f.Spec.String()
	}
	return fmt.Sprintf("%s[%s]", f.Spec.String(), f.Feature)
}

// Less orders FeatureSpecs by (Spec, Feature), used to keep the planner's
// worklist iteration order deterministic.
func (f FeatureSpec) Less(other FeatureSpec) bool {
	if !f.Spec.Equal(other.Spec) {
		return f.Spec.Less(other.Spec)
	}
	return f.Feature < other.Feature
}

// Dependency is one edge out of a feature (or out of "core"), per
// spec.md §3: a port name, the features it requests on that port, a
// host flag, an optional platform gate, and an optional minimum-version
// constraint.
type Dependency struct {
	Name             string
	Features         []string
	Host             bool
	PlatformGate     platformexpr.Expr
	MinimumVersion   *pkgver.SchemedVersion // nil means no constraint
}

// FeaturePackage is one named feature declared by a SourceControlFile:
// its own dependency list, a human description, and a supports-gate.
type FeaturePackage struct {
	Dependencies []Dependency
	Description  string
	Supports     platformexpr.Expr
}

// SourceControlFile is what a PortProvider returns for a resolved
// port+version: core metadata plus the feature table (spec.md §3).
type SourceControlFile struct {
	Name            string
	Version         pkgver.SchemedVersion
	Dependencies    []Dependency // "core" feature's dependencies
	DefaultFeatures []string
	License         string
	Supports        platformexpr.Expr
	Features        map[string]FeaturePackage
}

// SortedFeatureNames returns the declared (non-core, non-default)
// feature names in deterministic order, useful for diagnostics and
// stable iteration during fixed-point resolution.
func (s *SourceControlFile) SortedFeatureNames() []string {
	names := make([]string, 0, len(s.Features))
	for n := range s.Features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FullPackageSpec is a top-level request: a PackageSpec with an explicit
// feature set, per spec.md §4.1's planner contract.
type FullPackageSpec struct {
	Spec     PackageSpec
	Features []string
}
