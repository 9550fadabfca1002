// Package planner implements the dependency planner (spec.md §4.1):
// version resolution, feature fixed-point resolution, platform-gated
// dependency edges, status-database reconciliation, and a deterministic
// topological ordering into a plan.ActionPlan. It is grounded on the
// teacher's gps solver (solver.go's Prepare/Solve shape, its SolveParameters
// struct, and its own radix-backed bookkeeping), generalized from Go
// import-path resolution to vcpkg-style port/feature/triplet resolution.
package planner

import (
	"fmt"

	"github.com/armon/go-radix"
	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// UnsupportedPortAction selects what happens when a supports-expression
// evaluates false for the target triplet (spec.md §4.1.6).
type UnsupportedPortAction int

const (
	UnsupportedWarnThenSkip UnsupportedPortAction = iota
	UnsupportedFail
)

// Flags are the per-run behavior switches of spec.md §4.1's contract.
type Flags struct {
	UseHeadVersion        bool
	Editable              bool
	UnsupportedPortAction UnsupportedPortAction
}

// InstalledInfo is what the planner needs to know about an already
// installed PackageSpec (spec.md §4.1.5). Defined in package plan so
// any StatusLookup implementation (statusdb.Database, or a test fake)
// can satisfy this interface without importing planner.
type InstalledInfo = plan.InstalledInfo

// StatusLookup is the narrow slice of StatusDatabase the planner
// consults, kept local to this package per Go convention (accept
// interfaces, return structs) rather than importing a concrete
// statusdb type.
type StatusLookup interface {
	// Installed returns the recorded install state of spec, if any.
	Installed(spec portspec.PackageSpec) (InstalledInfo, bool)
	// ReverseDependents returns every installed PackageSpec that lists
	// spec as a (core or feature) dependency.
	ReverseDependents(spec portspec.PackageSpec) []portspec.PackageSpec
}

// Params bundles the planner's inputs (spec.md §4.1's contract).
type Params struct {
	Requests    []portspec.FullPackageSpec
	HostTriplet *triplet.Triplet
	Status      StatusLookup
	Ports       provider.PortProvider
	Baseline    provider.BaselineProvider // nil selects classic mode
	Overrides   map[string]pkgver.SchemedVersion
	CMakeVars   provider.CMakeVarProvider
	// PortDirectory resolves the on-disk port directory for a
	// (port, version) pair, needed to batch-load cmake vars.
	PortDirectory func(port string, version pkgver.SchemedVersion) (string, error)
	Flags         Flags
}

// Planner resolves Params into an ordered plan.ActionPlan.
type Planner struct {
	p Params

	versions map[string]pkgver.SchemedVersion    // port -> resolved version
	scf      map[string]*portspec.SourceControlFile // port -> resolved SourceControlFile

	visited *radix.Tree // worklist dedupe, keyed by FeatureSpec.String()

	resolvedFeatures map[string]map[string]bool            // PackageSpec.String() -> feature set
	dependencyEdges  map[string][]plan.DependencyEdge       // PackageSpec.String() -> edges
	specByKey        map[string]portspec.PackageSpec        // PackageSpec.String() -> the spec itself
	unsupported      map[string]*UnsupportedError           // PackageSpec.String() -> why cascaded
}

// New constructs a Planner ready to Plan().
func New(p Params) (*Planner, error) {
	if p.Ports == nil {
		return nil, errors.New("planner: Params.Ports is required")
	}
	if p.HostTriplet == nil {
		return nil, errors.New("planner: Params.HostTriplet is required")
	}
	if p.Status == nil {
		return nil, errors.New("planner: Params.Status is required")
	}
	return &Planner{
		p:                p,
		versions:         make(map[string]pkgver.SchemedVersion),
		scf:              make(map[string]*portspec.SourceControlFile),
		visited:          radix.New(),
		resolvedFeatures: make(map[string]map[string]bool),
		dependencyEdges:  make(map[string][]plan.DependencyEdge),
		specByKey:        make(map[string]portspec.PackageSpec),
		unsupported:      make(map[string]*UnsupportedError),
	}, nil
}

// Plan runs the full algorithm of spec.md §4.1 and returns an ordered
// ActionPlan.
func (pl *Planner) Plan() (plan.ActionPlan, error) {
	if err := pl.resolveVersions(); err != nil {
		return nil, err
	}
	if err := pl.loadCMakeVars(); err != nil {
		return nil, err
	}
	if err := pl.resolveFeatures(); err != nil {
		return nil, err
	}
	actions, err := pl.reconcileWithStatusDB()
	if err != nil {
		return nil, err
	}
	return pl.order(actions)
}

// versionOf returns the final resolved SchemedVersion for port, or the
// zero value if resolveVersions was never asked about it (a bug, not a
// user error, since the discovery pass always visits every reachable
// port name before this is called).
func (pl *Planner) versionOf(port string) pkgver.SchemedVersion {
	return pl.versions[port]
}

func (pl *Planner) sourceControlFile(port string) (*portspec.SourceControlFile, error) {
	if scf, ok := pl.scf[port]; ok {
		return scf, nil
	}
	return nil, &PortNotFoundError{Port: port, Cause: fmt.Errorf("no resolved version for %q", port)}
}

// resolvePortSpec applies a dependency's Host flag to pick the triplet a
// target PackageSpec should use.
func (pl *Planner) resolvePortSpec(name string, host bool, requesterTriplet *triplet.Triplet) portspec.PackageSpec {
	t := requesterTriplet
	if host {
		t = pl.p.HostTriplet
	}
	return portspec.PackageSpec{Name: name, Triplet: t}
}
