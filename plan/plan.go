// Package plan defines the ordered action-plan types produced by the
// planner and consumed by the ABI engine, binary cache, and install
// executor (spec.md §3, §4.1-§4.5).
package plan

import (
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// InstalledInfo is what a StatusLookup reports about an already
// installed PackageSpec (spec.md §4.1.5, §4.4): its installed feature
// set, version, and computed ABI tag. Shared between planner.StatusLookup
// and statusdb.Database so the two packages need no import relationship
// between them to agree on the shape.
type InstalledInfo struct {
	Features []string
	Version  pkgver.SchemedVersion
	AbiTag   string
}

// RemoveReason explains why a RemovePlanAction was emitted (spec.md §3).
type RemoveReason int

const (
	RemoveUserRequested RemoveReason = iota
	RemoveDefaulted
	RemoveImpliedByRebuild
)

func (r RemoveReason) String() string {
	switch r {
	case RemoveUserRequested:
		return "user-requested"
	case RemoveDefaulted:
		return "defaulted"
	case RemoveImpliedByRebuild:
		return "implied-by-rebuild"
	default:
		return "unknown"
	}
}

// RemovePlanAction removes an installed PackageSpec.
type RemovePlanAction struct {
	Spec   portspec.PackageSpec
	Reason RemoveReason
}

// DependencyEdge is one resolved per-feature dependency edge recorded on
// an InstallPlanAction, after platform-expression evaluation and host
// resolution (spec.md §3).
type DependencyEdge struct {
	Feature string // the feature on this action that introduced the edge
	Target  portspec.FeatureSpec
}

// BuildState records the current disposition of an InstallPlanAction as
// the planner, ABI engine, and cache narrow it down (spec.md §4.2.3,
// §4.3.3).
type BuildState int

const (
	// StatePlanned is the initial state: an install is wanted, but
	// whether it will build, restore from cache, or be dropped as
	// already-satisfied hasn't been decided yet.
	StatePlanned BuildState = iota
	// StateCached means the ABI engine found an identical ABI tag
	// already installed (spec.md §4.2.3): the action is kept in the
	// plan only for bookkeeping/reporting and performs no I/O.
	StateCached
	// StateNeedsBuildOrRestore means the action will attempt a cache
	// restore and fall back to building from source.
	StateNeedsBuildOrRestore
	// StateExcluded means an unsupported-port or cascade decision
	// removed this action from execution (spec.md §4.1.6).
	StateExcluded
)

// InstallPlanAction installs one PackageSpec with a resolved feature set
// (spec.md §3).
type InstallPlanAction struct {
	Spec               portspec.PackageSpec
	ResolvedFeatures   []string // sorted, post-default-expansion, post-platform-gating
	DependencyEdges    []DependencyEdge
	SourceControlFile  *portspec.SourceControlFile // nil only if unresolved/unsupported
	AbiTag             string                      // empty until the ABI engine runs
	AbiInfoText        string                      // vcpkg_abi_info.txt contents, once computed
	SbomText           string                      // SPDX SBOM JSON contents, once computed
	PackageDirectory   string                      // pre-computed staging/package directory
	State              BuildState
	UnsupportedReason  string // non-empty if gated out by a supports-expression
}

// Action is either a RemovePlanAction or an InstallPlanAction, tagged by
// which pointer is non-nil. Exactly one of Remove/Install is set.
type Action struct {
	Remove  *RemovePlanAction
	Install *InstallPlanAction
}

// Spec returns the PackageSpec this action concerns, regardless of kind.
func (a Action) Spec() portspec.PackageSpec {
	if a.Remove != nil {
		return a.Remove.Spec
	}
	return a.Install.Spec
}

// ActionPlan is the ordered list spec.md §3 describes. Invariant: for
// any install action A, every transitive dependency of A appears before
// A, and any remove action whose spec A overwrites appears before A
// (enforced by the planner's topological sort, see package planner).
type ActionPlan []Action

// InstallActions returns only the InstallPlanActions, in plan order.
func (p ActionPlan) InstallActions() []*InstallPlanAction {
	var out []*InstallPlanAction
	for i := range p {
		if p[i].Install != nil {
			out = append(out, p[i].Install)
		}
	}
	return out
}

// RemoveActions returns only the RemovePlanActions, in plan order.
func (p ActionPlan) RemoveActions() []*RemovePlanAction {
	var out []*RemovePlanAction
	for i := range p {
		if p[i].Remove != nil {
			out = append(out, p[i].Remove)
		}
	}
	return out
}

// Result is the per-action outcome recorded by the install executor
// (spec.md §6's exit-signaling record).
type Result string

const (
	ResultSucceeded                          Result = "Succeeded"
	ResultCached                              Result = "Cached"
	ResultDownloaded                          Result = "Downloaded"
	ResultBuildFailed                         Result = "BuildFailed"
	ResultFileConflicts                       Result = "FileConflicts"
	ResultCascadedDueToMissingDependencies    Result = "CascadedDueToMissingDependencies"
	ResultExcluded                            Result = "Excluded"
	ResultRemoved                             Result = "Removed"
)

// Summary is the per-action exit-signaling record of spec.md §6.
type Summary struct {
	Spec          portspec.PackageSpec
	Result        Result
	ElapsedMicros int64
	StartUnix     int64
	AbiTag        string // empty when not applicable
}
