// Package abi computes the per-action "ABI tag" (spec.md §4.2): a
// 512-bit hex digest over every input that can affect a build's output
// bits. It is grounded on the teacher's internal/fs.HashFromNode
// (generalized into fsutil.HashTree) and on original_source's abi.h,
// whose AbiEntry/AbiInfo shape fixes the entry ordering and the
// key<NUL>value<LF> serialization this package reproduces exactly.
package abi

import (
	"crypto/sha512"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/internal/fsutil"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
)

// ToolABIVersion is the engine's own ABI version tag (spec.md §4.2.1 item
// 8): bump it whenever this package's input set or combining rule
// changes, so that every previously-computed package_abi invalidates.
const ToolABIVersion = "1"

// ErrInputUnavailable is returned when a required input cannot be
// computed, per spec.md §4.2's "refuse to produce one" contract; the
// caller leaves the action non-cacheable rather than treating this as
// fatal.
type ErrInputUnavailable struct {
	Spec string
	Why  string
}

func (e *ErrInputUnavailable) Error() string {
	return fmt.Sprintf("abi: input unavailable for %s: %s", e.Spec, e.Why)
}

// TripletInfo supplies the triplet-ABI and compiler/toolset fingerprints
// (spec.md §4.2.1 items 4-6), computed once per triplet/toolchain
// combination by the caller and reused across every action that targets
// that triplet.
type TripletInfo struct {
	TripletABI       string // sha-512 over triplet file + host triplet file + referenced .cmake helpers
	CompilerInfoABI  string // empty (and CompilerDisabled set) when compiler tracking is disabled
	CompilerDisabled bool
	ToolsetABI       string
}

// Engine computes package_abi strings for a plan.ActionPlan in
// topological order, since each action's hash folds in its direct
// dependencies' already-computed tags (spec.md §4.2.1 item 3).
type Engine struct {
	// PortDirectory returns the on-disk port directory for a resolved
	// action, whose file tree is hashed per spec.md §4.2.1 item 2.
	PortDirectory func(a *plan.InstallPlanAction) (string, error)
	// Triplet supplies the triplet/compiler/toolset fingerprints for an
	// action's target triplet.
	Triplet func(a *plan.InstallPlanAction) (TripletInfo, error)
}

// entry is one `key<NUL>value<LF>` line of the serialization hashed in
// spec.md §4.2.2. Entries are emitted in the fixed, documented order of
// §4.2.1; they are not re-sorted, unlike original_source's abi.h, whose
// AbiEntry ordering applies only within an individually-sorted group
// (the per-dependency and per-file sub-lists below).
type entry struct {
	key   string
	value string
}

func (e entry) serialize() string {
	return e.key + "\x00" + e.value + "\n"
}

// Compute returns the package_abi for action, given dependencyTags
// mapping each of action's direct dependencies (by PackageSpec.String())
// to their already-computed package_abi.
func (e *Engine) Compute(action *plan.InstallPlanAction, dependencyTags map[string]string) (string, error) {
	if action.SourceControlFile == nil {
		return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: "no resolved SourceControlFile"}
	}

	var entries []entry

	// 1. resolved feature set, sorted.
	features := append([]string(nil), action.ResolvedFeatures...)
	sort.Strings(features)
	entries = append(entries, entry{"features", strings.Join(features, ";")})

	// 2. sha-512 of every file in the port directory, sorted by path.
	portDir, err := e.PortDirectory(action)
	if err != nil {
		return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: err.Error()}
	}
	portHash, err := fsutil.HashTree(portDir, fsutil.SHA512)
	if err != nil {
		return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: errors.Wrap(err, "hashing port directory").Error()}
	}
	entries = append(entries, entry{"portfiles", portHash})

	// 3. each direct dependency's already-computed package_abi, sorted
	// by the dependency's own PackageSpec string so the order is
	// independent of how DependencyEdges happened to be appended.
	depKeys := make([]string, 0, len(action.DependencyEdges))
	seen := make(map[string]bool, len(action.DependencyEdges))
	for _, edge := range action.DependencyEdges {
		key := edge.Target.Spec.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		depKeys = append(depKeys, key)
	}
	sort.Strings(depKeys)
	for _, key := range depKeys {
		tag, ok := dependencyTags[key]
		if !ok {
			return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: fmt.Sprintf("missing package_abi for dependency %s", key)}
		}
		entries = append(entries, entry{"dep:" + key, tag})
	}

	// 4-6. triplet, compiler, toolset fingerprints.
	ti, err := e.Triplet(action)
	if err != nil {
		return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: err.Error()}
	}
	entries = append(entries, entry{"triplet-abi", ti.TripletABI})
	if ti.CompilerDisabled {
		return "", &ErrInputUnavailable{Spec: action.Spec.String(), Why: "compiler tracking disabled"}
	}
	entries = append(entries, entry{"compiler-info-abi", ti.CompilerInfoABI})
	entries = append(entries, entry{"toolset-abi", ti.ToolsetABI})

	// 7. declared version: scheme + text + port-version.
	v := action.SourceControlFile.Version
	entries = append(entries, entry{"version", fmt.Sprintf("%s:%s#%s", v.Scheme, v.Version.Text, strconv.Itoa(v.Version.PortVersion))})

	// 8. the engine's own ABI version tag.
	entries = append(entries, entry{"tool-abi-version", ToolABIVersion})

	tag, infoText := combine(entries)
	action.AbiInfoText = infoText
	action.AbiTag = tag
	return tag, nil
}

// combine implements spec.md §4.2.2's combining rule: each entry
// serialized as key<NUL>value<LF>, concatenated, hashed with SHA-512,
// hex lowercase. It also returns the exact pre-image text, persisted
// verbatim as vcpkg_abi_info.txt (spec.md §4.2.4).
func combine(entries []entry) (tag string, infoText string) {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.serialize())
	}
	infoText = sb.String()
	sum := sha512.Sum512([]byte(infoText))
	return fmt.Sprintf("%x", sum), infoText
}

// NeedsRebuild implements spec.md §4.2.3: compares a freshly computed
// tag against the tag recorded in an installed StatusParagraph. Equal
// tags mean the install demotes to Cached; force causes a rebuild
// regardless of tag equality.
func NeedsRebuild(computedTag, installedTag string, force bool) bool {
	if force {
		return true
	}
	return computedTag != installedTag
}
