// Package install implements the install executor (spec.md §4.5): it
// walks an ordered plan.ActionPlan, removing, restoring from cache, or
// building each action, serializing StatusDatabase/file-tree mutations
// behind a single write lock while letting the expensive per-action
// work (hashing, restore, build) run on a bounded worker pool (spec.md
// §5). It is grounded on the teacher's solve-then-write pipeline
// (ensure.go's "solve, then writeDepTree" shape) generalized from a
// single vendor-directory write to per-action remove/restore/build/
// commit sequencing; the staging-to-installed copy uses go-shutil, with
// internal/fs's path-prefix check bounding the staged paths.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sdboyer/constext"

	"github.com/microsoft/vcpkg-tool-sub005/abi"
	"github.com/microsoft/vcpkg-tool-sub005/cache"
	"github.com/microsoft/vcpkg-tool-sub005/internal/fs"
	"github.com/microsoft/vcpkg-tool-sub005/internal/fsutil"
	"github.com/microsoft/vcpkg-tool-sub005/log"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/statusdb"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// Params bundles the executor's dependencies (spec.md §4.5's contract).
type Params struct {
	DB      *statusdb.Database
	Cache   *cache.Cache
	Abi     *abi.Engine
	Builder Builder
	Logger  *log.Logger

	// TripletFile resolves the triplet definition file path a build
	// should be driven with.
	TripletFile func(t *triplet.Triplet) (string, error)
	Toolset     string

	// StagingRoot is where package directories are built before being
	// moved into DB.Root(); each action gets its own subdirectory.
	StagingRoot string

	Workers   int  // 0 selects runtime.NumCPU()
	KeepGoing bool // not consulted: Run always keeps going, cascading failures to dependents
	Clock     func() time.Time

	// BuildTimeout bounds a single Builder.Build call, independent of
	// Run's own ctx. 0 disables the bound.
	BuildTimeout time.Duration
}

// Executor runs an ActionPlan end-to-end.
type Executor struct {
	p Params

	mu           sync.Mutex // serializes StatusDatabase + installed-tree mutations
	computedTags map[string]string
	failed       map[string]bool // PackageSpec.String() -> failed or cascaded
}

// NewExecutor constructs an Executor ready to Run.
func NewExecutor(p Params) *Executor {
	if p.Workers <= 0 {
		p.Workers = runtime.NumCPU()
	}
	if p.Logger == nil {
		p.Logger = log.Discard
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	return &Executor{
		p:            p,
		computedTags: make(map[string]string),
		failed:       make(map[string]bool),
	}
}

// Run executes every action in ap in order, respecting dependency edges
// and the remove-before-paired-install ordering the planner already
// encodes (spec.md §4.1.4), and returns one Summary per action (spec.md
// §6's exit-signaling record). Run itself never returns an error for
// per-action failures; keep-going means those are reported in the
// Summary slice instead. Run returns an error only for a setup problem
// (e.g. a nil required dependency).
func (e *Executor) Run(ctx context.Context, ap plan.ActionPlan) ([]plan.Summary, error) {
	if e.p.DB == nil || e.p.Cache == nil || e.p.Abi == nil || e.p.Builder == nil {
		return nil, fmt.Errorf("install: Params.DB, Cache, Abi, and Builder are all required")
	}

	n := len(ap)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}
	// removeDoneIdx maps a spec key to the index of the RemovePlanAction
	// removing it, if one precedes an install of the same spec in ap
	// (the planner emits this pair for a version-change reinstall).
	removeDoneIdx := make(map[string]int)
	for i, a := range ap {
		if a.Remove != nil {
			removeDoneIdx[a.Remove.Spec.String()] = i
		}
	}

	summaries := make([]plan.Summary, n)
	sem := make(chan struct{}, e.p.Workers)
	var wg sync.WaitGroup

	for i := range ap {
		i := i
		a := ap[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[i])

			e.waitDeps(ctx, ap, a, done, removeDoneIdx, i)

			sem <- struct{}{}
			defer func() { <-sem }()

			start := e.p.Clock()
			summaries[i] = e.runOne(ctx, a, start)
		}()
	}
	wg.Wait()

	return summaries, nil
}

// waitDeps blocks goroutine i until every action it must follow has
// finished: an install's resolved dependency targets, and (for an
// install only) any earlier remove of the exact same spec.
func (e *Executor) waitDeps(ctx context.Context, ap plan.ActionPlan, a plan.Action, done []chan struct{}, removeDoneIdx map[string]int, selfIdx int) {
	wait := func(idx int) {
		if idx < 0 || idx >= len(done) || idx == selfIdx {
			return
		}
		select {
		case <-done[idx]:
		case <-ctx.Done():
		}
	}

	if a.Install == nil {
		return
	}
	if removeIdx, ok := removeDoneIdx[a.Install.Spec.String()]; ok {
		wait(removeIdx)
	}
	for _, edge := range a.Install.DependencyEdges {
		targetKey := edge.Target.Spec.String()
		for j, other := range ap {
			if j == selfIdx {
				continue
			}
			if other.Install != nil && other.Install.Spec.String() == targetKey {
				wait(j)
			}
		}
	}
}

// buildContext combines the run's own stop-signal ctx with an
// independently-rooted per-build timeout context (github.com/sdboyer/
// constext, the same combinator the teacher's callManager.setUpCall
// uses to merge an inbound caller ctx with its own outgoing one), so a
// slow build is bounded without the timeout's clock being reset by
// whatever deadline ctx itself already carries.
func (e *Executor) buildContext(ctx context.Context) (context.Context, func()) {
	if e.p.BuildTimeout <= 0 {
		return ctx, func() {}
	}
	timeout, cancelTimeout := context.WithTimeout(context.Background(), e.p.BuildTimeout)
	cctx, cancelCons := constext.Cons(ctx, timeout)
	return cctx, func() {
		cancelTimeout()
		cancelCons()
	}
}

func (e *Executor) runOne(ctx context.Context, a plan.Action, start time.Time) plan.Summary {
	if a.Remove != nil {
		return e.runRemove(ctx, a.Remove, start)
	}
	return e.runInstall(ctx, a.Install, start)
}

func elapsedMicros(start time.Time, clock func() time.Time) int64 {
	return clock().Sub(start).Microseconds()
}

func (e *Executor) recordTag(spec portspec.PackageSpec, tag string) {
	e.mu.Lock()
	e.computedTags[spec.String()] = tag
	e.mu.Unlock()
}

func (e *Executor) dependencyTagsFor(a *plan.InstallPlanAction) map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(a.DependencyEdges))
	for _, edge := range a.DependencyEdges {
		key := edge.Target.Spec.String()
		if tag, ok := e.computedTags[key]; ok {
			out[key] = tag
		}
	}
	return out
}

func (e *Executor) markFailed(spec portspec.PackageSpec) {
	e.mu.Lock()
	e.failed[spec.String()] = true
	e.mu.Unlock()
}

func (e *Executor) dependencyFailed(a *plan.InstallPlanAction) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, edge := range a.DependencyEdges {
		if e.failed[edge.Target.Spec.String()] {
			return true
		}
	}
	return false
}

// sortedStagedPaths wraps fsutil.ListFiles, then guards every result
// with fs.HasFilepathPrefix (teacher's path-aware, case-insensitive-
// filesystem-safe prefix check): a build that follows a symlink or
// writes an escaping relative path out of its own staging directory
// must never be committed into the installed tree. A staged symlink
// itself is checked the same way against its resolved target, since
// HasFilepathPrefix alone only catches an escaping name, not an
// in-bounds name that points outside via a symlink.
func sortedStagedPaths(stagingDir string) ([]string, error) {
	paths, err := fsutil.ListFiles(stagingDir)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		full := filepath.Join(stagingDir, p)
		if !fs.HasFilepathPrefix(full, stagingDir) {
			return nil, fmt.Errorf("install: staged path %s escapes staging directory %s", p, stagingDir)
		}
		if sym, err := fs.IsSymlink(full); err == nil && sym {
			target, err := os.Readlink(full)
			if err != nil {
				return nil, fmt.Errorf("install: reading staged symlink %s: %w", p, err)
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(full), target)
			}
			if !fs.HasFilepathPrefix(target, stagingDir) {
				return nil, fmt.Errorf("install: staged symlink %s resolves outside staging directory %s", p, stagingDir)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}
