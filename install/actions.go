package install

import (
	"context"
	"os"
	"path/filepath"
	"time"

	shutil "github.com/termie/go-shutil"

	"github.com/microsoft/vcpkg-tool-sub005/cache"
	"github.com/microsoft/vcpkg-tool-sub005/internal/fs"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/statusdb"
)

// runRemove implements spec.md §4.5 step 1: read the listfile, delete
// files in reverse order, then write a not-installed paragraph.
func (e *Executor) runRemove(ctx context.Context, a *plan.RemovePlanAction, start time.Time) plan.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, ok := e.p.DB.Installed(a.Spec)
	if ok {
		if err := e.p.DB.RemoveListfile(a.Spec, info.Version); err != nil {
			e.p.Logger.Warnf("remove %s: %v", a.Spec.String(), err)
		}
	}
	if err := e.p.DB.Put(statusdb.StatusParagraph{
		Spec: a.Spec, Feature: portspec.CoreFeature, State: statusdb.StateNotInstalled,
	}); err != nil {
		e.p.Logger.Errorf("remove %s: recording not-installed failed: %v", a.Spec.String(), err)
	}
	for _, feature := range info.Features {
		if feature == portspec.CoreFeature {
			continue
		}
		if err := e.p.DB.Put(statusdb.StatusParagraph{
			Spec: a.Spec, Feature: feature, State: statusdb.StateNotInstalled,
		}); err != nil {
			e.p.Logger.Errorf("remove %s: recording not-installed for feature %s failed: %v", a.Spec.String(), feature, err)
		}
	}

	return plan.Summary{
		Spec: a.Spec, Result: plan.ResultRemoved,
		ElapsedMicros: elapsedMicros(start, e.p.Clock), StartUnix: start.Unix(),
	}
}

// runInstall implements spec.md §4.5 steps 2-4: skip if already
// cached, else restore from the binary cache, else build and commit.
func (e *Executor) runInstall(ctx context.Context, a *plan.InstallPlanAction, start time.Time) plan.Summary {
	base := func(result plan.Result) plan.Summary {
		return plan.Summary{
			Spec: a.Spec, Result: result, AbiTag: a.AbiTag,
			ElapsedMicros: elapsedMicros(start, e.p.Clock), StartUnix: start.Unix(),
		}
	}

	if a.State == plan.StateExcluded {
		return base(plan.ResultExcluded)
	}
	if e.dependencyFailed(a) {
		e.markFailed(a.Spec)
		return base(plan.ResultCascadedDueToMissingDependencies)
	}

	tag, err := e.p.Abi.Compute(a, e.dependencyTagsFor(a))
	if err != nil {
		// No tag: the action is built but never restored from or pushed
		// to the binary cache, and its dependents get no tag either.
		e.p.Logger.Warnf("install %s: no ABI tag, not cacheable: %v", a.Spec.String(), err)
		tag = ""
	}
	a.AbiTag = tag
	if tag != "" {
		e.recordTag(a.Spec, tag)
	}

	if a.State == plan.StateCached {
		return base(plan.ResultCached)
	}

	stagingDir := filepath.Join(e.p.StagingRoot, a.Spec.Triplet.String()+"-"+a.Spec.Name)

	if result, err := e.p.Cache.Restore(ctx, a, stagingDir); err == nil && result == cache.RestoreRestored {
		if err := e.commit(a, stagingDir); err != nil {
			e.p.Logger.Errorf("install %s: committing restored tree: %v", a.Spec.String(), err)
			e.markFailed(a.Spec)
			return base(plan.ResultFileConflicts)
		}
		return base(plan.ResultDownloaded)
	}

	if err := e.p.DB.Put(statusdb.StatusParagraph{
		Spec: a.Spec, Feature: portspec.CoreFeature, Version: versionOf(a), State: statusdb.StateHalfInstalled, AbiTag: tag,
	}); err != nil {
		e.p.Logger.Errorf("install %s: recording half-installed failed: %v", a.Spec.String(), err)
	}
	for _, feature := range featuresExcludingCore(a.ResolvedFeatures) {
		if err := e.p.DB.Put(statusdb.StatusParagraph{
			Spec: a.Spec, Feature: feature, Version: versionOf(a), State: statusdb.StateHalfInstalled, AbiTag: tag,
		}); err != nil {
			e.p.Logger.Errorf("install %s: recording half-installed for feature %s failed: %v", a.Spec.String(), feature, err)
		}
	}

	portDir, err := e.p.Abi.PortDirectory(a)
	if err != nil {
		e.markFailed(a.Spec)
		return base(plan.ResultBuildFailed)
	}
	tripletFile := ""
	if e.p.TripletFile != nil {
		tripletFile, _ = e.p.TripletFile(a.Spec.Triplet)
	}

	if nonEmpty, err := fs.IsNonEmptyDir(stagingDir); err == nil && nonEmpty {
		// A previous run crashed mid-build and left partial output behind;
		// a fresh build must not see stale files from that attempt.
		if err := os.RemoveAll(stagingDir); err != nil {
			e.markFailed(a.Spec)
			return base(plan.ResultBuildFailed)
		}
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		e.markFailed(a.Spec)
		return base(plan.ResultBuildFailed)
	}
	req := BuildRequest{
		Action:           a,
		PortDirectory:    portDir,
		StagingDirectory: stagingDir,
		DependencyRoots:  e.dependencyRoots(a),
		TripletFile:      tripletFile,
		Toolset:          e.p.Toolset,
	}
	buildCtx, cancelBuild := e.buildContext(ctx)
	defer cancelBuild()
	if err := e.p.Builder.Build(buildCtx, req); err != nil {
		e.p.Logger.Warnf("build failed for %s: %v", a.Spec.String(), err)
		e.markFailed(a.Spec)
		return base(plan.ResultBuildFailed)
	}

	if err := e.commit(a, stagingDir); err != nil {
		if _, ok := err.(*statusdb.FileConflictError); ok {
			e.markFailed(a.Spec)
			return base(plan.ResultFileConflicts)
		}
		e.p.Logger.Errorf("install %s: committing built tree: %v", a.Spec.String(), err)
		e.markFailed(a.Spec)
		return base(plan.ResultBuildFailed)
	}

	if tag != "" {
		if err := e.p.Cache.Push(ctx, a, stagingDir); err != nil {
			e.p.Logger.Errorf("install %s: push to cache: %v", a.Spec.String(), err)
		}
	}

	return base(plan.ResultSucceeded)
}

// commit implements spec.md §4.4.4/§4.4.5's ordering: compute the
// listfile from the staged tree, check for conflicts, move files into
// the installed root, write the listfile, then transition to installed
// — in that order, so a crash never leaves an installed paragraph
// without a matching listfile or file tree.
func (e *Executor) commit(a *plan.InstallPlanAction, stagingDir string) error {
	staged, err := sortedStagedPaths(stagingDir)
	if err != nil {
		return err
	}
	if err := e.p.DB.CheckConflicts(a.Spec, staged); err != nil {
		return err
	}

	installedTripletRoot := filepath.Join(e.p.DB.Root(), a.Spec.Triplet.String())
	if err := os.MkdirAll(installedTripletRoot, 0o755); err != nil {
		return err
	}
	for _, p := range staged {
		src, dst := filepath.Join(stagingDir, p), filepath.Join(installedTripletRoot, p)
		fi, err := os.Lstat(src)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			err = os.MkdirAll(dst, 0o755)
		} else if err = os.MkdirAll(filepath.Dir(dst), 0o755); err == nil {
			_, err = shutil.Copy(src, dst, false)
		}
		if err != nil {
			return err
		}
	}

	version := versionOf(a)
	if err := e.p.DB.WriteListfile(a.Spec, version, staged); err != nil {
		return err
	}
	if err := e.p.DB.Put(statusdb.StatusParagraph{
		Spec: a.Spec, Feature: portspec.CoreFeature, Version: version, State: statusdb.StateInstalled,
		AbiTag: a.AbiTag, Depends: dependsOf(a),
	}); err != nil {
		return err
	}
	for _, feature := range featuresExcludingCore(a.ResolvedFeatures) {
		if err := e.p.DB.Put(statusdb.StatusParagraph{
			Spec: a.Spec, Feature: feature, Version: version, State: statusdb.StateInstalled,
			AbiTag: a.AbiTag, Depends: dependsOf(a),
		}); err != nil {
			return err
		}
	}
	return nil
}

// featuresExcludingCore returns features minus the core feature, the set
// spec.md §8 requires its own installed paragraph per resolved feature.
func featuresExcludingCore(features []string) []string {
	var out []string
	for _, f := range features {
		if f != portspec.CoreFeature {
			out = append(out, f)
		}
	}
	return out
}

// versionOf returns the declared version of a's resolved port, the zero
// value if no SourceControlFile was resolved (a shouldn't reach commit
// in that state, but zero is a safe fallback for a removed spec whose
// SourceControlFile was never looked up).
func versionOf(a *plan.InstallPlanAction) pkgver.SchemedVersion {
	if a.SourceControlFile == nil {
		return pkgver.SchemedVersion{}
	}
	return a.SourceControlFile.Version
}

func dependsOf(a *plan.InstallPlanAction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, edge := range a.DependencyEdges {
		key := edge.Target.Spec.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func (e *Executor) dependencyRoots(a *plan.InstallPlanAction) []string {
	seen := make(map[string]bool)
	var out []string
	for _, edge := range a.DependencyEdges {
		key := edge.Target.Spec.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, filepath.Join(e.p.DB.Root(), edge.Target.Spec.Triplet.String()))
	}
	return out
}
