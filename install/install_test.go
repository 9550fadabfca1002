package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/microsoft/vcpkg-tool-sub005/abi"
	"github.com/microsoft/vcpkg-tool-sub005/cache"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/statusdb"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

func testSpec(t *testing.T, name string) portspec.PackageSpec {
	t.Helper()
	return portspec.PackageSpec{Name: name, Triplet: triplet.MustParse("x64-linux")}
}

func testSCF(name string) *portspec.SourceControlFile {
	return &portspec.SourceControlFile{
		Name:    name,
		Version: pkgver.SchemedVersion{Scheme: pkgver.SchemeString, Version: pkgver.Version{Text: "1.0.0"}},
	}
}

// newTestEngine returns an abi.Engine whose PortDirectory/Triplet inputs
// are fixed stand-ins, so Compute only varies with the action's own
// resolved feature set and dependency tags.
func newTestEngine(t *testing.T, portDir string) *abi.Engine {
	t.Helper()
	return &abi.Engine{
		PortDirectory: func(a *plan.InstallPlanAction) (string, error) { return portDir, nil },
		Triplet: func(a *plan.InstallPlanAction) (abi.TripletInfo, error) {
			return abi.TripletInfo{TripletABI: "triplet-abi", CompilerInfoABI: "compiler-abi", ToolsetABI: "toolset-abi"}, nil
		},
	}
}

func newTestParams(t *testing.T, dbRoot, stagingRoot, portDir string, build Builder, backend cache.Backend) Params {
	t.Helper()
	db, err := statusdb.LoadCollapse(dbRoot)
	if err != nil {
		t.Fatalf("LoadCollapse: %v", err)
	}
	c := cache.New([]cache.BackendRole{{Backend: backend, Read: true, Write: true}}, nil)
	return Params{
		DB:          db,
		Cache:       c,
		Abi:         newTestEngine(t, portDir),
		Builder:     build,
		TripletFile: func(tr *triplet.Triplet) (string, error) { return "", nil },
		StagingRoot: stagingRoot,
		Workers:     2,
		Clock:       func() time.Time { return time.Unix(0, 0) },
	}
}

func TestRunInstallSucceeds(t *testing.T) {
	root := t.TempDir()
	portDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(portDir, "portfile.cmake"), []byte("# stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	built := false
	builder := BuilderFunc(func(ctx context.Context, req BuildRequest) error {
		built = true
		if err := os.MkdirAll(req.StagingDirectory, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(req.StagingDirectory, "foo.h"), []byte("int foo();"), 0o644)
	})

	p := newTestParams(t, root, t.TempDir(), portDir, builder, &cache.NullBackend{})
	ex := NewExecutor(p)

	spec := testSpec(t, "foo")
	action := plan.Action{Install: &plan.InstallPlanAction{
		Spec:              spec,
		ResolvedFeatures:  []string{portspec.CoreFeature},
		SourceControlFile: testSCF("foo"),
		State:             plan.StateNeedsBuildOrRestore,
	}}

	summaries, err := ex.Run(context.Background(), plan.ActionPlan{action})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !built {
		t.Fatal("builder was never invoked")
	}
	if len(summaries) != 1 || summaries[0].Result != plan.ResultSucceeded {
		t.Fatalf("got summaries %+v", summaries)
	}
	if summaries[0].AbiTag == "" {
		t.Fatal("expected a computed ABI tag")
	}

	info, ok := p.DB.Installed(spec)
	if !ok || info.Version.Version.Text != "1.0.0" {
		t.Fatalf("status database not updated: %+v ok=%v", info, ok)
	}
}

func TestRunInstallCachedSkipsBuild(t *testing.T) {
	root := t.TempDir()
	portDir := t.TempDir()
	os.WriteFile(filepath.Join(portDir, "portfile.cmake"), []byte("# stub"), 0o644)

	builder := BuilderFunc(func(ctx context.Context, req BuildRequest) error {
		t.Fatal("builder should not run for a StateCached action")
		return nil
	})
	p := newTestParams(t, root, t.TempDir(), portDir, builder, &cache.NullBackend{})
	ex := NewExecutor(p)

	action := plan.Action{Install: &plan.InstallPlanAction{
		Spec:              testSpec(t, "bar"),
		ResolvedFeatures:  []string{portspec.CoreFeature},
		SourceControlFile: testSCF("bar"),
		State:             plan.StateCached,
	}}
	summaries, err := ex.Run(context.Background(), plan.ActionPlan{action})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summaries[0].Result != plan.ResultCached {
		t.Fatalf("got %+v", summaries[0])
	}
}

func TestRunInstallExcluded(t *testing.T) {
	root := t.TempDir()
	p := newTestParams(t, root, t.TempDir(), t.TempDir(), BuilderFunc(func(ctx context.Context, req BuildRequest) error {
		t.Fatal("builder should not run for an excluded action")
		return nil
	}), &cache.NullBackend{})
	ex := NewExecutor(p)

	action := plan.Action{Install: &plan.InstallPlanAction{
		Spec:  testSpec(t, "baz"),
		State: plan.StateExcluded,
	}}
	summaries, err := ex.Run(context.Background(), plan.ActionPlan{action})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summaries[0].Result != plan.ResultExcluded {
		t.Fatalf("got %+v", summaries[0])
	}
}

func TestRunCascadesDependencyFailure(t *testing.T) {
	root := t.TempDir()
	portDir := t.TempDir()
	os.WriteFile(filepath.Join(portDir, "portfile.cmake"), []byte("# stub"), 0o644)

	builder := BuilderFunc(func(ctx context.Context, req BuildRequest) error {
		if req.Action.Spec.Name == "dep" {
			return errTest("boom")
		}
		return os.MkdirAll(req.StagingDirectory, 0o755)
	})
	p := newTestParams(t, root, t.TempDir(), portDir, builder, &cache.NullBackend{})
	ex := NewExecutor(p)

	depSpec := testSpec(t, "dep")
	topSpec := testSpec(t, "top")
	ap := plan.ActionPlan{
		{Install: &plan.InstallPlanAction{
			Spec: depSpec, ResolvedFeatures: []string{portspec.CoreFeature},
			SourceControlFile: testSCF("dep"), State: plan.StateNeedsBuildOrRestore,
		}},
		{Install: &plan.InstallPlanAction{
			Spec: topSpec, ResolvedFeatures: []string{portspec.CoreFeature},
			SourceControlFile: testSCF("top"), State: plan.StateNeedsBuildOrRestore,
			DependencyEdges: []plan.DependencyEdge{{Feature: portspec.CoreFeature, Target: portspec.FeatureSpec{Spec: depSpec, Feature: portspec.CoreFeature}}},
		}},
	}

	summaries, err := ex.Run(context.Background(), ap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summaries[0].Result != plan.ResultBuildFailed {
		t.Fatalf("dep: got %+v", summaries[0])
	}
	if summaries[1].Result != plan.ResultCascadedDueToMissingDependencies {
		t.Fatalf("top: got %+v", summaries[1])
	}
}

func TestRunRemoveThenInstallOrdering(t *testing.T) {
	root := t.TempDir()
	portDir := t.TempDir()
	os.WriteFile(filepath.Join(portDir, "portfile.cmake"), []byte("# stub"), 0o644)

	spec := testSpec(t, "foo")
	db, err := statusdb.LoadCollapse(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Put(statusdb.StatusParagraph{
		Spec: spec, Feature: portspec.CoreFeature, State: statusdb.StateInstalled,
		Version: pkgver.SchemedVersion{Scheme: pkgver.SchemeString, Version: pkgver.Version{Text: "0.9.0"}},
	}); err != nil {
		t.Fatal(err)
	}

	builder := BuilderFunc(func(ctx context.Context, req BuildRequest) error {
		return os.MkdirAll(req.StagingDirectory, 0o755)
	})
	p := Params{
		DB:          db,
		Cache:       cache.New([]cache.BackendRole{{Backend: &cache.NullBackend{}, Read: true, Write: true}}, nil),
		Abi:         newTestEngine(t, portDir),
		Builder:     builder,
		TripletFile: func(tr *triplet.Triplet) (string, error) { return "", nil },
		StagingRoot: t.TempDir(),
		Workers:     2,
		Clock:       func() time.Time { return time.Unix(0, 0) },
	}
	ex := NewExecutor(p)

	ap := plan.ActionPlan{
		{Remove: &plan.RemovePlanAction{Spec: spec, Reason: plan.RemoveImpliedByRebuild}},
		{Install: &plan.InstallPlanAction{
			Spec: spec, ResolvedFeatures: []string{portspec.CoreFeature},
			SourceControlFile: testSCF("foo"), State: plan.StateNeedsBuildOrRestore,
		}},
	}
	summaries, err := ex.Run(context.Background(), ap)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summaries[0].Result != plan.ResultRemoved {
		t.Fatalf("remove: got %+v", summaries[0])
	}
	if summaries[1].Result != plan.ResultSucceeded {
		t.Fatalf("install: got %+v", summaries[1])
	}
	info, ok := db.Installed(spec)
	if !ok || info.Version.Version.Text != "1.0.0" {
		t.Fatalf("expected reinstall at 1.0.0, got %+v ok=%v", info, ok)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
