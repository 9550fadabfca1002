package planner

import (
	"testing"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// fakePortProvider serves a fixed map of port -> SourceControlFile,
// ignoring version selection (good enough for classic-mode tests).
type fakePortProvider struct {
	ports map[string]*portspec.SourceControlFile
}

func (f *fakePortProvider) GetControlFile(port string) (*portspec.SourceControlFile, error) {
	scf, ok := f.ports[port]
	if !ok {
		return nil, &provider.NotFound{Port: port}
	}
	return scf, nil
}

func (f *fakePortProvider) GetControlFileAt(spec provider.VersionSpec) (*portspec.SourceControlFile, error) {
	return f.GetControlFile(spec.Port)
}

func (f *fakePortProvider) GetPortVersions(port string) ([]pkgver.SchemedVersion, error) {
	scf, ok := f.ports[port]
	if !ok {
		return nil, &provider.NotFound{Port: port}
	}
	return []pkgver.SchemedVersion{scf.Version}, nil
}

type fakeStatus struct {
	installed map[string]InstalledInfo
}

func (f *fakeStatus) Installed(spec portspec.PackageSpec) (InstalledInfo, bool) {
	info, ok := f.installed[spec.String()]
	return info, ok
}

func (f *fakeStatus) ReverseDependents(spec portspec.PackageSpec) []portspec.PackageSpec {
	return nil
}

func v(text string) pkgver.SchemedVersion {
	return pkgver.SchemedVersion{Scheme: pkgver.SchemeRelaxed, Version: pkgver.Version{Text: text}}
}

func TestPlanSimpleDependencyChain(t *testing.T) {
	trip := triplet.MustParse("x64-linux")
	ports := &fakePortProvider{ports: map[string]*portspec.SourceControlFile{
		"zlib": {Name: "zlib", Version: v("1.2.11")},
		"curl": {Name: "curl", Version: v("8.0.0"), Dependencies: []portspec.Dependency{{Name: "zlib"}}},
	}}
	status := &fakeStatus{installed: map[string]InstalledInfo{}}

	pl, err := New(Params{
		Requests:    []portspec.FullPackageSpec{{Spec: portspec.PackageSpec{Name: "curl", Triplet: trip}}},
		HostTriplet: trip,
		Status:      status,
		Ports:       ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	actionPlan, err := pl.Plan()
	if err != nil {
		t.Fatal(err)
	}

	installs := actionPlan.InstallActions()
	if len(installs) != 2 {
		t.Fatalf("expected 2 install actions, got %d: %+v", len(installs), installs)
	}
	if installs[0].Spec.Name != "zlib" || installs[1].Spec.Name != "curl" {
		t.Fatalf("expected zlib before curl, got %s then %s", installs[0].Spec.Name, installs[1].Spec.Name)
	}
}

func TestPlanAlreadyInstalledSkipped(t *testing.T) {
	trip := triplet.MustParse("x64-linux")
	ports := &fakePortProvider{ports: map[string]*portspec.SourceControlFile{
		"zlib": {Name: "zlib", Version: v("1.2.11")},
	}}
	spec := portspec.PackageSpec{Name: "zlib", Triplet: trip}
	status := &fakeStatus{installed: map[string]InstalledInfo{
		spec.String(): {Features: []string{"core"}, Version: v("1.2.11")},
	}}

	pl, err := New(Params{
		Requests:    []portspec.FullPackageSpec{{Spec: spec}},
		HostTriplet: trip,
		Status:      status,
		Ports:       ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	actionPlan, err := pl.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if len(actionPlan.InstallActions()) != 0 {
		t.Fatalf("expected no install actions for an already-satisfied spec, got %+v", actionPlan.InstallActions())
	}
}

func TestPlanVersionChangeSchedulesRemoveThenInstall(t *testing.T) {
	trip := triplet.MustParse("x64-linux")
	ports := &fakePortProvider{ports: map[string]*portspec.SourceControlFile{
		"zlib": {Name: "zlib", Version: v("1.3.0")},
	}}
	spec := portspec.PackageSpec{Name: "zlib", Triplet: trip}
	status := &fakeStatus{installed: map[string]InstalledInfo{
		spec.String(): {Features: []string{"core"}, Version: v("1.2.11")},
	}}

	pl, err := New(Params{
		Requests:    []portspec.FullPackageSpec{{Spec: spec}},
		HostTriplet: trip,
		Status:      status,
		Ports:       ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	actionPlan, err := pl.Plan()
	if err != nil {
		t.Fatal(err)
	}
	if len(actionPlan.RemoveActions()) != 1 {
		t.Fatalf("expected 1 remove action, got %+v", actionPlan.RemoveActions())
	}
	if len(actionPlan.InstallActions()) != 1 {
		t.Fatalf("expected 1 install action, got %+v", actionPlan.InstallActions())
	}
}

func TestPlanUnknownFeatureFails(t *testing.T) {
	trip := triplet.MustParse("x64-linux")
	ports := &fakePortProvider{ports: map[string]*portspec.SourceControlFile{
		"zlib": {Name: "zlib", Version: v("1.2.11")},
	}}
	status := &fakeStatus{installed: map[string]InstalledInfo{}}

	pl, err := New(Params{
		Requests:    []portspec.FullPackageSpec{{Spec: portspec.PackageSpec{Name: "zlib", Triplet: trip}, Features: []string{"nonexistent"}}},
		HostTriplet: trip,
		Status:      status,
		Ports:       ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pl.Plan(); err == nil {
		t.Fatal("expected UnknownFeatureError")
	}
}

func TestPlanDependencyCycleFails(t *testing.T) {
	trip := triplet.MustParse("x64-linux")
	ports := &fakePortProvider{ports: map[string]*portspec.SourceControlFile{
		"a": {Name: "a", Version: v("1.0.0"), Dependencies: []portspec.Dependency{{Name: "b"}}},
		"b": {Name: "b", Version: v("1.0.0"), Dependencies: []portspec.Dependency{{Name: "a"}}},
	}}
	status := &fakeStatus{installed: map[string]InstalledInfo{}}

	pl, err := New(Params{
		Requests:    []portspec.FullPackageSpec{{Spec: portspec.PackageSpec{Name: "a", Triplet: trip}}},
		HostTriplet: trip,
		Status:      status,
		Ports:       ports,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pl.Plan(); err == nil {
		t.Fatal("expected DependencyCycleError")
	}
}
