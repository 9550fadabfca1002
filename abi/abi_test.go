package abi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

func writePort(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "CONTROL"), []byte("Source: zlib\nVersion: 1.2.11\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newAction(name string, portDir string) *plan.InstallPlanAction {
	return &plan.InstallPlanAction{
		Spec:             portspec.PackageSpec{Name: name, Triplet: triplet.MustParse("x64-linux")},
		ResolvedFeatures: []string{"core"},
		SourceControlFile: &portspec.SourceControlFile{
			Name:    name,
			Version: pkgver.SchemedVersion{Scheme: pkgver.SchemeRelaxed, Version: pkgver.Version{Text: "1.2.11"}},
		},
	}
}

func testEngine(portDir string) *Engine {
	return &Engine{
		PortDirectory: func(a *plan.InstallPlanAction) (string, error) { return portDir, nil },
		Triplet: func(a *plan.InstallPlanAction) (TripletInfo, error) {
			return TripletInfo{TripletABI: "tripletabi", CompilerInfoABI: "compilerabi", ToolsetABI: "toolsetabi"}, nil
		},
	}
}

func TestComputeDeterministic(t *testing.T) {
	portDir := writePort(t)
	e := testEngine(portDir)
	a1 := newAction("zlib", portDir)
	a2 := newAction("zlib", portDir)

	tag1, err := e.Compute(a1, nil)
	if err != nil {
		t.Fatal(err)
	}
	tag2, err := e.Compute(a2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tag1 != tag2 {
		t.Fatalf("expected identical tags for identical inputs, got %s vs %s", tag1, tag2)
	}
	if len(tag1) != 128 {
		t.Fatalf("expected 512-bit hex digest (128 chars), got %d", len(tag1))
	}
}

func TestComputeChangesWithFeatureSet(t *testing.T) {
	portDir := writePort(t)
	e := testEngine(portDir)
	a1 := newAction("zlib", portDir)
	a2 := newAction("zlib", portDir)
	a2.ResolvedFeatures = []string{"core", "tools"}

	tag1, err := e.Compute(a1, nil)
	if err != nil {
		t.Fatal(err)
	}
	tag2, err := e.Compute(a2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tag1 == tag2 {
		t.Fatal("expected different tags for different feature sets")
	}
}

func TestComputeMissingDependencyTag(t *testing.T) {
	portDir := writePort(t)
	e := testEngine(portDir)
	a := newAction("zlib", portDir)
	a.DependencyEdges = []plan.DependencyEdge{{
		Feature: "core",
		Target:  portspec.FeatureSpec{Spec: portspec.PackageSpec{Name: "openssl", Triplet: triplet.MustParse("x64-linux")}, Feature: "core"},
	}}
	if _, err := e.Compute(a, nil); err == nil {
		t.Fatal("expected error when a dependency's package_abi is missing")
	}
}

func TestComputeDisabledCompilerTracking(t *testing.T) {
	portDir := writePort(t)
	e := &Engine{
		PortDirectory: func(a *plan.InstallPlanAction) (string, error) { return portDir, nil },
		Triplet: func(a *plan.InstallPlanAction) (TripletInfo, error) {
			return TripletInfo{TripletABI: "t", CompilerDisabled: true}, nil
		},
	}
	a := newAction("zlib", portDir)
	if _, err := e.Compute(a, nil); err == nil {
		t.Fatal("expected error when compiler tracking is disabled")
	}
}

func TestNeedsRebuild(t *testing.T) {
	if NeedsRebuild("a", "a", false) {
		t.Fatal("identical tags should not need rebuild")
	}
	if !NeedsRebuild("a", "b", false) {
		t.Fatal("different tags should need rebuild")
	}
	if !NeedsRebuild("a", "a", true) {
		t.Fatal("forced rebuild should always need rebuild")
	}
}

func TestBuildSBOMReferencesResources(t *testing.T) {
	portDir := writePort(t)
	e := testEngine(portDir)
	a := newAction("zlib", portDir)
	if _, err := e.Compute(a, nil); err != nil {
		t.Fatal(err)
	}
	sbom, err := BuildSBOM(a, []ResourceHash{{FileName: "zlib-1.2.11.tar.gz", SHA512: "deadbeef"}})
	if err != nil {
		t.Fatal(err)
	}
	if sbom == "" {
		t.Fatal("expected non-empty SBOM")
	}
	if !strings.Contains(sbom, "zlib-1.2.11.tar.gz") || !strings.Contains(sbom, "deadbeef") {
		t.Fatalf("expected SBOM to reference the resource archive and its sha-512, got %s", sbom)
	}
}
