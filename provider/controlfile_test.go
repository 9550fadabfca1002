package provider

import "testing"

const sampleControl = `Source: zlib
Version: 1.2.11
Port-Version: 2
Build-Depends: vcpkg-cmake, vcpkg-cmake-config (windows)
Default-Features: tools
Supports: !uwp
Description: a compression library

Feature: tools
Description: build the minigzip/example tools
Build-Depends: zlib
`

func TestParseControlFile(t *testing.T) {
	scf, err := parseControlFile(sampleControl)
	if err != nil {
		t.Fatal(err)
	}
	if scf.Name != "zlib" {
		t.Fatalf("expected name zlib, got %q", scf.Name)
	}
	if scf.Version.Version.Text != "1.2.11" || scf.Version.Version.PortVersion != 2 {
		t.Fatalf("unexpected version: %+v", scf.Version)
	}
	if len(scf.Dependencies) != 2 {
		t.Fatalf("expected 2 core dependencies, got %d: %+v", len(scf.Dependencies), scf.Dependencies)
	}
	if scf.Dependencies[0].Name != "vcpkg-cmake" {
		t.Fatalf("unexpected first dep: %+v", scf.Dependencies[0])
	}
	if scf.Dependencies[1].Name != "vcpkg-cmake-config" || scf.Dependencies[1].PlatformGate.IsEmpty() {
		t.Fatalf("expected second dep to carry a platform gate: %+v", scf.Dependencies[1])
	}
	if len(scf.DefaultFeatures) != 1 || scf.DefaultFeatures[0] != "tools" {
		t.Fatalf("unexpected default features: %v", scf.DefaultFeatures)
	}
	tools, ok := scf.Features["tools"]
	if !ok {
		t.Fatal("expected a 'tools' feature paragraph")
	}
	if len(tools.Dependencies) != 1 || tools.Dependencies[0].Name != "zlib" {
		t.Fatalf("unexpected tools feature deps: %+v", tools.Dependencies)
	}
}

func TestParseDependencyWithFeatures(t *testing.T) {
	deps, err := parseDependencyList("curl[ssl,http2], openssl")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(deps))
	}
	if deps[0].Name != "curl" || len(deps[0].Features) != 2 {
		t.Fatalf("unexpected curl dep: %+v", deps[0])
	}
}

func TestParseControlFileMissingSource(t *testing.T) {
	if _, err := parseControlFile("Version: 1.0\n\n"); err == nil {
		t.Fatal("expected error for missing Source field")
	}
}
