package portspec

import (
	"testing"

	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

func spec(name, trip string) PackageSpec {
	return PackageSpec{Name: name, Triplet: triplet.MustParse(trip)}
}

func TestPackageSpecOrdering(t *testing.T) {
	a := spec("zlib", "x64-linux")
	b := spec("zlib", "x64-windows")
	c := spec("openssl", "x64-linux")

	if !c.Less(a) {
		t.Fatal("expected openssl < zlib lexicographically")
	}
	if !a.Less(b) {
		t.Fatal("expected same name, triplet tiebreak to order x64-linux < x64-windows")
	}
	if a.Equal(b) {
		t.Fatal("distinct triplets must not compare equal")
	}
}

func TestFeatureSpecString(t *testing.T) {
	fs := FeatureSpec{Spec: spec("zlib", "x64-linux"), Feature: "tools"}
	if fs.String() != "zlib:x64-linux[tools]" {
		t.Fatalf("unexpected String(): %s", fs.String())
	}
	core := FeatureSpec{Spec: spec("zlib", "x64-linux"), Feature: CoreFeature}
	if core.String() != "zlib:x64-linux" {
		t.Fatalf("core feature should not be bracketed, got %s", core.String())
	}
}

func TestSortedFeatureNames(t *testing.T) {
	scf := &SourceControlFile{
		Features: map[string]FeaturePackage{
			"tools": {}, "ssl": {}, "tests": {},
		},
	}
	names := scf.SortedFeatureNames()
	want := []string{"ssl", "tests", "tools"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("expected sorted order %v, got %v", want, names)
		}
	}
}
