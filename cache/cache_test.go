package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// fakeBackend records call counts so tests can assert at-most-once
// restore/push semantics.
type fakeBackend struct {
	name        string
	hit         map[string]bool
	restoreErr  error
	writeErr    error
	restoreCall int32
	writeCall   int32
}

func (f *fakeBackend) Kind() string { return f.name }

func (f *fakeBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	out := make([]bool, len(abis))
	for i, a := range abis {
		out[i] = f.hit[a]
	}
	return out, nil
}

func (f *fakeBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	atomic.AddInt32(&f.restoreCall, 1)
	if f.restoreErr != nil {
		return false, f.restoreErr
	}
	return f.hit[abi], nil
}

func (f *fakeBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	atomic.AddInt32(&f.writeCall, 1)
	return f.writeErr
}

func newTestAction(name, abi string) *plan.InstallPlanAction {
	trip := triplet.MustParse("x64-linux")
	return &plan.InstallPlanAction{
		Spec:   portspec.PackageSpec{Name: name, Triplet: trip},
		AbiTag: abi,
	}
}

func TestCacheRestoreHit(t *testing.T) {
	be := &fakeBackend{name: "fake", hit: map[string]bool{"abc": true}}
	c := New([]BackendRole{{Backend: be, Read: true}}, nil)

	action := newTestAction("zlib", "abc")
	result, err := c.Restore(context.Background(), action, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if result != RestoreRestored {
		t.Fatalf("expected RestoreRestored, got %v", result)
	}
	if be.restoreCall != 1 {
		t.Fatalf("expected 1 restore call, got %d", be.restoreCall)
	}

	// Second restore of the same tag must be served from state, not
	// the backend again.
	result, err = c.Restore(context.Background(), action, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if result != RestoreRestored {
		t.Fatalf("expected RestoreRestored on second call, got %v", result)
	}
	if be.restoreCall != 1 {
		t.Fatalf("expected restore to run at most once, got %d calls", be.restoreCall)
	}
}

func TestCacheRestoreMiss(t *testing.T) {
	be := &fakeBackend{name: "fake", hit: map[string]bool{}}
	c := New([]BackendRole{{Backend: be, Read: true}}, nil)

	action := newTestAction("zlib", "missing-tag")
	result, err := c.Restore(context.Background(), action, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if result != RestoreUnavailable {
		t.Fatalf("expected RestoreUnavailable, got %v", result)
	}
}

func TestCachePushMandatoryFailureIsFatal(t *testing.T) {
	good := &fakeBackend{name: "good"}
	bad := &fakeBackend{name: "bad", writeErr: errTest{}}
	c := New([]BackendRole{
		{Backend: good, Write: true, Mandatory: false},
		{Backend: bad, Write: true, Mandatory: true},
	}, nil)

	action := newTestAction("zlib", "tag1")
	err := c.Push(context.Background(), action, t.TempDir())
	if err == nil {
		t.Fatal("expected error from mandatory backend failure")
	}
}

func TestCachePushBestEffortFailureIsSwallowed(t *testing.T) {
	bad := &fakeBackend{name: "bad", writeErr: errTest{}}
	c := New([]BackendRole{{Backend: bad, Write: true, Mandatory: false}}, nil)

	action := newTestAction("zlib", "tag1")
	if err := c.Push(context.Background(), action, t.TempDir()); err != nil {
		t.Fatalf("best-effort backend failure should not be fatal, got %v", err)
	}
}

func TestCachePushAtMostOncePerTag(t *testing.T) {
	be := &fakeBackend{name: "fake"}
	c := New([]BackendRole{{Backend: be, Write: true}}, nil)

	action := newTestAction("zlib", "tag1")
	dir := t.TempDir()
	if err := c.Push(context.Background(), action, dir); err != nil {
		t.Fatal(err)
	}
	if err := c.Push(context.Background(), action, dir); err != nil {
		t.Fatal(err)
	}
	if be.writeCall != 1 {
		t.Fatalf("expected push to run at most once, got %d calls", be.writeCall)
	}
}

func TestCachePreflightMarksAvailable(t *testing.T) {
	be := &fakeBackend{name: "fake", hit: map[string]bool{"abc": true}}
	c := New([]BackendRole{{Backend: be, Read: true}}, nil)

	c.Preflight(context.Background(), []string{"abc", "def"})

	st := c.stateFor("abc")
	if st.status != StatusAvailable {
		t.Fatalf("expected abc marked available, got %v", st.status)
	}
	st2 := c.stateFor("def")
	if st2.status != StatusUnknown {
		t.Fatalf("expected def to remain unknown, got %v", st2.status)
	}
}

type errTest struct{}

func (errTest) Error() string { return "synthetic backend failure" }

func TestLocalBackendRoundTrip(t *testing.T) {
	root := t.TempDir()
	be, err := NewLocalBackend(root)
	if err != nil {
		t.Fatal(err)
	}
	defer be.Close()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "payload.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := be.WriteFrom(ctx, "deadbeef", src); err != nil {
		t.Fatal(err)
	}

	hits, err := be.Preflight(ctx, []string{"deadbeef", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if !hits[0] || hits[1] {
		t.Fatalf("unexpected preflight result: %+v", hits)
	}

	dst := t.TempDir()
	ok, err := be.ReadTo(ctx, "deadbeef", dst)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected ReadTo to report a hit")
	}
	got, err := os.ReadFile(filepath.Join(dst, "payload.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected round-tripped content, got %q", got)
	}
}

func TestNullBackendAlwaysMisses(t *testing.T) {
	var be NullBackend
	ctx := context.Background()
	hits, err := be.Preflight(ctx, []string{"a", "b"})
	if err != nil || hits[0] || hits[1] {
		t.Fatalf("expected both misses, got %+v, %v", hits, err)
	}
	ok, err := be.ReadTo(ctx, "a", t.TempDir())
	if err != nil || ok {
		t.Fatalf("expected a clean miss, got %v, %v", ok, err)
	}
	if err := be.WriteFrom(ctx, "a", t.TempDir()); err != nil {
		t.Fatalf("expected WriteFrom to succeed silently, got %v", err)
	}
}
