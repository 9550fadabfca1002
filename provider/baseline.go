package provider

import "github.com/microsoft/vcpkg-tool-sub005/pkgver"

// MapBaselineProvider is a reference BaselineProvider backed by an
// in-memory map. The on-disk baseline file format (spec.md §1) is out
// of scope for the core; a caller constructing this from a parsed
// baseline file does so outside this package.
type MapBaselineProvider struct {
	baseline map[string]pkgver.SchemedVersion
}

// NewMapBaselineProvider returns a MapBaselineProvider over baseline, a
// port-name to minimum-version map. baseline is not copied; callers must
// not mutate it after constructing the provider (spec.md's planner
// contract treats BaselineProvider as a read-only input).
func NewMapBaselineProvider(baseline map[string]pkgver.SchemedVersion) *MapBaselineProvider {
	return &MapBaselineProvider{baseline: baseline}
}

// BaselineFor implements BaselineProvider.
func (m *MapBaselineProvider) BaselineFor(port string) (pkgver.SchemedVersion, bool) {
	v, ok := m.baseline[port]
	return v, ok
}
