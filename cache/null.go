package cache

import "context"

// NullBackend never has anything and discards every write; it exists so
// a dry-run (spec.md §5's "what would be installed" mode) can still
// construct a Cache and exercise Preflight/Restore/Push without a real
// backend configured.
type NullBackend struct{}

func (NullBackend) Kind() string { return "null" }

func (NullBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	return make([]bool, len(abis)), nil
}

func (NullBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	return false, nil
}

func (NullBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	return nil
}
