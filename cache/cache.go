// Package cache implements the binary cache layer (spec.md §4.3): a
// layered, ABI-tag-keyed store with a bounded in-memory status cache,
// at-most-once-per-tag restore/push semantics, and batched preflight.
// It is grounded on the teacher's internal/gps.boltCache/singleSourceCache
// pattern (a small struct wrapping a persisted store plus per-key
// bookkeeping) and registry.go's HTTP fetch flow, generalized from
// source-repository caching to archive restore/push.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/microsoft/vcpkg-tool-sub005/log"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
)

// Status is the per-tag CacheStatus state machine of spec.md §4.3.2.
type Status int

const (
	StatusUnknown Status = iota
	StatusAvailable
	StatusRestored
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAvailable:
		return "available"
	case StatusRestored:
		return "restored"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// RestoreResult is the outcome of Cache.Restore.
type RestoreResult int

const (
	RestoreRestored RestoreResult = iota
	RestoreUnavailable
)

// Backend is one read/write/preflight-capable store, per spec.md §6's
// "BinaryCache backends (output calls the core makes)" contract.
// Implementations need not support every capability. Cache calls only
// the backends whose BackendRole Read or Write flag is set for the
// operation, so a read-only backend's WriteFrom (which may return an
// error, as HTTPBackend's does without a write template) is not called.
type Backend interface {
	// Kind returns a short tag identifying this backend, used in
	// logging (spec.md §6).
	Kind() string
	// Preflight batch-resolves which of abis this backend already
	// holds, returning a same-length slice of availability bits.
	// Backends without preflight support may resolve this by internally
	// falling back to one Read probe per tag, but MUST still return a
	// same-length result (spec.md §4.3.3's batching contract).
	Preflight(ctx context.Context, abis []string) ([]bool, error)
	// ReadTo extracts the archive for abi into destDir. ok=false (with
	// a nil error) means a clean miss; a non-nil error means the read
	// itself failed (network, corruption) and is treated as a miss too
	// (spec.md §4.3.5), but logged with more detail.
	ReadTo(ctx context.Context, abi string, destDir string) (ok bool, err error)
	// WriteFrom archives srcDir and uploads it keyed by abi.
	WriteFrom(ctx context.Context, abi string, srcDir string) error
}

// BackendRole marks whether a configured Backend participates in reads,
// writes, or both (spec.md §4.3.1's per-backend capability set).
type BackendRole struct {
	Backend   Backend
	Read      bool
	Write     bool
	Mandatory bool // a failed mandatory write backend is fatal, spec.md §4.3.5
}

type tagState struct {
	mu        sync.Mutex
	cond      *sync.Cond
	status    Status
	restoring bool
	restored  bool
	pushed    bool
}

// Cache is the run-wide binary cache: an ordered backend list plus the
// per-tag status cache and restore/push serialization of spec.md §4.3.2.
type Cache struct {
	Backends []BackendRole
	Logger   *log.Logger

	mu    sync.Mutex
	state map[string]*tagState
}

// New constructs a Cache over backends. A nil Logger uses log.Discard.
func New(backends []BackendRole, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Discard
	}
	return &Cache{Backends: backends, Logger: logger, state: make(map[string]*tagState)}
}

func (c *Cache) stateFor(abi string) *tagState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.state[abi]
	if !ok {
		st = &tagState{status: StatusUnknown}
		st.cond = sync.NewCond(&st.mu)
		c.state[abi] = st
	}
	return st
}

// Preflight implements spec.md §4.3.3: one batched call per read
// backend, resolving unknown tags to available where any backend says
// yes. It drives the "demote to Cached" decision in the ABI engine
// (spec.md §4.2.3) by leaving CacheStatus at `available` for tags a
// later Restore call can then actually fetch.
func (c *Cache) Preflight(ctx context.Context, abis []string) {
	if len(abis) == 0 {
		return
	}
	for _, role := range c.Backends {
		if !role.Read {
			continue
		}
		results, err := role.Backend.Preflight(ctx, abis)
		if err != nil {
			c.Logger.Warnf("preflight: backend %s failed, treating all as miss: %v", role.Backend.Kind(), err)
			continue
		}
		if len(results) != len(abis) {
			c.Logger.Warnf("preflight: backend %s returned %d results for %d tags, ignoring", role.Backend.Kind(), len(results), len(abis))
			continue
		}
		for i, hit := range results {
			if !hit {
				continue
			}
			st := c.stateFor(abis[i])
			st.mu.Lock()
			if st.status == StatusUnknown {
				st.status = StatusAvailable
			}
			st.mu.Unlock()
		}
	}
}

// Restore implements the restore(action) arrow of spec.md §4.3: at
// most one restore happens per ABI tag across the whole run (enforced
// by tagState's condition variable), trying read backends in
// configured order until one hits.
func (c *Cache) Restore(ctx context.Context, action *plan.InstallPlanAction, destDir string) (RestoreResult, error) {
	abi := action.AbiTag
	if abi == "" {
		return RestoreUnavailable, fmt.Errorf("cache: restore requires a computed ABI tag for %s", action.Spec.String())
	}

	st := c.stateFor(abi)
	st.mu.Lock()
	for st.restoring {
		st.cond.Wait()
	}
	if st.restored {
		st.mu.Unlock()
		return RestoreRestored, nil
	}
	if st.status == StatusUnavailable {
		st.mu.Unlock()
		return RestoreUnavailable, nil
	}
	st.restoring = true
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		st.restoring = false
		st.cond.Broadcast()
		st.mu.Unlock()
	}()

	for _, role := range c.Backends {
		if !role.Read {
			continue
		}
		ok, err := role.Backend.ReadTo(ctx, abi, destDir)
		if err != nil {
			c.Logger.Warnf("restore %s: backend %s failed, treating as miss: %v", abi, role.Backend.Kind(), err)
			continue
		}
		if ok {
			st.mu.Lock()
			st.status = StatusRestored
			st.restored = true
			st.mu.Unlock()
			return RestoreRestored, nil
		}
	}

	st.mu.Lock()
	st.status = StatusUnavailable
	st.mu.Unlock()
	return RestoreUnavailable, nil
}

// Push implements the push(action) arrow of spec.md §4.3: at most one
// push per ABI tag across the whole run. A failed mandatory write
// backend is a fatal error; a failed best-effort backend is logged and
// skipped (spec.md §4.3.5).
func (c *Cache) Push(ctx context.Context, action *plan.InstallPlanAction, srcDir string) error {
	abi := action.AbiTag
	if abi == "" {
		return fmt.Errorf("cache: push requires a computed ABI tag for %s", action.Spec.String())
	}

	st := c.stateFor(abi)
	st.mu.Lock()
	if st.pushed {
		st.mu.Unlock()
		return nil
	}
	st.pushed = true
	st.mu.Unlock()

	for _, role := range c.Backends {
		if !role.Write {
			continue
		}
		if err := role.Backend.WriteFrom(ctx, abi, srcDir); err != nil {
			if role.Mandatory {
				return fmt.Errorf("cache: mandatory backend %s failed to push %s: %w", role.Backend.Kind(), abi, err)
			}
			c.Logger.Warnf("push %s: best-effort backend %s failed: %v", abi, role.Backend.Kind(), err)
		}
	}
	return nil
}
