package planner

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microsoft/vcpkg-tool-sub005/portspec"
)

// traceError is implemented by the typed errors of this package that have
// a longer, multi-line form (DependencyCycleError), so that a caller
// building a diagnostic trail can ask for it without resorting to string
// matching on Error().
type traceError interface {
	traceString() string
}

// PortNotFoundError wraps the provider.NotFound case with the requesting
// feature so the planner's own worklist context survives.
type PortNotFoundError struct {
	Port    string
	Feature string
	Cause   error
}

func (e *PortNotFoundError) Error() string {
	return fmt.Sprintf("port %q not found (requested by feature %q): %v", e.Port, e.Feature, e.Cause)
}

func (e *PortNotFoundError) Unwrap() error { return e.Cause }

// VersionSchemeMismatchError is spec.md §4.1.1's failure when two
// constraints on the same port use incomparable SchemedVersion schemes.
type VersionSchemeMismatchError struct {
	Port string
	A, B portspec.Dependency // the two conflicting constraint sources
}

func (e *VersionSchemeMismatchError) Error() string {
	return fmt.Sprintf("port %q has version constraints under incompatible schemes", e.Port)
}

// BaselineViolationError is spec.md §4.1.1's failure when a resolved
// version falls below the baseline minimum without an explicit override.
type BaselineViolationError struct {
	Port              string
	Resolved, Minimum string
}

func (e *BaselineViolationError) Error() string {
	return fmt.Sprintf("port %q resolved to version %s, below baseline minimum %s", e.Port, e.Resolved, e.Minimum)
}

// UnknownFeatureError is spec.md §4.1.2 step 3's failure.
type UnknownFeatureError struct {
	Port, Feature string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("port %q has no feature %q", e.Port, e.Feature)
}

// UnsupportedError records a port or feature whose supports-expression
// evaluated false for the target triplet (spec.md §4.1.6).
type UnsupportedError struct {
	Spec       portspec.PackageSpec
	Feature    string // empty when the port itself (its "core" supports) is unsupported
	Expression string
}

func (e *UnsupportedError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("%s is not supported: %s evaluated false", e.Spec.String(), e.Expression)
	}
	return fmt.Sprintf("%s[%s] is not supported: %s evaluated false", e.Spec.String(), e.Feature, e.Expression)
}

// DependencyCycleError names the full cycle discovered during the
// topological sort (spec.md §4.1.4).
type DependencyCycleError struct {
	Cycle []portspec.PackageSpec
}

func (e *DependencyCycleError) Error() string {
	var buf bytes.Buffer
	buf.WriteString("dependency cycle: ")
	parts := make([]string, 0, len(e.Cycle)+1)
	for _, s := range e.Cycle {
		parts = append(parts, s.String())
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, e.Cycle[0].String())
	}
	buf.WriteString(strings.Join(parts, " -> "))
	return buf.String()
}

func (e *DependencyCycleError) traceString() string {
	return e.Error()
}
