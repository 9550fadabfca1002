// Package pkgver implements the Version / VersionScheme data model of
// spec.md §3: a pair of upstream text and integer port-version, ordered
// only within a named scheme.
package pkgver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Scheme names the ordering discipline a port declares for its own
// versions. Comparison across two different schemes is undefined; callers
// must check schemes match before calling Compare (Compare itself returns
// ErrSchemeMismatch rather than guessing).
type Scheme string

const (
	SchemeSemver  Scheme = "semver"
	SchemeRelaxed Scheme = "relaxed"
	SchemeDate    Scheme = "date"
	SchemeString  Scheme = "string"
)

// Version is the upstream version text paired with the integer
// port-version spec.md §3 describes. Two Versions are equal iff both
// fields are equal; ordering requires a Scheme.
type Version struct {
	Text        string
	PortVersion int
}

func (v Version) String() string {
	if v.PortVersion == 0 {
		return v.Text
	}
	return fmt.Sprintf("%s#%d", v.Text, v.PortVersion)
}

// SchemedVersion pairs a Version with the Scheme it must be compared
// under. A port declares exactly one scheme (spec.md §3).
type SchemedVersion struct {
	Scheme  Scheme
	Version Version
}

func (s SchemedVersion) String() string {
	return string(s.Scheme) + ":" + s.Version.String()
}

// ErrSchemeMismatch is returned by Compare when asked to order two
// SchemedVersions declared under different schemes; the planner surfaces
// this as VersionSchemeMismatch (spec.md §4.1.1, §7).
var ErrSchemeMismatch = errors.New("pkgver: cannot compare versions under different schemes")

// Compare orders a against b. The result follows the usual convention:
// negative if a < b, zero if equal, positive if a > b. PortVersion is the
// final tiebreaker whenever the Text portions compare equal under the
// scheme.
func Compare(a, b SchemedVersion) (int, error) {
	if a.Scheme != b.Scheme {
		return 0, errors.Wrapf(ErrSchemeMismatch, "%s vs %s", a.Scheme, b.Scheme)
	}

	textCmp, err := compareText(a.Scheme, a.Version.Text, b.Version.Text)
	if err != nil {
		return 0, err
	}
	if textCmp != 0 {
		return textCmp, nil
	}
	return a.Version.PortVersion - b.Version.PortVersion, nil
}

func compareText(scheme Scheme, a, b string) (int, error) {
	switch scheme {
	case SchemeSemver:
		return compareSemver(a, b)
	case SchemeRelaxed:
		return compareRelaxed(a, b)
	case SchemeDate:
		return compareDate(a, b)
	case SchemeString:
		return compareString(a, b)
	default:
		return 0, errors.Errorf("pkgver: unknown version scheme %q", scheme)
	}
}

func compareSemver(a, b string) (int, error) {
	va, err := newSemverLenient(a)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing semver %q", a)
	}
	vb, err := newSemverLenient(b)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing semver %q", b)
	}
	return va.Compare(vb), nil
}

// compareRelaxed implements spec.md §3's "relaxed" scheme: dot-separated
// numerics compared component-wise (a longer numeric prefix that agrees
// on every shared component is greater), with the arbitrary trailing
// string tail compared lexicographically only when the numeric prefixes
// are equal.
func compareRelaxed(a, b string) (int, error) {
	an, at := splitNumericPrefix(a)
	bn, bt := splitNumericPrefix(b)

	n := len(an)
	if len(bn) < n {
		n = len(bn)
	}
	for i := 0; i < n; i++ {
		if an[i] != bn[i] {
			if an[i] < bn[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	if len(an) != len(bn) {
		if len(an) < len(bn) {
			return -1, nil
		}
		return 1, nil
	}
	return strings.Compare(at, bt), nil
}

// splitNumericPrefix splits s into its dot-separated run of purely numeric
// components and whatever text remains (including the separator that
// stopped the numeric run, so "1.2.3-rc1" yields ([1,2,3], "-rc1")).
func splitNumericPrefix(s string) ([]int64, string) {
	var nums []int64
	rest := s
	for {
		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		if j == 0 {
			break
		}
		n, err := strconv.ParseInt(rest[:j], 10, 64)
		if err != nil {
			break
		}
		nums = append(nums, n)
		rest = rest[j:]
		if len(rest) < 2 || rest[0] != '.' || rest[1] < '0' || rest[1] > '9' {
			break
		}
		rest = rest[1:]
	}
	return nums, rest
}

// compareDate implements spec.md §3's "date" scheme: a YYYY-MM-DD prefix
// compared as a calendar date, with any trailing text (e.g. ".1", ".r2")
// compared lexicographically once the dates are equal.
func compareDate(a, b string) (int, error) {
	da, ta, err := splitDatePrefix(a)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing date version %q", a)
	}
	db, tb, err := splitDatePrefix(b)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing date version %q", b)
	}
	if da.Before(db) {
		return -1, nil
	}
	if da.After(db) {
		return 1, nil
	}
	return strings.Compare(ta, tb), nil
}

func splitDatePrefix(s string) (time.Time, string, error) {
	if len(s) < len("2006-01-02") {
		return time.Time{}, "", errors.Errorf("too short to contain a date prefix: %q", s)
	}
	prefix := s[:len("2006-01-02")]
	t, err := time.Parse("2006-01-02", prefix)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, s[len(prefix):], nil
}

// compareString implements spec.md §3's "string" scheme: equality only.
// Any two distinct strings are mutually "incomparable" in the sense that
// neither is ever treated as greater; callers needing a strict order
// under this scheme (e.g. a stable sort) still get one here for
// determinism, but it carries no upstream-version meaning.
func compareString(a, b string) (int, error) {
	return strings.Compare(a, b), nil
}
