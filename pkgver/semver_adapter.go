package pkgver

import "github.com/Masterminds/semver"

// newSemverLenient parses s as a semantic version via Masterminds/semver,
// the same library the teacher's constraint handling (constraints.go)
// reaches for. It is a plain semver.NewVersion call: there is no fallback
// parse and no separate empty-input check, so whatever the library
// rejects is returned as its error.
func newSemverLenient(s string) (*semver.Version, error) {
	return semver.NewVersion(s)
}
