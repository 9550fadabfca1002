package pkgver

// Max returns the greater of a and b under their shared scheme, per
// spec.md §4.1.1: "When multiple constraints meet on one node, the
// maximum of all minima wins." Returns ErrSchemeMismatch if the two
// versions were declared under different schemes.
func Max(a, b SchemedVersion) (SchemedVersion, error) {
	cmp, err := Compare(a, b)
	if err != nil {
		return SchemedVersion{}, err
	}
	if cmp >= 0 {
		return a, nil
	}
	return b, nil
}

// Less reports whether a orders strictly before b under their shared
// scheme. Panics if the schemes differ; callers that can't guarantee a
// shared scheme should call Compare directly and handle the error.
func Less(a, b SchemedVersion) bool {
	cmp, err := Compare(a, b)
	if err != nil {
		panic(err)
	}
	return cmp < 0
}
