package planner

import (
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
)

// resolveVersions implements spec.md §4.1.1. It runs a single BFS over
// every reachable port name's core dependencies (feature-gated
// dependencies are folded in too, since excluding them here would need
// the cmake-var maps this pass runs before loading; including them is
// conservative — it can only raise a minimum version, never violate
// one that feature resolution later decides not to need).
//
// Classic mode (Baseline == nil): each port is simply the provider's
// latest answer; constraints are not consulted.
//
// Versioned mode: each port's version is the maximum, under
// pkgver.Max, of its baseline minimum (if any) and every
// MinimumVersion constraint discovered on an incoming dependency edge,
// unless an explicit Override is present for that port, in which case
// the override wins outright. A resolved version below the baseline
// minimum without an override is a BaselineViolationError.
func (pl *Planner) resolveVersions() error {
	classic := pl.p.Baseline == nil

	seen := make(map[string]bool)
	var queue []string
	for _, req := range pl.p.Requests {
		if !seen[req.Spec.Name] {
			seen[req.Spec.Name] = true
			queue = append(queue, req.Spec.Name)
		}
	}

	minima := make(map[string]pkgver.SchemedVersion)
	haveMinimum := make(map[string]bool)

	applyMinimum := func(port string, v pkgver.SchemedVersion) error {
		if !haveMinimum[port] {
			minima[port] = v
			haveMinimum[port] = true
			return nil
		}
		merged, err := pkgver.Max(minima[port], v)
		if err != nil {
			return &VersionSchemeMismatchError{Port: port}
		}
		minima[port] = merged
		return nil
	}

	if !classic {
		for _, port := range queue {
			if base, ok := pl.p.Baseline.BaselineFor(port); ok {
				if err := applyMinimum(port, base); err != nil {
					return err
				}
			}
		}
	}

	for i := 0; i < len(queue); i++ {
		port := queue[i]

		var scf *portspec.SourceControlFile
		var err error
		if classic {
			scf, err = pl.p.Ports.GetControlFile(port)
		} else {
			// Fetch provisionally at the current best-known minimum (or
			// latest, if none yet) purely to discover further edges;
			// the authoritative fetch at the final version happens
			// after this loop.
			if haveMinimum[port] {
				scf, err = pl.p.Ports.GetControlFileAt(provider.VersionSpec{Port: port, Version: minima[port]})
			} else {
				scf, err = pl.p.Ports.GetControlFile(port)
			}
		}
		if err != nil {
			return &PortNotFoundError{Port: port, Feature: "core", Cause: err}
		}

		allDeps := append([]portspec.Dependency{}, scf.Dependencies...)
		for _, fp := range scf.Features {
			allDeps = append(allDeps, fp.Dependencies...)
		}

		for _, dep := range allDeps {
			if dep.MinimumVersion != nil {
				if !classic {
					if err := applyMinimum(dep.Name, *dep.MinimumVersion); err != nil {
						return err
					}
				}
			}
			if !seen[dep.Name] {
				seen[dep.Name] = true
				queue = append(queue, dep.Name)
				if !classic {
					if base, ok := pl.p.Baseline.BaselineFor(dep.Name); ok {
						if err := applyMinimum(dep.Name, base); err != nil {
							return err
						}
					}
				}
			}
		}
	}

	for _, port := range queue {
		var final pkgver.SchemedVersion
		if override, ok := pl.p.Overrides[port]; ok {
			final = override
		} else if classic {
			scf, err := pl.p.Ports.GetControlFile(port)
			if err != nil {
				return &PortNotFoundError{Port: port, Cause: err}
			}
			final = scf.Version
			pl.versions[port] = final
			pl.scf[port] = scf
			continue
		} else if haveMinimum[port] {
			final = minima[port]
			if base, ok := pl.p.Baseline.BaselineFor(port); ok {
				cmp, err := pkgver.Compare(final, base)
				if err != nil {
					return &VersionSchemeMismatchError{Port: port}
				}
				if cmp < 0 {
					return &BaselineViolationError{Port: port, Resolved: final.String(), Minimum: base.String()}
				}
			}
		} else {
			scf, err := pl.p.Ports.GetControlFile(port)
			if err != nil {
				return &PortNotFoundError{Port: port, Cause: err}
			}
			final = scf.Version
		}

		scf, err := pl.p.Ports.GetControlFileAt(provider.VersionSpec{Port: port, Version: final})
		if err != nil {
			return &PortNotFoundError{Port: port, Cause: err}
		}
		pl.versions[port] = final
		pl.scf[port] = scf
	}

	return nil
}
