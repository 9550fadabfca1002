package planner

import (
	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// loadCMakeVars batch-loads the cmake-var maps needed to evaluate
// platform expressions (spec.md §4.1.3), using the same conservative
// reachable-port set resolveVersions already discovered: every port
// name found paired with every distinct triplet in play (the request
// triplets plus the host triplet, to cover host: true dependencies).
func (pl *Planner) loadCMakeVars() error {
	if pl.p.CMakeVars == nil {
		return nil
	}

	triplets := map[string]*triplet.Triplet{pl.p.HostTriplet.String(): pl.p.HostTriplet}
	for _, r := range pl.p.Requests {
		triplets[r.Spec.Triplet.String()] = r.Spec.Triplet
	}
	for _, t := range triplets {
		if err := pl.p.CMakeVars.LoadGenericTripletVars(t); err != nil {
			return errors.Wrap(err, "loading generic triplet vars")
		}
	}

	var reqs []provider.TagVarRequest
	for port, version := range pl.versions {
		for _, t := range triplets {
			spec := portspec.PackageSpec{Name: port, Triplet: t}
			dir := ""
			if pl.p.PortDirectory != nil {
				d, err := pl.p.PortDirectory(port, version)
				if err != nil {
					return errors.Wrapf(err, "resolving port directory for %s", port)
				}
				dir = d
			}
			reqs = append(reqs, provider.TagVarRequest{Spec: spec, PortDir: dir})
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	return pl.p.CMakeVars.LoadTagVars(reqs)
}

func (pl *Planner) varsFor(spec portspec.PackageSpec) map[string]string {
	if pl.p.CMakeVars == nil {
		return nil
	}
	vars, _ := pl.p.CMakeVars.GetTagVars(spec)
	return vars
}

// resolveFeatures implements spec.md §4.1.2's fixed point: a worklist
// of (spec, feature) pairs, deduplicated through pl.visited, that grows
// resolvedFeatures and dependencyEdges until no new pair is discovered.
func (pl *Planner) resolveFeatures() error {
	queue := make([]portspec.FeatureSpec, 0, len(pl.p.Requests)*2)
	for _, req := range pl.p.Requests {
		features := req.Features
		if len(features) == 0 {
			features = []string{portspec.DefaultFeature}
		}
		for _, f := range features {
			queue = append(queue, portspec.FeatureSpec{Spec: req.Spec, Feature: f})
		}
		queue = append(queue, portspec.FeatureSpec{Spec: req.Spec, Feature: portspec.CoreFeature})
	}

	for i := 0; i < len(queue); i++ {
		fs := queue[i]
		if _, existed := pl.visited.Insert(fs.String(), true); existed {
			continue
		}
		next, err := pl.processFeature(fs)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}

// processFeature resolves a single (spec, feature) worklist entry,
// returning the new (spec, feature) pairs it discovered.
func (pl *Planner) processFeature(fs portspec.FeatureSpec) ([]portspec.FeatureSpec, error) {
	scf, err := pl.sourceControlFile(fs.Spec.Name)
	if err != nil {
		return nil, err
	}

	specKey := fs.Spec.String()
	pl.specByKey[specKey] = fs.Spec
	if pl.resolvedFeatures[specKey] == nil {
		pl.resolvedFeatures[specKey] = make(map[string]bool)
	}

	if fs.Feature == portspec.DefaultFeature {
		var next []portspec.FeatureSpec
		for _, name := range scf.DefaultFeatures {
			next = append(next, portspec.FeatureSpec{Spec: fs.Spec, Feature: name})
		}
		return next, nil
	}

	var deps []portspec.Dependency
	var supports = scf.Supports
	if fs.Feature != portspec.CoreFeature {
		fp, ok := scf.Features[fs.Feature]
		if !ok {
			return nil, &UnknownFeatureError{Port: fs.Spec.Name, Feature: fs.Feature}
		}
		deps = fp.Dependencies
		supports = fp.Supports
	} else {
		deps = scf.Dependencies
	}

	if !supports.IsEmpty() && !supports.Eval(pl.varsFor(fs.Spec)) {
		unsupported := &UnsupportedError{Spec: fs.Spec, Feature: fs.Feature, Expression: supports.String()}
		if pl.p.Flags.UnsupportedPortAction == UnsupportedFail {
			return nil, unsupported
		}
		if fs.Feature == portspec.CoreFeature {
			pl.unsupported[specKey] = unsupported
		}
		return nil, nil
	}

	pl.resolvedFeatures[specKey][fs.Feature] = true

	var next []portspec.FeatureSpec
	for _, dep := range deps {
		if !dep.PlatformGate.IsEmpty() && !dep.PlatformGate.Eval(pl.varsFor(fs.Spec)) {
			continue
		}
		target := pl.resolvePortSpec(dep.Name, dep.Host, fs.Spec.Triplet)
		pl.specByKey[target.String()] = target

		requested := append([]string{portspec.CoreFeature}, dep.Features...)
		for _, tf := range requested {
			edgeTarget := portspec.FeatureSpec{Spec: target, Feature: tf}
			pl.dependencyEdges[specKey] = append(pl.dependencyEdges[specKey], plan.DependencyEdge{Feature: fs.Feature, Target: edgeTarget})
			next = append(next, edgeTarget)
		}
	}
	return next, nil
}
