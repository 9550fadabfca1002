package planner

import (
	"sort"

	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
)

// buildCascadeSet returns every PackageSpec key that must be excluded
// as CascadedDueToMissingDependencies (spec.md §4.1.6): every spec
// recorded unsupported, plus every spec reachable from one by following
// dependencyEdges in the depender direction.
func (pl *Planner) buildCascadeSet() map[string]bool {
	cascaded := make(map[string]bool, len(pl.unsupported))
	for key := range pl.unsupported {
		cascaded[key] = true
	}

	reverse := make(map[string][]string)
	for dependerKey, edges := range pl.dependencyEdges {
		for _, e := range edges {
			tkey := e.Target.Spec.String()
			reverse[tkey] = append(reverse[tkey], dependerKey)
		}
	}

	queue := make([]string, 0, len(cascaded))
	for k := range cascaded {
		queue = append(queue, k)
	}
	for i := 0; i < len(queue); i++ {
		for _, depender := range reverse[queue[i]] {
			if !cascaded[depender] {
				cascaded[depender] = true
				queue = append(queue, depender)
			}
		}
	}
	return cascaded
}

// isSubset reports whether every feature in want (other than the always
// implicit "core") is present in have.
func isSubset(want, have []string) bool {
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}
	for _, w := range want {
		if w == portspec.CoreFeature {
			continue
		}
		if !haveSet[w] {
			return false
		}
	}
	return true
}

// reconcileWithStatusDB implements spec.md §4.1.5: it turns the fixed
// point's resolved feature sets into concrete actions, skipping specs
// that are already satisfied, scheduling remove-then-install for specs
// whose installed version differs, and cascading removal up the
// reverse-dependency graph of already-installed packages outside this
// run's own reachable set.
func (pl *Planner) reconcileWithStatusDB() ([]plan.Action, error) {
	cascaded := pl.buildCascadeSet()

	keys := make([]string, 0, len(pl.specByKey))
	for k := range pl.specByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var actions []plan.Action
	removedKeys := make(map[string]bool)

	for _, key := range keys {
		spec := pl.specByKey[key]

		if cascaded[key] {
			reason := "cascaded due to an unsupported dependency"
			if u, ok := pl.unsupported[key]; ok {
				reason = u.Error()
			}
			actions = append(actions, plan.Action{Install: &plan.InstallPlanAction{
				Spec:              spec,
				State:             plan.StateExcluded,
				UnsupportedReason: reason,
			}})
			continue
		}

		scf, err := pl.sourceControlFile(spec.Name)
		if err != nil {
			return nil, err
		}

		featureSet := pl.resolvedFeatures[key]
		features := make([]string, 0, len(featureSet))
		for f := range featureSet {
			features = append(features, f)
		}
		sort.Strings(features)

		resolvedVersion := pl.versionOf(spec.Name)

		if installed, ok := pl.p.Status.Installed(spec); ok {
			cmp, cmpErr := pkgver.Compare(installed.Version, resolvedVersion)
			sameVersion := cmpErr == nil && cmp == 0
			if sameVersion && isSubset(features, installed.Features) {
				continue // already there
			}
			if !sameVersion {
				actions = append(actions, plan.Action{Remove: &plan.RemovePlanAction{Spec: spec, Reason: plan.RemoveImpliedByRebuild}})
				removedKeys[key] = true
			}
		}

		actions = append(actions, plan.Action{Install: &plan.InstallPlanAction{
			Spec:              spec,
			ResolvedFeatures:  features,
			DependencyEdges:   pl.dependencyEdges[key],
			SourceControlFile: scf,
			State:             plan.StatePlanned,
		}})
	}

	extra, err := pl.cascadeInstalledReverseDependents(removedKeys)
	if err != nil {
		return nil, err
	}
	actions = append(actions, extra...)

	return actions, nil
}

// cascadeInstalledReverseDependents implements the third bullet of
// spec.md §4.1.5: any installed spec outside this run's own reachable
// set that transitively depends on something being removed is also
// scheduled for remove-then-install. These specs are not re-walked
// through feature resolution — they carry forward their
// already-installed feature set — so they are ordered in the final
// plan by name alone, not by a recomputed dependency edge set.
func (pl *Planner) cascadeInstalledReverseDependents(removedKeys map[string]bool) ([]plan.Action, error) {
	var actions []plan.Action
	queue := make([]portspec.PackageSpec, 0, len(removedKeys))
	for key := range removedKeys {
		queue = append(queue, pl.specByKey[key])
	}

	done := make(map[string]bool, len(queue))
	for i := 0; i < len(queue); i++ {
		for _, dependerSpec := range pl.p.Status.ReverseDependents(queue[i]) {
			key := dependerSpec.String()
			if done[key] {
				continue
			}
			done[key] = true
			if _, already := pl.specByKey[key]; already {
				continue
			}
			installed, ok := pl.p.Status.Installed(dependerSpec)
			if !ok {
				continue
			}
			scf, err := pl.p.Ports.GetControlFileAt(provider.VersionSpec{Port: dependerSpec.Name, Version: installed.Version})
			if err != nil {
				return nil, &PortNotFoundError{Port: dependerSpec.Name, Cause: err}
			}
			actions = append(actions, plan.Action{Remove: &plan.RemovePlanAction{Spec: dependerSpec, Reason: plan.RemoveImpliedByRebuild}})
			actions = append(actions, plan.Action{Install: &plan.InstallPlanAction{
				Spec:              dependerSpec,
				ResolvedFeatures:  installed.Features,
				SourceControlFile: scf,
				State:             plan.StatePlanned,
			}})
			queue = append(queue, dependerSpec)
		}
	}
	return actions, nil
}

// order implements spec.md §4.1.4: a topological sort over install
// actions' DependencyEdges, ties broken lexicographically by
// PackageSpec.String() (name, then triplet canonical name), with
// removes placed immediately before the install action they precede.
func (pl *Planner) order(actions []plan.Action) (plan.ActionPlan, error) {
	installByKey := make(map[string]*plan.InstallPlanAction)
	removeByKey := make(map[string]*plan.RemovePlanAction)
	for i := range actions {
		a := actions[i]
		if a.Install != nil {
			installByKey[a.Install.Spec.String()] = a.Install
		} else {
			removeByKey[a.Remove.Spec.String()] = a.Remove
		}
	}

	keys := make([]string, 0, len(installByKey))
	for k := range installByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	adj := make(map[string][]string)
	indegree := make(map[string]int, len(keys))
	for _, k := range keys {
		indegree[k] = 0
	}
	for _, k := range keys {
		for _, e := range installByKey[k].DependencyEdges {
			tkey := e.Target.Spec.String()
			if _, ok := installByKey[tkey]; !ok {
				continue
			}
			adj[tkey] = append(adj[tkey], k)
			indegree[k]++
		}
	}

	var ready []string
	for _, k := range keys {
		if indegree[k] == 0 {
			ready = append(ready, k)
		}
	}

	var orderedKeys []string
	for len(ready) > 0 {
		sort.Strings(ready)
		k := ready[0]
		ready = ready[1:]
		orderedKeys = append(orderedKeys, k)
		for _, depender := range adj[k] {
			indegree[depender]--
			if indegree[depender] == 0 {
				ready = append(ready, depender)
			}
		}
	}

	if len(orderedKeys) != len(keys) {
		remaining := make(map[string]bool)
		for _, k := range keys {
			if indegree[k] > 0 {
				remaining[k] = true
			}
		}
		return nil, &DependencyCycleError{Cycle: findCycle(remaining, installByKey)}
	}

	result := make(plan.ActionPlan, 0, len(actions))
	for _, k := range orderedKeys {
		if rm, ok := removeByKey[k]; ok {
			result = append(result, plan.Action{Remove: rm})
		}
		result = append(result, plan.Action{Install: installByKey[k]})
	}
	return result, nil
}

// findCycle walks dependency edges within remaining (the keys Kahn's
// algorithm never reduced to indegree zero) until it revisits a node,
// and returns the ordered walk from that node up to, not including, its
// revisit — e.g. {x, y} for x -> y -> x — rather than the unordered set
// of stuck nodes.
func findCycle(remaining map[string]bool, installByKey map[string]*plan.InstallPlanAction) []portspec.PackageSpec {
	if len(remaining) == 0 {
		return nil
	}

	startKeys := make([]string, 0, len(remaining))
	for k := range remaining {
		startKeys = append(startKeys, k)
	}
	sort.Strings(startKeys)

	onPath := make(map[string]int)
	var path []string
	cur := startKeys[0]
	for {
		if idx, ok := onPath[cur]; ok {
			keys := path[idx:]
			cycle := make([]portspec.PackageSpec, 0, len(keys))
			for _, k := range keys {
				cycle = append(cycle, installByKey[k].Spec)
			}
			return cycle
		}
		onPath[cur] = len(path)
		path = append(path, cur)

		var deps []string
		for _, e := range installByKey[cur].DependencyEdges {
			tkey := e.Target.Spec.String()
			if remaining[tkey] {
				deps = append(deps, tkey)
			}
		}
		sort.Strings(deps)
		if len(deps) == 0 {
			// Every remaining node has at least one remaining dependency
			// (Kahn's algorithm guarantees this); reaching here would mean
			// that invariant broke, so stop rather than loop forever.
			return []portspec.PackageSpec{installByKey[cur].Spec}
		}
		cur = deps[0]
	}
}
