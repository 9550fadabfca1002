// Command vcpkgcore wires the planner, ABI engine, binary cache, status
// database, and install executor into an end-to-end run: resolve a set
// of requested ports against an installed tree, then install the
// resulting plan. It takes the place of the teacher's cmd/dep/main.go
// composition root (flag parsing, Context construction, command
// dispatch) but carries none of the outer flag/config/telemetry surface
// those non-core concerns are explicitly out of scope for this module;
// what is wired here is only what spec.md's core actually needs to run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/microsoft/vcpkg-tool-sub005/abi"
	"github.com/microsoft/vcpkg-tool-sub005/cache"
	"github.com/microsoft/vcpkg-tool-sub005/install"
	"github.com/microsoft/vcpkg-tool-sub005/log"
	"github.com/microsoft/vcpkg-tool-sub005/pkgver"
	"github.com/microsoft/vcpkg-tool-sub005/plan"
	"github.com/microsoft/vcpkg-tool-sub005/planner"
	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/provider"
	"github.com/microsoft/vcpkg-tool-sub005/statusdb"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

func main() {
	portsRoot := flag.String("ports", "", "ports tree root (each port at <ports>/<name>/CONTROL)")
	installedRoot := flag.String("installed", "", "installed tree root")
	tripletName := flag.String("triplet", "", "target triplet (defaults to the detected host triplet)")
	cacheDir := flag.String("cache", "", "local binary cache directory (disabled if empty)")
	flag.Parse()

	if *portsRoot == "" || *installedRoot == "" {
		fmt.Fprintln(os.Stderr, "usage: vcpkgcore -ports DIR -installed DIR [-triplet NAME] [-cache DIR] PORT...")
		os.Exit(2)
	}
	if err := run(*portsRoot, *installedRoot, *tripletName, *cacheDir, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "vcpkgcore: "+err.Error())
		os.Exit(1)
	}
}

func run(portsRoot, installedRoot, tripletName, cacheDir string, ports []string) error {
	logger := log.New(os.Stderr, "vcpkgcore: ")

	trip, err := resolveTriplet(tripletName)
	if err != nil {
		return err
	}

	db, err := statusdb.LoadCollapse(installedRoot)
	if err != nil {
		return fmt.Errorf("loading status database: %w", err)
	}

	ports2 := provider.NewLocalPortProvider(portsRoot)

	requests := make([]portspec.FullPackageSpec, 0, len(ports))
	for _, name := range ports {
		requests = append(requests, portspec.FullPackageSpec{
			Spec: portspec.PackageSpec{Name: name, Triplet: trip},
		})
	}

	pl, err := planner.New(planner.Params{
		Requests:    requests,
		HostTriplet: trip,
		Status:      db,
		Ports:       ports2,
		PortDirectory: func(port string, _ pkgver.SchemedVersion) (string, error) {
			return ports2.PortDirectory(port), nil
		},
	})
	if err != nil {
		return fmt.Errorf("constructing planner: %w", err)
	}
	ap, err := pl.Plan()
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}

	engine := &abi.Engine{
		PortDirectory: func(a *plan.InstallPlanAction) (string, error) {
			return ports2.PortDirectory(a.Spec.Name), nil
		},
		Triplet: func(a *plan.InstallPlanAction) (abi.TripletInfo, error) {
			return tripletFingerprint(trip)
		},
	}

	var backends []cache.BackendRole
	if cacheDir != "" {
		local, err := cache.NewLocalBackend(cacheDir)
		if err != nil {
			return fmt.Errorf("opening local cache: %w", err)
		}
		backends = append(backends, cache.BackendRole{Backend: local, Read: true, Write: true})
	}
	bcache := cache.New(backends, logger)

	ex := install.NewExecutor(install.Params{
		DB:      db,
		Cache:   bcache,
		Abi:     engine,
		Builder: install.BuilderFunc(noopBuilder),
		Logger:  logger,
		TripletFile: func(t *triplet.Triplet) (string, error) {
			return "", nil
		},
		StagingRoot: os.TempDir(),
	})

	summaries, err := ex.Run(context.Background(), ap)
	if err != nil {
		return fmt.Errorf("running install plan: %w", err)
	}
	for _, s := range summaries {
		logger.Infof("%s: %s", s.Spec.String(), s.Result)
	}
	return nil
}

func resolveTriplet(name string) (*triplet.Triplet, error) {
	if name != "" {
		return triplet.Parse(name)
	}
	return triplet.DetectedHost()
}

// tripletFingerprint is a placeholder TripletInfo source: a real
// deployment hashes the triplet file, the host triplet file, and any
// .cmake helpers it includes, none of which this composition root
// resolves a path for on its own, so it reuses the triplet's own
// canonical name as a stand-in fingerprint.
func tripletFingerprint(t *triplet.Triplet) (abi.TripletInfo, error) {
	return abi.TripletInfo{TripletABI: t.String(), CompilerInfoABI: t.String(), ToolsetABI: t.String()}, nil
}

// noopBuilder is a stand-in Builder: spec.md's Non-goals exclude the
// build system itself, so this composition root has nothing real to
// invoke. A deployment wires install.Builder to its own build driver.
func noopBuilder(ctx context.Context, req install.BuildRequest) error {
	return os.MkdirAll(req.StagingDirectory, 0o755)
}
