package install

import (
	"context"

	"github.com/microsoft/vcpkg-tool-sub005/plan"
)

// BuildRequest is everything the out-of-process builder needs (spec.md
// §4.5 step 4): the port directory, the dependency-resolved include/lib
// roots, the triplet file, and the toolset. The core is agnostic about
// the builder's internals; it only observes success/failure and expects
// a conforming tree under StagingDirectory afterward.
type BuildRequest struct {
	Action            *plan.InstallPlanAction
	PortDirectory     string
	StagingDirectory  string
	DependencyRoots   []string // installed triplet roots of direct dependencies, in DependencyEdges order
	TripletFile       string
	Toolset           string
}

// Builder invokes the out-of-process build step. A conforming
// implementation shells out to a build driver binary; this package
// ships no such binary (spec.md's Non-goals exclude the build system
// itself), only the contract the executor drives it through.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) error
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc func(ctx context.Context, req BuildRequest) error

func (f BuilderFunc) Build(ctx context.Context, req BuildRequest) error { return f(ctx, req) }
