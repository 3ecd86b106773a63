package main

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dockerbuild"
)

// buildModule implements the `build` verb: plan and build a container
// image from a project directory without submitting anything, the
// sweep-free half of what run/submit-* otherwise do inline.
type buildModule struct{}

func newBuildModule() *buildModule { return &buildModule{} }

func (m *buildModule) Name() string            { return "build" }
func (m *buildModule) ShortDescription() string { return "Build a container image from a project directory" }
func (m *buildModule) LongDescription() string {
	return "build resolves a project directory's dependency declaration, base image, and entrypoint into a container image, without dispatching any job."
}
func (m *buildModule) ConfigureCommand(cmd *cobra.Command) { addBuildFlags(cmd) }
func (m *buildModule) FxModules() []fx.Option              { return nil }

func (m *buildModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, _ []string) error {
	inv, err := buildInvocationFromFlags(cmd)
	if err != nil {
		return err
	}
	if inv == nil {
		return calerr.New(calerr.ConfigInvalid, "build.Run", "--image skips BuildPlanner; nothing to build", nil)
	}

	recipe, err := buildplan.Plan(afero.NewOsFs(), *inv)
	if err != nil {
		return err
	}

	builder := dockerbuild.NewBuilder(inv.ProjectDir, dockerbuild.NewExecRunner("docker"), deps.Log)
	builder.Artifacts = newArtifactRegistry(ctx, deps)
	ref, err := builder.Build(ctx, recipe)
	if err != nil {
		return err
	}
	deps.Log.WithField("image_ref", ref).Info("build complete")
	return nil
}
