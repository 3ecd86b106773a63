package main

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/backend/local"
	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dockerbuild"
)

// shellModule implements the `shell` verb: build (or reuse) a container
// like `run`, but hand the LocalRuntime adapter an interactive shell
// entrypoint instead of the module spec. Not a sweepable experiment, so
// no Experiment/Job rows are created (SPEC_FULL.md §6).
type shellModule struct{}

func newShellModule() *shellModule { return &shellModule{} }

func (m *shellModule) Name() string            { return "shell" }
func (m *shellModule) ShortDescription() string { return "Open an interactive shell in the project's built container" }
func (m *shellModule) LongDescription() string {
	return "shell builds (or reuses) a container and runs an interactive shell in it locally; it creates no registry rows, since an interactive session isn't a sweepable experiment."
}
func (m *shellModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	cmd.Flags().String("runtime-binary", "docker", "container runtime binary to invoke")
	cmd.Flags().String("shell", "/bin/bash", "shell binary to run inside the container")
}
func (m *shellModule) FxModules() []fx.Option { return nil }

func (m *shellModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
	return runInteractive(ctx, cmd, deps, args, "shell")
}

// runInteractive is shared by shell and notebook: both build (or reuse) a
// container and invoke the local runtime with an entrypoint override
// instead of going through Dispatcher/RegistryStore.
func runInteractive(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string, kind string) error {
	buildInv, err := buildInvocationFromFlags(cmd)
	if err != nil {
		return err
	}
	image, _ := cmd.Flags().GetString("image")
	runtimeBinary, _ := cmd.Flags().GetString("runtime-binary")

	if image == "" {
		recipe, err := buildplan.Plan(afero.NewOsFs(), *buildInv)
		if err != nil {
			return err
		}
		builder := dockerbuild.NewBuilder(buildInv.ProjectDir, dockerbuild.NewExecRunner("docker"), deps.Log)
		builder.Artifacts = newArtifactRegistry(ctx, deps)
		image, err = builder.Build(ctx, recipe)
		if err != nil {
			return err
		}
	}

	var entrypoint []string
	switch kind {
	case "shell":
		shellBin, _ := cmd.Flags().GetString("shell")
		entrypoint = []string{shellBin}
	case "notebook":
		port, _ := cmd.Flags().GetString("notebook-port")
		entrypoint = []string{"jupyter", "notebook", "--ip=0.0.0.0", "--port=" + port, "--allow-root"}
	}

	adapter := local.NewAdapter(local.NewExecRunner(runtimeBinary), deps.Log)
	spec := backend.JobSpec{ImageRef: image, Entrypoint: entrypoint, Argv: trailingArgv(cmd, args)}
	if err := adapter.Validate(ctx, spec); err != nil {
		return err
	}
	_, err = adapter.Submit(ctx, spec)
	return err
}
