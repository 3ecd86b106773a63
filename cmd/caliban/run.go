package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/backend/local"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dispatch"
)

// runModule implements the `run` verb: build (or reuse) a container and
// submit it to the LocalRuntime adapter, sweeping over an experiment
// config when one is given.
type runModule struct{}

func newRunModule() *runModule { return &runModule{} }

func (m *runModule) Name() string            { return "run" }
func (m *runModule) ShortDescription() string { return "Run a project locally, one job per experiment tuple" }
func (m *runModule) LongDescription() string {
	return "run builds the project (or reuses --image) and invokes the local container runtime synchronously for each tuple an experiment config expands to."
}
func (m *runModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	addExperimentFlags(cmd)
	cmd.Flags().String("runtime-binary", "docker", "container runtime binary to invoke")
	cmd.Flags().Bool("dry-run", false, "validate every tuple without submitting")
}
func (m *runModule) FxModules() []fx.Option { return nil }

func (m *runModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
	buildInv, err := buildInvocationFromFlags(cmd)
	if err != nil {
		return err
	}
	doc, err := readExperimentDoc(cmd)
	if err != nil {
		return err
	}
	image, _ := cmd.Flags().GetString("image")
	rawGroup, _ := cmd.Flags().GetString("group")
	group := resolvedGroupName(rawGroup)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	runtimeBinary, _ := cmd.Flags().GetString("runtime-binary")

	adapter := local.NewAdapter(local.NewExecRunner(runtimeBinary), deps.Log)
	d := newDispatcherFromFlags(ctx, cmd, deps, backend.Local, adapter)

	result, err := d.Dispatch(ctx, dispatch.Invocation{
		GroupName:     group,
		Build:         buildInv,
		ImageOverride: image,
		ExperimentDoc: doc,
		PrefixArgs:    trailingArgv(cmd, args),
		BackendKind:   backend.Local,
		DryRun:        dryRun,
	}, progressLogger(deps))
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return submissionFailureError(result)
	}
	return nil
}
