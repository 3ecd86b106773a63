package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/command"
)

// notebookModule implements the `notebook` verb: build (or reuse) a
// container like `run`, but hand the LocalRuntime adapter a notebook-
// server entrypoint instead of the module spec (SPEC_FULL.md §6).
type notebookModule struct{}

func newNotebookModule() *notebookModule { return &notebookModule{} }

func (m *notebookModule) Name() string            { return "notebook" }
func (m *notebookModule) ShortDescription() string { return "Run a Jupyter notebook server in the project's built container" }
func (m *notebookModule) LongDescription() string {
	return "notebook builds (or reuses) a container and runs a notebook server in it locally; it creates no registry rows, since an interactive session isn't a sweepable experiment."
}
func (m *notebookModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	cmd.Flags().String("runtime-binary", "docker", "container runtime binary to invoke")
	cmd.Flags().String("notebook-port", "8888", "port the notebook server listens on")
}
func (m *notebookModule) FxModules() []fx.Option { return nil }

func (m *notebookModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
	return runInteractive(ctx, cmd, deps, args, "notebook")
}
