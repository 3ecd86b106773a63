// Package command generalizes the cobra+fx verb-wiring pattern the teacher
// uses for its agent binary (cmd/ome-agent/agent.go's AgentModule and
// CreateAgentCommand) into the shape Caliban's ten CLI verbs share: each
// verb configures its own flags and runs against a common set of
// fx-provided dependencies (config, logger, registry store).
package command

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is one CLI verb (build, run, submit-cloud, ...). Unlike the
// teacher's AgentModule, a Module has no independent long-running Start —
// Caliban verbs are one-shot invocations, so Run takes the already-built fx
// app's injected dependencies and returns once the verb completes.
type Module interface {
	Name() string
	ShortDescription() string
	LongDescription() string

	// ConfigureCommand lets the module add its own flags to cmd.
	ConfigureCommand(cmd *cobra.Command)

	// FxModules returns any additional fx options the module's Run needs
	// injected beyond the common set (e.g. a cloud SDK client provider).
	FxModules() []fx.Option

	// Run executes the verb. cmd carries the already-parsed flags; args is
	// cobra's positional-argument slice, including anything after a "--"
	// separator (spec.md §6: "a trailing argv to pass through").
	Run(ctx context.Context, cmd *cobra.Command, deps Deps, args []string) error
}

// NewCommand builds a cobra.Command for module, wiring RunE to assemble an
// fx app and invoke module.Run the way the teacher's CreateAgentCommand
// wires an AgentModule's action.
func NewCommand(module Module) *cobra.Command {
	cmd := &cobra.Command{
		Use:   module.Name(),
		Short: module.ShortDescription(),
		Long:  module.LongDescription(),
	}
	cmd.Flags().String("config", "", "path to a Caliban config file (yaml/json/toml)")
	cmd.Flags().String("registry", "", "path to the registry sqlite file (default: $XDG_STATE_HOME/caliban/registry.db)")
	cmd.Flags().Bool("debug", false, "enable debug logging")
	module.ConfigureCommand(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cmd, module, args)
	}
	return cmd
}

// run assembles the fx app for one verb invocation: build the shared
// dependency set, then invoke module.Run exactly once via an fx lifecycle
// hook, exiting the app as soon as Run returns (spec.md §9: "no
// process-wide mutable state beyond the registry handle, acquired-and-
// released with guaranteed close on all exit paths").
func run(cmd *cobra.Command, module Module, args []string) error {
	var runErr error

	options := []fx.Option{
		configProvider(cmd),
		fx.Provide(provideZapLogger, provideLogger, provideStore(cmd), provideDeps),
		fx.NopLogger,
	}
	options = append(options, module.FxModules()...)
	options = append(options, fx.Invoke(func(lc fx.Lifecycle, deps Deps, l *zap.Logger, sh fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					runErr = module.Run(ctx, cmd, deps, args)
					if deps.Store != nil {
						_ = deps.Store.Close()
					}
					if err := sh.Shutdown(); err != nil {
						l.Error("shutdown failed", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error { return nil },
		})
	}))

	app := fx.New(options...)
	app.Run()
	_ = app.Stop(context.Background())
	return runErr
}

// Main executes root and translates a returned *calerr.Error into the
// process exit code spec.md §6 defines, the way the teacher's
// cmd/ome-agent/main.go drives rootCmd.Execute().
func Main(root *cobra.Command, exitCode func(error) int) {
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
