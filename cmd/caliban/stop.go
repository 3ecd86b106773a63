package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/backend/cluster"
	"github.com/caliban-dev/caliban/pkg/backend/local"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/status"
)

// stopModule implements the `stop` verb: cancel every SUBMITTED/RUNNING
// job in a group (spec.md §4.6's stop(group, dry_run)).
type stopModule struct{}

func newStopModule() *stopModule { return &stopModule{} }

func (m *stopModule) Name() string            { return "stop" }
func (m *stopModule) ShortDescription() string { return "Stop every running job in a group" }
func (m *stopModule) LongDescription() string {
	return "stop asks each backend adapter to cancel every SUBMITTED or RUNNING job in the named group."
}
func (m *stopModule) ConfigureCommand(cmd *cobra.Command) {
	cmd.Flags().String("group", "", "group whose running jobs should be stopped")
	cmd.Flags().Bool("dry-run", false, "report what would be stopped without contacting any backend")
	cmd.Flags().String("runtime-binary", "docker", "container runtime binary local jobs were run with")
	addKubeconfigFlag(cmd)
	addCloudFlags(cmd)
}
func (m *stopModule) FxModules() []fx.Option { return nil }

func (m *stopModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, _ []string) error {
	group, _ := cmd.Flags().GetString("group")
	if group == "" {
		return requireGroupError("stop")
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	adapters := m.adaptersBestEffort(cmd, deps)
	svc := status.New(deps.Store, adapters, deps.Log)

	outcomes, err := svc.Stop(ctx, group, dryRun)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("job %d\tERROR\t%v\n", o.JobID, o.Err)
			continue
		}
		fmt.Printf("job %d\t%s\n", o.JobID, o.Message)
	}
	return nil
}

// adaptersBestEffort builds as many backend adapters as the given flags
// support: local is always available; cloud/cluster are only wired when
// their adapter-specific flags resolve without error, since a stop call
// typically only needs to reach the backend(s) the target group actually
// used.
func (m *stopModule) adaptersBestEffort(cmd *cobra.Command, deps command.Deps) map[backend.Kind]backend.Adapter {
	runtimeBinary, _ := cmd.Flags().GetString("runtime-binary")
	adapters := map[backend.Kind]backend.Adapter{
		backend.Local: local.NewAdapter(local.NewExecRunner(runtimeBinary), deps.Log),
	}

	if cloudAdapter, err := newCloudAdapterFromFlags(cmd, deps); err == nil {
		adapters[backend.Cloud] = cloudAdapter
	} else {
		deps.Log.WithError(err).Debug("cloud adapter unavailable, skipping")
	}

	if clientset, err := newClientsetFromFlags(cmd); err == nil {
		namespace, _ := cmd.Flags().GetString("namespace")
		adapters[backend.Cluster] = cluster.NewAdapter(clientset, namespace, deps.Log)
	} else {
		deps.Log.WithError(err).Debug("cluster adapter unavailable, skipping")
	}

	return adapters
}
