package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/backend/cluster"
	"github.com/caliban-dev/caliban/pkg/backend/local"
	"github.com/caliban-dev/caliban/pkg/buildplan"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dispatch"
	"github.com/caliban-dev/caliban/pkg/status"
)

// resubmitModule implements the `resubmit` verb: re-enter Dispatcher with
// a group's FAILED/STOPPED experiments (or all of them, with --all-jobs),
// rebuilding the container by default so code changes are captured
// (SPEC_FULL.md §6).
type resubmitModule struct{}

func newResubmitModule() *resubmitModule { return &resubmitModule{} }

func (m *resubmitModule) Name() string            { return "resubmit" }
func (m *resubmitModule) ShortDescription() string { return "Re-enter Dispatcher with a group's failed or stopped experiments" }
func (m *resubmitModule) LongDescription() string {
	return "resubmit selects a group's FAILED/STOPPED experiments (or all of them, with --all-jobs), rebuilds the container unless --no-rebuild is given, and re-submits each to the chosen backend."
}
func (m *resubmitModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	cmd.Flags().String("group", "", "group to resubmit")
	cmd.Flags().String("backend", "local", "backend to resubmit to: local, cloud, or cluster")
	cmd.Flags().Bool("all-jobs", false, "resubmit every experiment in the group, not just FAILED/STOPPED ones")
	cmd.Flags().Bool("no-rebuild", false, "reuse the group's existing image instead of rebuilding")
	cmd.Flags().Bool("dry-run", false, "validate every tuple without submitting")
	cmd.Flags().String("runtime-binary", "docker", "container runtime binary (local backend only)")
	addKubeconfigFlag(cmd)
	addCloudFlags(cmd)
}
func (m *resubmitModule) FxModules() []fx.Option { return nil }

func (m *resubmitModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
	group, _ := cmd.Flags().GetString("group")
	if group == "" {
		return requireGroupError("resubmit")
	}
	allJobs, _ := cmd.Flags().GetBool("all-jobs")
	noRebuild, _ := cmd.Flags().GetBool("no-rebuild")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backendName, _ := cmd.Flags().GetString("backend")
	kind := backend.Kind(strings.ToUpper(backendName))

	svc := status.New(deps.Store, nil, deps.Log)
	grouped, err := svc.Group(ctx, group, 0)
	if err != nil {
		return err
	}
	selected := status.ResubmitSelection(grouped, allJobs)
	if len(selected) == 0 {
		deps.Log.Info("nothing to resubmit")
		return nil
	}

	var buildInv *buildplan.Invocation
	if !noRebuild {
		buildInv, err = buildInvocationFromFlags(cmd)
		if err != nil {
			return err
		}
	}

	adapter, err := adapterForKind(cmd, deps, kind)
	if err != nil {
		return err
	}
	d := newDispatcherFromFlags(ctx, cmd, deps, kind, adapter)

	base := dispatch.Invocation{
		BackendKind: kind,
		DryRun:      dryRun,
	}
	if buildInv != nil {
		base.Build = buildInv
	} else {
		base.ImageOverride = selected[0].ImageRef
	}

	results, err := status.Resubmit(ctx, d, group, selected, base, progressLogger(deps))
	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Succeeded() {
			return submissionFailureError(r)
		}
	}
	fmt.Printf("resubmitted %d experiments\n", len(results))
	return nil
}

func adapterForKind(cmd *cobra.Command, deps command.Deps, kind backend.Kind) (backend.Adapter, error) {
	switch kind {
	case backend.Local:
		runtimeBinary, _ := cmd.Flags().GetString("runtime-binary")
		return local.NewAdapter(local.NewExecRunner(runtimeBinary), deps.Log), nil
	case backend.Cloud:
		return newCloudAdapterFromFlags(cmd, deps)
	case backend.Cluster:
		clientset, err := newClientsetFromFlags(cmd)
		if err != nil {
			return nil, err
		}
		namespace, _ := cmd.Flags().GetString("namespace")
		return cluster.NewAdapter(clientset, namespace, deps.Log), nil
	default:
		return nil, calerr.New(calerr.ConfigInvalid, "main.adapterForKind", "unrecognized --backend "+string(kind), nil)
	}
}
