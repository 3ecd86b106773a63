package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/backend/cluster"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dispatch"
)

// submitClusterModule implements the `submit-cluster` verb: dispatch to
// the KubernetesCluster adapter (spec.md §4.4.3), creating one batch/v1
// Job per experiment tuple against an already-provisioned cluster.
type submitClusterModule struct{}

func newSubmitClusterModule() *submitClusterModule { return &submitClusterModule{} }

func (m *submitClusterModule) Name() string            { return "submit-cluster" }
func (m *submitClusterModule) ShortDescription() string { return "Submit a sweep to a Kubernetes cluster" }
func (m *submitClusterModule) LongDescription() string {
	return "submit-cluster builds (or reuses) a container and creates one batch/v1 Job per experiment tuple on an already-provisioned cluster."
}
func (m *submitClusterModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	addExperimentFlags(cmd)
	addKubeconfigFlag(cmd)
	cmd.Flags().String("accelerator", "", "accelerator type; sets a node-selector/toleration hint")
	cmd.Flags().Int("accelerator-count", 0, "accelerator count")
	cmd.Flags().String("cpu", "", "CPU resource request, e.g. 2 or 500m")
	cmd.Flags().String("export-manifest", "", "write the rendered Job manifest here instead of submitting")
	cmd.Flags().Bool("dry-run", false, "validate every tuple without submitting")
}
func (m *submitClusterModule) FxModules() []fx.Option { return nil }

func (m *submitClusterModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
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
	namespace, _ := cmd.Flags().GetString("namespace")
	accelerator, _ := cmd.Flags().GetString("accelerator")
	acceleratorCount, _ := cmd.Flags().GetInt("accelerator-count")
	cpu, _ := cmd.Flags().GetString("cpu")
	exportManifest, _ := cmd.Flags().GetString("export-manifest")

	clientset, err := newClientsetFromFlags(cmd)
	if err != nil {
		return err
	}
	adapter := cluster.NewAdapter(clientset, namespace, deps.Log)
	d := newDispatcherFromFlags(ctx, cmd, deps, backend.Cluster, adapter)

	result, err := d.Dispatch(ctx, dispatch.Invocation{
		GroupName:     group,
		Build:         buildInv,
		ImageOverride: image,
		ExperimentDoc: doc,
		PrefixArgs:    trailingArgv(cmd, args),
		BackendKind:   backend.Cluster,
		DryRun:        dryRun,
		JobTemplate: backend.JobSpec{
			ExportManifestTo: exportManifest,
			Resources: backend.ResourceRequest{
				CPU:              cpu,
				AcceleratorType:  accelerator,
				AcceleratorCount: acceleratorCount,
			},
		},
	}, progressLogger(deps))
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return submissionFailureError(result)
	}
	return nil
}
