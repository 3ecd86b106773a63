package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/command"
	"github.com/caliban-dev/caliban/pkg/dispatch"
)

// submitCloudModule implements the `submit-cloud` verb: dispatch to the
// CloudTraining adapter (spec.md §4.4.2), modeled on OCI Data Science
// Jobs.
type submitCloudModule struct{}

func newSubmitCloudModule() *submitCloudModule { return &submitCloudModule{} }

func (m *submitCloudModule) Name() string            { return "submit-cloud" }
func (m *submitCloudModule) ShortDescription() string { return "Submit a sweep to the managed cloud training service" }
func (m *submitCloudModule) LongDescription() string {
	return "submit-cloud builds (or reuses) a container and submits one job run per experiment tuple against a pre-existing OCI Data Science Job."
}
func (m *submitCloudModule) ConfigureCommand(cmd *cobra.Command) {
	addBuildFlags(cmd)
	addExperimentFlags(cmd)
	addCloudFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "validate every tuple without submitting")
}
func (m *submitCloudModule) FxModules() []fx.Option { return nil }

func (m *submitCloudModule) Run(ctx context.Context, cmd *cobra.Command, deps command.Deps, args []string) error {
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
	region, _ := cmd.Flags().GetString("region")
	machineType, _ := cmd.Flags().GetString("machine-type")
	accelerator, _ := cmd.Flags().GetString("accelerator")
	acceleratorCount, _ := cmd.Flags().GetInt("accelerator-count")
	preemptible, _ := cmd.Flags().GetBool("preemptible")
	force, _ := cmd.Flags().GetBool("force")

	adapter, err := newCloudAdapterFromFlags(cmd, deps)
	if err != nil {
		return err
	}
	d := newDispatcherFromFlags(ctx, cmd, deps, backend.Cloud, adapter)

	result, err := d.Dispatch(ctx, dispatch.Invocation{
		GroupName:     group,
		Build:         buildInv,
		ImageOverride: image,
		ExperimentDoc: doc,
		PrefixArgs:    trailingArgv(cmd, args),
		BackendKind:   backend.Cloud,
		DryRun:        dryRun,
		JobTemplate: backend.JobSpec{
			Region:      region,
			MachineType: machineType,
			Preemptible: preemptible,
			Force:       force,
			Resources: backend.ResourceRequest{
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
