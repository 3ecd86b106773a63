package main

import (
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/spf13/cobra"

	"github.com/caliban-dev/caliban/pkg/backend/cloud"
	"github.com/caliban-dev/caliban/pkg/command"
)

// addCloudFlags registers the submit-cloud-specific flags on top of the
// common build/experiment flags.
func addCloudFlags(cmd *cobra.Command) {
	cmd.Flags().String("oci-profile", "DEFAULT", "OCI config profile to authenticate with")
	cmd.Flags().String("compartment-id", "", "OCI compartment OCID the Data Science job run is created under")
	cmd.Flags().String("project-id", "", "OCI Data Science project OCID")
	cmd.Flags().String("job-id", "", "pre-existing OCI Data Science Job OCID job runs are created under")
	cmd.Flags().String("region", "", "OCI region, overriding the profile's default")
	cmd.Flags().String("machine-type", "", "OCI Data Science job-run shape")
	cmd.Flags().String("accelerator", "", "accelerator type, e.g. A100, V100")
	cmd.Flags().Int("accelerator-count", 0, "accelerator count")
	cmd.Flags().Bool("preemptible", false, "request a preemptible/flex shape where supported")
	cmd.Flags().Bool("force", false, "skip client-side accelerator-compatibility validation")
}

// newCloudAdapterFromFlags authenticates against OCI the way the
// teacher's casper/ociobjectstore clients do (a common.ConfigurationProvider
// sourced from the standard OCI config file) and builds the CloudTraining
// adapter.
func newCloudAdapterFromFlags(cmd *cobra.Command, deps command.Deps) (*cloud.Adapter, error) {
	profile, _ := cmd.Flags().GetString("oci-profile")
	provider := common.CustomProfileConfigProvider("", profile)

	compartmentID, _ := cmd.Flags().GetString("compartment-id")
	projectID, _ := cmd.Flags().GetString("project-id")
	jobID, _ := cmd.Flags().GetString("job-id")

	return cloud.NewAdapter(provider, cloud.Config{
		CompartmentID: compartmentID,
		ProjectID:     projectID,
		JobID:         jobID,
	}, deps.Log)
}
