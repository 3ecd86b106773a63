// Package cloud implements the CloudTraining BackendAdapter (spec.md
// §4.4.2), modeled on OCI Data Science Jobs: a JobSpec becomes a job run
// against a pre-existing Data Science Job resource, with client-side
// accelerator-compatibility validation and bounded retry on rate limits.
package cloud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/datascience"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// Adapter implements backend.Adapter against OCI Data Science Jobs.
type Adapter struct {
	client         datascience.DataScienceClient
	compartmentID  string
	projectID      string
	jobID          string // the pre-existing Data Science Job this adapter creates job runs under
	retryConfig    RetryConfig
	log            logging.Interface
}

// Config carries the fixed, per-deployment parameters an Adapter needs
// beyond what any individual JobSpec supplies.
type Config struct {
	CompartmentID string
	ProjectID     string
	JobID         string
	RetryConfig   RetryConfig
}

// NewAdapter builds an Adapter from an OCI ConfigurationProvider, the
// same construction idiom the teacher's casper client uses.
func NewAdapter(provider common.ConfigurationProvider, cfg Config, log logging.Interface) (*Adapter, error) {
	client, err := datascience.NewDataScienceClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, calerr.Wrap(calerr.BackendError, "cloud.NewAdapter", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	retry := cfg.RetryConfig
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = DefaultRetryConfig()
	}
	return &Adapter{
		client:        client,
		compartmentID: cfg.CompartmentID,
		projectID:     cfg.ProjectID,
		jobID:         cfg.JobID,
		retryConfig:   retry,
		log:           log,
	}, nil
}

func (a *Adapter) Kind() backend.Kind { return backend.Cloud }

func (a *Adapter) Validate(ctx context.Context, spec backend.JobSpec) error {
	if err := backend.ValidateSpec(spec); err != nil {
		return err
	}
	if spec.Region == "" {
		return calerr.New(calerr.ValidationError, "cloud.Validate", "region is required", nil)
	}
	return ValidateAccelerator(spec)
}

func (a *Adapter) Submit(ctx context.Context, spec backend.JobSpec) (backend.SubmitResult, error) {
	jobRunName := jobRunName(spec)
	labels := backend.MergeLabels(map[string]string{
		"caliban.image_ref": spec.ImageRef,
		"caliban.mode":       spec.Mode,
	}, spec.Labels)

	var result backend.SubmitResult
	err := WithBackoff(ctx, a.retryConfig, isTransientOCIError, func() error {
		req := datascience.CreateJobRunRequest{
			CreateJobRunDetails: datascience.CreateJobRunDetails{
				ProjectId:     &a.projectID,
				CompartmentId: &a.compartmentID,
				JobId:         &a.jobID,
				DisplayName:   &jobRunName,
				FreeformTags:  labels,
				JobConfigurationOverrideDetails: datascience.DefaultJobConfigurationDetails{
					CommandLineArguments: strings.Join(spec.Argv, " "),
				},
			},
		}

		resp, err := a.client.CreateJobRun(ctx, req)
		if err != nil {
			return err
		}

		handle := ""
		if resp.JobRun.Id != nil {
			handle = *resp.JobRun.Id
		}
		result = backend.SubmitResult{
			BackendHandle: handle,
			DetailsURL:    fmt.Sprintf("https://cloud.oracle.com/data-science/job-runs/%s", handle),
			Details:       map[string]string{"region": spec.Region, "machine_type": spec.MachineType},
		}
		return nil
	})
	if err != nil {
		return backend.SubmitResult{}, err
	}
	return result, nil
}

func (a *Adapter) Query(ctx context.Context, backendHandle string) (registry.JobStatus, error) {
	resp, err := a.client.GetJobRun(ctx, datascience.GetJobRunRequest{JobRunId: &backendHandle})
	if err != nil {
		return registry.StatusUnknown, calerr.Wrap(calerr.BackendError, "cloud.Query", err)
	}
	return mapLifecycleState(resp.JobRun.LifecycleState), nil
}

func (a *Adapter) Stop(ctx context.Context, backendHandle string) (backend.Ack, error) {
	status, err := a.Query(ctx, backendHandle)
	if err == nil && (status == registry.StatusSucceeded || status == registry.StatusFailed || status == registry.StatusStopped) {
		return backend.Ack{Message: "job already in a terminal state; no change"}, nil
	}

	_, err = a.client.CancelJobRun(ctx, datascience.CancelJobRunRequest{JobRunId: &backendHandle})
	if err != nil {
		return backend.Ack{}, calerr.Wrap(calerr.BackendError, "cloud.Stop", err)
	}
	return backend.Ack{Message: "cancellation requested"}, nil
}

// jobRunName builds a DisplayName of the form name_yyyyMMdd_HHmmss_index
// (spec.md §6), where index is the experiment tuple's position in the
// expansion — without it, a sweep that completes within one wall-clock
// second would submit multiple job runs under an identical name.
func jobRunName(spec backend.JobSpec) string {
	base := "caliban"
	if name, ok := spec.Labels["caliban.group"]; ok && name != "" {
		base = name
	}
	return fmt.Sprintf("%s_%s_%d", base, time.Now().UTC().Format("20060102_150405"), spec.Index)
}

func mapLifecycleState(state datascience.JobRunLifecycleStateEnum) registry.JobStatus {
	switch state {
	case datascience.JobRunLifecycleStateAccepted, datascience.JobRunLifecycleStateInProgress:
		return registry.StatusRunning
	case datascience.JobRunLifecycleStateSucceeded:
		return registry.StatusSucceeded
	case datascience.JobRunLifecycleStateFailed:
		return registry.StatusFailed
	case datascience.JobRunLifecycleStateCancelled, datascience.JobRunLifecycleStateCancelling:
		return registry.StatusStopped
	case datascience.JobRunLifecycleStateDeleted:
		return registry.StatusStopped
	default:
		return registry.StatusUnknown
	}
}

// isTransientOCIError reports whether err represents a rate-limit or
// transient network condition worth retrying. The OCI SDK surfaces these
// as a ServiceError with HTTP status 429 or 5xx.
func isTransientOCIError(err error) bool {
	svcErr, ok := common.IsServiceError(err)
	if !ok {
		return false
	}
	code := svcErr.GetHTTPStatusCode()
	return code == 429 || code >= 500
}
