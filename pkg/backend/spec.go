// Package backend defines the BackendAdapter contract (spec.md §4.4):
// a normalized JobSpec, and validate/submit/query/stop operations that
// each of the three concrete adapters (local, cloud, cluster) implements
// against its own backend's vocabulary.
package backend

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/registry"
)

var validate = validator.New()

// Kind names which concrete backend a Job targets.
type Kind string

const (
	Local   Kind = "LOCAL"
	Cloud   Kind = "CLOUD"
	Cluster Kind = "CLUSTER"
)

// ResourceRequest is the normalized cpu/mem/accelerator shape a JobSpec
// carries; each adapter maps it onto its own vocabulary (machine types,
// node selectors, ...).
type ResourceRequest struct {
	CPU              string // e.g. "2", "500m"
	MemoryGiB        float64
	AcceleratorType  string // "", "V100", "A100", "TPUv3", ...
	AcceleratorCount int
}

// JobSpec is the normalized submission request every adapter consumes
// (spec.md §4.4).
type JobSpec struct {
	ImageRef   string   `validate:"required"`
	Entrypoint []string // argv[0] and fixed prefix, e.g. ["/bin/bash", "entrypoint.sh"]
	Argv       []string // tuple-derived arguments, appended after Entrypoint
	Mode       string   `validate:"omitempty,oneof=CPU GPU TPU-host"` // mirrors buildplan.Mode
	Index      int      // the tuple's position in the expansion, disambiguating same-second submissions

	Resources ResourceRequest

	// Backend-specific options; adapters read only the fields relevant
	// to them and ignore the rest.
	Region          string
	MachineType     string
	Preemptible     bool
	Labels          map[string]string
	Force           bool // skip client-side validation (spec.md §4.4.2)
	ExportManifestTo string // KubernetesCluster: write manifest here instead of submitting
}

// ValidateSpec runs the struct-tag validation common to every adapter
// (required ImageRef, a recognized Mode if one is set) before the
// adapter's own backend-specific checks run.
func ValidateSpec(spec JobSpec) error {
	if err := validate.Struct(spec); err != nil {
		return calerr.Wrap(calerr.ValidationError, "backend.ValidateSpec", err)
	}
	return nil
}

// SubmitResult is what a successful submit() call returns.
type SubmitResult struct {
	BackendHandle string
	DetailsURL    string            // e.g. a console URL, empty if not applicable
	Details       map[string]string // arbitrary backend metadata for registry storage
}

// Ack is returned by a successful stop(); a job that cannot be stopped is
// reported through the error return rather than a second return type, so
// all adapters share one signature.
type Ack struct {
	Message string
}

// Adapter is the common BackendAdapter contract every concrete backend
// implements.
type Adapter interface {
	Kind() Kind
	Validate(ctx context.Context, spec JobSpec) error
	Submit(ctx context.Context, spec JobSpec) (SubmitResult, error)
	Query(ctx context.Context, backendHandle string) (registry.JobStatus, error)
	Stop(ctx context.Context, backendHandle string) (Ack, error)
}
