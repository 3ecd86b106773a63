// Package local implements the LocalRuntime BackendAdapter (spec.md
// §4.4.1): it runs the built image synchronously on the host via an
// external container runtime binary (docker/podman-equivalent) and
// returns only after the process exits, so status is always terminal by
// the time Submit returns.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// Runner abstracts the external container-runtime invocation so tests can
// substitute a fake without actually running containers.
type Runner interface {
	Run(ctx context.Context, args []string) (exitCode int, stderr string, err error)
}

// execRunner shells out to a real container runtime binary.
type execRunner struct {
	binary string
}

func (r execRunner) Run(ctx context.Context, args []string) (int, string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return 0, stderr.String(), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), stderr.String(), nil
	}
	return -1, stderr.String(), err
}

// NewExecRunner builds a Runner that shells out to binary (e.g. "docker",
// "podman").
func NewExecRunner(binary string) Runner {
	return execRunner{binary: binary}
}

// Adapter implements backend.Adapter by running jobs synchronously on
// the local host.
type Adapter struct {
	runner Runner
	log    logging.Interface

	mu       sync.Mutex
	observed map[string]registry.JobStatus
	details  map[string]string
}

// NewAdapter builds a LocalRuntime adapter over runner.
func NewAdapter(runner Runner, log logging.Interface) *Adapter {
	if log == nil {
		log = logging.Discard()
	}
	return &Adapter{
		runner:   runner,
		log:      log,
		observed: make(map[string]registry.JobStatus),
		details:  make(map[string]string),
	}
}

func (a *Adapter) Kind() backend.Kind { return backend.Local }

func (a *Adapter) Validate(ctx context.Context, spec backend.JobSpec) error {
	return backend.ValidateSpec(spec)
}

// Submit runs the image to completion (spec.md §4.4.1: "Submission
// returns after the container process exits"), then records the
// terminal status under a freshly generated "local-<uuid>" handle so Query
// can return it later without re-running anything.
func (a *Adapter) Submit(ctx context.Context, spec backend.JobSpec) (backend.SubmitResult, error) {
	args := append(append([]string{"run", "--rm", spec.ImageRef}, spec.Entrypoint...), spec.Argv...)

	exitCode, stderr, err := a.runner.Run(ctx, args)
	handle := "local-" + uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.observed[handle] = registry.StatusFailed
		a.details[handle] = err.Error()
		return backend.SubmitResult{}, calerr.Wrap(calerr.RuntimeExit, "local.Submit", err)
	}

	if exitCode != 0 {
		a.observed[handle] = registry.StatusFailed
		a.details[handle] = stderr
		return backend.SubmitResult{BackendHandle: handle, Details: map[string]string{"exit_code": fmt.Sprint(exitCode), "stderr": stderr}},
			calerr.New(calerr.RuntimeExit, "local.Submit", fmt.Sprintf("container exited %d", exitCode), nil)
	}

	a.observed[handle] = registry.StatusSucceeded
	return backend.SubmitResult{BackendHandle: handle}, nil
}

// Query is a degenerate read of the last-observed status: LocalRuntime
// has no running job to poll once Submit has returned (spec.md §4.4.1).
func (a *Adapter) Query(ctx context.Context, backendHandle string) (registry.JobStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	status, ok := a.observed[backendHandle]
	if !ok {
		return registry.StatusUnknown, nil
	}
	return status, nil
}

// Stop never terminates a container: Submit only returns after the
// process has already exited, so no container of this adapter is left
// running. For a handle this Adapter instance recorded, Stop reports the
// job as already terminal with no change; any other handle, including
// one recorded by a different process, is a BackendError.
func (a *Adapter) Stop(ctx context.Context, backendHandle string) (backend.Ack, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.observed[backendHandle]; ok {
		return backend.Ack{Message: "local job already terminal; no change"}, nil
	}
	return backend.Ack{}, calerr.New(calerr.BackendError, "local.Stop", "unknown backend handle", nil)
}
