package status

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/dispatch"
	"github.com/caliban-dev/caliban/pkg/experiment"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

type recordingAdapter struct {
	kind      backend.Kind
	stopErr   error
	submitSeq int
}

func (a *recordingAdapter) Kind() backend.Kind { return a.kind }
func (a *recordingAdapter) Validate(context.Context, backend.JobSpec) error { return nil }
func (a *recordingAdapter) Submit(context.Context, backend.JobSpec) (backend.SubmitResult, error) {
	a.submitSeq++
	return backend.SubmitResult{BackendHandle: "h"}, nil
}
func (a *recordingAdapter) Query(context.Context, string) (registry.JobStatus, error) {
	return registry.StatusUnknown, nil
}
func (a *recordingAdapter) Stop(_ context.Context, handle string) (backend.Ack, error) {
	if a.stopErr != nil {
		return backend.Ack{}, a.stopErr
	}
	return backend.Ack{Message: "stopped " + handle}, nil
}

func openTestStore(t *testing.T) *registry.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := registry.Open(path, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedJob(t *testing.T, store *registry.Store, groupName string, args []string, status registry.JobStatus) int64 {
	t.Helper()
	ctx := context.Background()
	groupID, err := store.GetOrCreateGroup(ctx, groupName)
	require.NoError(t, err)
	containerID, _, err := store.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-"+groupName)
	require.NoError(t, err)
	expID, err := store.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", args, 0)
	require.NoError(t, err)
	jobID, err := store.CreateJob(ctx, expID, "LOCAL", "handle-1", registry.StatusSubmitted)
	require.NoError(t, err)
	if status != registry.StatusSubmitted {
		require.NoError(t, store.UpdateJobStatus(ctx, jobID, status, "seeded"))
	}
	return jobID
}

func TestService_GroupNestsJobsByExperiment(t *testing.T) {
	store := openTestStore(t)
	seedJob(t, store, "g", []string{"--lr", "0.1"}, registry.StatusRunning)

	svc := New(store, nil, nil)
	grouped, err := svc.Group(context.Background(), "g", 0)
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Len(t, grouped[0].Jobs, 1)
}

func TestService_StopOnlyTargetsSubmittedAndRunningJobs(t *testing.T) {
	store := openTestStore(t)
	seedJob(t, store, "g", []string{"--lr", "0.1"}, registry.StatusRunning)
	seedJob(t, store, "g", []string{"--lr", "0.2"}, registry.StatusSucceeded)

	adapter := &recordingAdapter{kind: backend.Local}
	svc := New(store, map[backend.Kind]backend.Adapter{backend.Local: adapter}, nil)

	outcomes, err := svc.Stop(context.Background(), "g", false)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes[0].Message, "stopped")
}

func TestService_StopDryRunMakesNoAdapterCalls(t *testing.T) {
	store := openTestStore(t)
	seedJob(t, store, "g", []string{"--lr", "0.1"}, registry.StatusRunning)

	adapter := &recordingAdapter{kind: backend.Local}
	svc := New(store, map[backend.Kind]backend.Adapter{backend.Local: adapter}, nil)

	outcomes, err := svc.Stop(context.Background(), "g", true)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "would stop", outcomes[0].Message)
}

func TestService_StopAlreadyTerminalJobIsSkipped(t *testing.T) {
	store := openTestStore(t)
	seedJob(t, store, "g", []string{"--lr", "0.1"}, registry.StatusSucceeded)

	adapter := &recordingAdapter{kind: backend.Local}
	svc := New(store, map[backend.Kind]backend.Adapter{backend.Local: adapter}, nil)

	outcomes, err := svc.Stop(context.Background(), "g", false)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestResubmitSelection_DefaultsToFailedAndStoppedOnly(t *testing.T) {
	grouped := []GroupedRecord{
		{ExperimentID: 1, Jobs: []registry.JobRecord{{JobID: 1, Status: registry.StatusSucceeded}}},
		{ExperimentID: 2, Jobs: []registry.JobRecord{{JobID: 2, Status: registry.StatusFailed}}},
		{ExperimentID: 3, Jobs: []registry.JobRecord{{JobID: 3, Status: registry.StatusStopped}}},
	}

	selected := ResubmitSelection(grouped, false)
	require.Len(t, selected, 2)
	assert.Equal(t, int64(2), selected[0].ExperimentID)
	assert.Equal(t, int64(3), selected[1].ExperimentID)
}

func TestResubmitSelection_AllJobsWidensSelection(t *testing.T) {
	grouped := []GroupedRecord{
		{ExperimentID: 1, Jobs: []registry.JobRecord{{JobID: 1, Status: registry.StatusSucceeded}}},
	}
	selected := ResubmitSelection(grouped, true)
	require.Len(t, selected, 1)
}

func TestResubmit_ReentersDispatcherPerSelectedExperiment(t *testing.T) {
	store := openTestStore(t)
	adapter := &recordingAdapter{kind: backend.Local}
	d := dispatch.New(afero.NewMemMapFs(), store, nil, map[backend.Kind]backend.Adapter{backend.Local: adapter}, nil)

	selected := []GroupedRecord{
		{ExperimentID: 1, Args: []string{"--lr", "0.1"}},
		{ExperimentID: 2, Args: []string{"--lr", "0.2"}},
	}
	base := dispatch.Invocation{
		ImageOverride: "img:1",
		BackendKind:   backend.Local,
		ExperimentDoc: experiment.Document{},
	}

	results, err := Resubmit(context.Background(), d, "resubmit-group", selected, base, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, adapter.submitSeq)
}
