package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caliban-dev/caliban/pkg/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := Open(path, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetOrCreateGroupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id1, err := s.GetOrCreateGroup(ctx, "my-experiment")
	require.NoError(t, err)

	id2, err := s.GetOrCreateGroup(ctx, "my-experiment")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestStore_GetOrCreateContainerSkipsRebuildOnMatchingRecipe(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	groupID, err := s.GetOrCreateGroup(ctx, "g")
	require.NoError(t, err)

	id1, created1, err := s.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-a")
	require.NoError(t, err)
	require.True(t, created1)

	id2, created2, err := s.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-a")
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)

	id3, created3, err := s.GetOrCreateContainer(ctx, groupID, "img:2", "", "", nil, "hash-b")
	require.NoError(t, err)
	require.True(t, created3)
	require.NotEqual(t, id1, id3)
}

func TestStore_GetOrCreateContainerIdentityIsImageRefAloneAcrossGroups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	groupA, err := s.GetOrCreateGroup(ctx, "group-a")
	require.NoError(t, err)
	groupB, err := s.GetOrCreateGroup(ctx, "group-b")
	require.NoError(t, err)

	id1, created1, err := s.GetOrCreateContainer(ctx, groupA, "img:shared", "CPU", "/proj", []string{"data"}, "hash-a")
	require.NoError(t, err)
	require.True(t, created1)

	id2, created2, err := s.GetOrCreateContainer(ctx, groupB, "img:shared", "CPU", "/proj", []string{"data"}, "hash-b")
	require.NoError(t, err)
	require.False(t, created2, "same image_ref under a different group must reuse the Container row")
	require.Equal(t, id1, id2)
}

func TestStore_JobStatusHistoryEnforcesTransitionGraph(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	groupID, err := s.GetOrCreateGroup(ctx, "g")
	require.NoError(t, err)
	containerID, _, err := s.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-a")
	require.NoError(t, err)
	expID, err := s.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", []string{"--lr", "0.1"}, 0)
	require.NoError(t, err)
	jobID, err := s.CreateJob(ctx, expID, "local", "local-1", StatusSubmitted)
	require.NoError(t, err)

	require.NoError(t, s.UpdateJobStatus(ctx, jobID, StatusRunning, "started"))
	require.NoError(t, s.UpdateJobStatus(ctx, jobID, StatusSucceeded, "exit 0"))

	err = s.UpdateJobStatus(ctx, jobID, StatusRunning, "cannot resurrect a terminal job")
	require.Error(t, err)
}

func TestStore_ListGroupCapsPerExperiment(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	groupID, err := s.GetOrCreateGroup(ctx, "g")
	require.NoError(t, err)
	containerID, _, err := s.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-a")
	require.NoError(t, err)
	expID, err := s.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", []string{"--lr", "0.1"}, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.CreateJob(ctx, expID, "local", "local-job", StatusSubmitted)
		require.NoError(t, err)
	}

	recs, err := s.ListGroup(ctx, "g", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestStore_GetOrCreateExperimentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	groupID, err := s.GetOrCreateGroup(ctx, "g")
	require.NoError(t, err)
	containerID, _, err := s.GetOrCreateContainer(ctx, groupID, "img:1", "", "", nil, "hash-a")
	require.NoError(t, err)

	id1, err := s.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", []string{"--lr", "0.1"}, 0)
	require.NoError(t, err)
	id2, err := s.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", []string{"--lr", "0.1"}, 0)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := s.GetOrCreateExperiment(ctx, groupID, containerID, "train.py", []string{"--lr", "0.2"}, 1)
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusSubmitted, StatusRunning, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusSucceeded, StatusRunning, false},
		{StatusSucceeded, StatusUnknown, true},
		{StatusUnknown, StatusSubmitted, true},
		{StatusFailed, StatusFailed, true},
	}
	for _, c := range cases {
		require.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}
