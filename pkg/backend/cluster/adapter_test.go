package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/registry"
)

func TestAdapter_SubmitCreatesJob(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	a := NewAdapter(clientset, "caliban-ns", nil)

	result, err := a.Submit(context.Background(), backend.JobSpec{
		ImageRef: "gcr.io/proj/img:1",
		Labels:   map[string]string{"caliban.group": "my-sweep"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.BackendHandle)

	job, err := clientset.BatchV1().Jobs("caliban-ns").Get(context.Background(), result.BackendHandle, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gcr.io/proj/img:1", job.Spec.Template.Spec.Containers[0].Image)
}

func TestAdapter_QueryMapsJobConditions(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "running-job", Namespace: "caliban-ns"},
		Status:     batchv1.JobStatus{Active: 1},
	})
	a := NewAdapter(clientset, "caliban-ns", nil)

	status, err := a.Query(context.Background(), "running-job")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusRunning, status)
}

func TestAdapter_QuerySucceeded(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "done-job", Namespace: "caliban-ns"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	})
	a := NewAdapter(clientset, "caliban-ns", nil)

	status, err := a.Query(context.Background(), "done-job")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusSucceeded, status)
}

func TestAdapter_QueryMissingJobIsUnknown(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	a := NewAdapter(clientset, "caliban-ns", nil)

	status, err := a.Query(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusUnknown, status)
}

func TestAdapter_StopDeletesJob(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "to-delete", Namespace: "caliban-ns"},
	})
	a := NewAdapter(clientset, "caliban-ns", nil)

	ack, err := a.Stop(context.Background(), "to-delete")
	require.NoError(t, err)
	assert.Equal(t, "job deleted", ack.Message)

	_, err = clientset.BatchV1().Jobs("caliban-ns").Get(context.Background(), "to-delete", metav1.GetOptions{})
	require.Error(t, err)
}

func TestAdapter_StopMissingJobIsNoOp(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	a := NewAdapter(clientset, "caliban-ns", nil)

	ack, err := a.Stop(context.Background(), "never-existed")
	require.NoError(t, err)
	assert.Contains(t, ack.Message, "already absent")
}

func TestAdapter_ValidateRequiresImageRef(t *testing.T) {
	a := NewAdapter(k8sfake.NewSimpleClientset(), "caliban-ns", nil)
	err := a.Validate(context.Background(), backend.JobSpec{})
	require.Error(t, err)
}

func TestAdapter_SubmitExportsManifestInsteadOfCreating(t *testing.T) {
	clientset := k8sfake.NewSimpleClientset()
	a := NewAdapter(clientset, "caliban-ns", nil)
	dest := filepath.Join(t.TempDir(), "job.yaml")

	result, err := a.Submit(context.Background(), backend.JobSpec{
		ImageRef:         "img:1",
		ExportManifestTo: dest,
	})
	require.NoError(t, err)
	assert.Equal(t, dest, result.Details["exported_to"])

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "img:1")

	jobs, err := clientset.BatchV1().Jobs("caliban-ns").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs.Items)
}
