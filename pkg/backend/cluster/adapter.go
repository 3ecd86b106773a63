// Package cluster implements the KubernetesCluster BackendAdapter
// (spec.md §4.4.3), generalizing the teacher's batch-Job reconciler
// (pkg/controller/.../reconcilers/job/job.go) into direct client-go
// submit/query/stop calls — Caliban issues one-shot requests, not a
// reconcile loop, so no controller-runtime manager is needed.
package cluster

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	"github.com/caliban-dev/caliban/pkg/backend"
	"github.com/caliban-dev/caliban/pkg/calerr"
	"github.com/caliban-dev/caliban/pkg/logging"
	"github.com/caliban-dev/caliban/pkg/registry"
)

// Adapter implements backend.Adapter against a Kubernetes batch/v1 API.
type Adapter struct {
	clientset kubernetes.Interface
	namespace string
	log       logging.Interface
}

// NewAdapter builds an Adapter over an already-constructed clientset —
// Caliban's core never discovers or provisions the cluster itself
// (spec.md §1's out-of-scope list), it only consumes a resolved
// kubernetes.Interface and namespace.
func NewAdapter(clientset kubernetes.Interface, namespace string, log logging.Interface) *Adapter {
	if log == nil {
		log = logging.Discard()
	}
	return &Adapter{clientset: clientset, namespace: namespace, log: log}
}

func (a *Adapter) Kind() backend.Kind { return backend.Cluster }

func (a *Adapter) Validate(ctx context.Context, spec backend.JobSpec) error {
	if err := backend.ValidateSpec(spec); err != nil {
		return err
	}
	if spec.Resources.AcceleratorCount < 0 {
		return calerr.New(calerr.ValidationError, "cluster.Validate", "accelerator count cannot be negative", nil)
	}
	return nil
}

// Submit creates a batch/v1 Job from spec, or — when spec.ExportManifestTo
// is set — writes the manifest to that path instead of submitting it
// (spec.md §4.4.3: "Manifests may also be exported to a file instead of
// submitted").
func (a *Adapter) Submit(ctx context.Context, spec backend.JobSpec) (backend.SubmitResult, error) {
	name := jobName(spec)
	job := buildJob(name, spec)

	if spec.ExportManifestTo != "" {
		if err := writeManifest(job, spec.ExportManifestTo); err != nil {
			return backend.SubmitResult{}, calerr.Wrap(calerr.RecipeInvalid, "cluster.Submit", err)
		}
		return backend.SubmitResult{BackendHandle: name, Details: map[string]string{"exported_to": spec.ExportManifestTo}}, nil
	}

	created, err := a.clientset.BatchV1().Jobs(a.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return backend.SubmitResult{}, calerr.Wrap(calerr.BackendError, "cluster.Submit", err)
	}
	return backend.SubmitResult{BackendHandle: created.Name, Details: map[string]string{"namespace": a.namespace}}, nil
}

func (a *Adapter) Query(ctx context.Context, backendHandle string) (registry.JobStatus, error) {
	job, err := a.clientset.BatchV1().Jobs(a.namespace).Get(ctx, backendHandle, metav1.GetOptions{})
	if err != nil {
		if apierr.IsNotFound(err) {
			return registry.StatusUnknown, nil
		}
		return registry.StatusUnknown, calerr.Wrap(calerr.BackendError, "cluster.Query", err)
	}
	return mapJobConditions(job), nil
}

func (a *Adapter) Stop(ctx context.Context, backendHandle string) (backend.Ack, error) {
	policy := metav1.DeletePropagationForeground
	err := a.clientset.BatchV1().Jobs(a.namespace).Delete(ctx, backendHandle, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierr.IsNotFound(err) {
		return backend.Ack{Message: "job already absent; no change"}, nil
	}
	if err != nil {
		return backend.Ack{}, calerr.Wrap(calerr.BackendError, "cluster.Stop", err)
	}
	return backend.Ack{Message: "job deleted"}, nil
}

// jobName generates a name suffixed with a short random token to avoid
// collisions across sweeps (spec.md §4.4.3).
func jobName(spec backend.JobSpec) string {
	base := "caliban-job"
	if name, ok := spec.Labels["caliban.group"]; ok && name != "" {
		base = name
	}
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("%s-%s", base, suffix)
}

func buildJob(name string, spec backend.JobSpec) *batchv1.Job {
	labels := backend.MergeLabels(map[string]string{"caliban.image_ref": spec.ImageRef}, spec.Labels)

	resources := corev1.ResourceList{}
	if spec.Resources.CPU != "" {
		if q, err := resource.ParseQuantity(spec.Resources.CPU); err == nil {
			resources[corev1.ResourceCPU] = q
		}
	}
	if spec.Resources.AcceleratorType != "" && spec.Resources.AcceleratorCount > 0 {
		resources[corev1.ResourceName("nvidia.com/gpu")] = *resource.NewQuantity(int64(spec.Resources.AcceleratorCount), resource.DecimalSI)
	}

	nodeSelector := map[string]string{}
	var tolerations []corev1.Toleration
	if spec.Resources.AcceleratorType != "" {
		nodeSelector["cloud.google.com/gke-accelerator"] = spec.Resources.AcceleratorType
		tolerations = append(tolerations, corev1.Toleration{
			Key:      "nvidia.com/gpu",
			Operator: corev1.TolerationOpExists,
			Effect:   corev1.TaintEffectNoSchedule,
		})
	}

	var command []string
	if len(spec.Entrypoint) > 0 {
		command = []string{spec.Entrypoint[0]}
	}
	args := append(append([]string{}, spec.Entrypoint[min(1, len(spec.Entrypoint)):]...), spec.Argv...)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Spec: batchv1.JobSpec{
			BackoffLimit: ptr.To(int32(0)),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					NodeSelector:  nodeSelector,
					Tolerations:   tolerations,
					Containers: []corev1.Container{{
						Name:      "caliban",
						Image:     spec.ImageRef,
						Command:   command,
						Args:      args,
						Resources: corev1.ResourceRequirements{Limits: resources},
					}},
				},
			},
		},
	}
}

func mapJobConditions(job *batchv1.Job) registry.JobStatus {
	if job.Status.Succeeded > 0 {
		return registry.StatusSucceeded
	}
	if job.DeletionTimestamp != nil {
		return registry.StatusStopped
	}
	if job.Status.Failed > 0 && job.Spec.BackoffLimit != nil && job.Status.Failed > *job.Spec.BackoffLimit {
		return registry.StatusFailed
	}
	if job.Status.Active > 0 {
		return registry.StatusRunning
	}
	return registry.StatusUnknown
}

func writeManifest(job *batchv1.Job, path string) error {
	data, err := yaml.Marshal(job)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
