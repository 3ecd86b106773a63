package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// addKubeconfigFlag registers the --kubeconfig/--namespace flags
// submit-cluster needs to reach the already-provisioned cluster spec.md
// §1 assumes (cluster creation/autoscaling is explicitly out of scope).
func addKubeconfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("kubeconfig", "", "path to a kubeconfig file; defaults to in-cluster config, then $KUBECONFIG")
	cmd.Flags().String("namespace", "default", "namespace the Kubernetes Job is created in")
}

// newClientsetFromFlags builds a kubernetes.Interface the same way the
// teacher's cmd/ome-agent/k8sclient.go resolves in-cluster-or-kubeconfig,
// simplified to a client-go clientset since the cluster adapter issues
// direct batch/v1 Job calls rather than a controller-runtime manager.
func newClientsetFromFlags(cmd *cobra.Command) (kubernetes.Interface, error) {
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

	var loadingRules *clientcmd.ClientConfigLoadingRules
	if kubeconfig != "" {
		loadingRules = &clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig}
	} else {
		loadingRules = clientcmd.NewDefaultClientConfigLoadingRules()
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("resolving kubernetes client config: %w", err)
	}

	return kubernetes.NewForConfig(config)
}
