package k8s

import (
	"context"
	"fmt"
	"sort"

	"kvrelay/config"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewClientset uses the in-cluster config unless a kubeconfig path is given.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	return kubernetes.NewForConfig(restConfig)
}

// Discoverer resolves the replica set from the pods of a StatefulSet. It is
// meant to be called once at startup; the result is not refreshed.
type Discoverer struct {
	client kubernetes.Interface
	cfg    config.DiscoveryConfig
}

func NewDiscoverer(client kubernetes.Interface, cfg config.DiscoveryConfig) *Discoverer {
	return &Discoverer{client: client, cfg: cfg}
}

// Replicas returns http://host:port addresses of every matching pod except self,
// ordered by pod name. Pods with a hostname and subdomain are addressed by
// their stable DNS name, others by pod IP.
func (d *Discoverer) Replicas(ctx context.Context, self string) ([]string, error) {
	pods, err := d.client.CoreV1().Pods(d.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: d.cfg.LabelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("list pods %q in %s: %w", d.cfg.LabelSelector, d.cfg.Namespace, err)
	}

	items := pods.Items
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	replicas := make([]string, 0, len(items))
	for _, pod := range items {
		if pod.Name == self || pod.DeletionTimestamp != nil {
			continue
		}
		host := d.host(pod)
		if host == "" {
			logrus.WithField("pod", pod.Name).Warn("Skipping pod without DNS name or IP")
			continue
		}
		replicas = append(replicas, fmt.Sprintf("http://%s:%d", host, d.cfg.Port))
	}

	logrus.WithFields(logrus.Fields{
		"namespace": d.cfg.Namespace,
		"selector":  d.cfg.LabelSelector,
		"replicas":  replicas,
	}).Info("Discovered replicas")

	return replicas, nil
}

func (d *Discoverer) host(pod corev1.Pod) string {
	if pod.Spec.Hostname != "" && pod.Spec.Subdomain != "" {
		return fmt.Sprintf("%s.%s.%s.svc", pod.Spec.Hostname, pod.Spec.Subdomain, pod.Namespace)
	}
	return pod.Status.PodIP
}
