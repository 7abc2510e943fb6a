/*
Copyright The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package webhooks

import (
	"context"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/jobset/api/jobset/v1alpha2"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"
	kueueconstants "sigs.k8s.io/kueue/pkg/controller/constants"

	"tpu-slice-controller/internal/core"
	"tpu-slice-controller/internal/topology"
)

// JobSetWebhook defaults topology scheduling hints onto queued JobSets.
type JobSetWebhook struct{}

func SetupWebhookWithManager(mgr ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(mgr).
		For(&v1alpha2.JobSet{}).
		WithDefaulter(&JobSetWebhook{}).
		Complete()
}

// +kubebuilder:webhook:path=/mutate-jobset-x-k8s-io-v1alpha2-jobset,mutating=true,failurePolicy=fail,sideEffects=None,groups=jobset.x-k8s.io,resources=jobsets,verbs=create,versions=v1alpha2,name=mjobset.kb.io,admissionReviewVersions=v1
var _ webhook.CustomDefaulter = &JobSetWebhook{}

// Default implements webhook.CustomDefaulter so a webhook will be registered for the type
func (r *JobSetWebhook) Default(ctx context.Context, obj runtime.Object) error {
	jobSet := obj.(*v1alpha2.JobSet)
	log := ctrl.LoggerFrom(ctx).WithName("jobset-accelerator-gke-webhook")
	log.V(5).Info("Applying defaults")

	if jobSet.Labels[kueueconstants.QueueLabel] == "" {
		return nil
	}

	for i := range jobSet.Spec.ReplicatedJobs {
		err := r.annotateReplicatedJobWithTopology(&jobSet.Spec.ReplicatedJobs[i])
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *JobSetWebhook) annotateReplicatedJobWithTopology(rj *v1alpha2.ReplicatedJob) error {
	if !core.IsRelevantPodTemplateSpec(rj.Template.Spec.Template) {
		return nil
	}

	pods := ptr.Deref(rj.Template.Spec.Parallelism, 1) * rj.Replicas
	size, err := topology.SliceSize(core.GetTPUTopology(rj.Template.Spec.Template), pods)
	if err != nil {
		return err
	}
	if err := topology.ValidateCubeUtilization(size, chipsPerPod(&rj.Template.Spec.Template.Spec)); err != nil {
		return err
	}

	if rj.Template.Spec.Template.Annotations == nil {
		rj.Template.Spec.Template.Annotations = make(map[string]string)
	}

	rj.Template.Spec.Template.Annotations[kueue.PodSetRequiredTopologyAnnotation] = core.TPUBlockLabel
	rj.Template.Spec.Template.Annotations[kueue.PodSetSliceRequiredTopologyAnnotation] = core.TPUSubBlockLabel
	rj.Template.Spec.Template.Annotations[kueue.PodSetSliceSizeAnnotation] = strconv.FormatInt(int64(size), 10)

	setNodeHealthAffinity(&rj.Template.Spec.Template.Spec)

	return nil
}

// chipsPerPod sums the TPU chips one pod of the template requests.
func chipsPerPod(podSpec *corev1.PodSpec) int32 {
	var chips int64
	for _, container := range podSpec.Containers {
		if quantity, found := container.Resources.Limits[core.TPUResourceName]; found {
			chips += quantity.Value()
		}
	}
	return int32(chips)
}

// setNodeHealthAffinity lets pods land on nodes whose slice partition is
// healthy or degraded, keeping unhealthy hardware out. A user-supplied
// constraint on the health label takes precedence.
func setNodeHealthAffinity(podSpec *corev1.PodSpec) {
	if constrainsNodeHealth(podSpec) {
		return
	}

	requirement := corev1.NodeSelectorRequirement{
		Key:      core.TPUSliceHealthLabel,
		Operator: corev1.NodeSelectorOpIn,
		Values:   []string{core.NodeHealthHealthy, core.NodeHealthDegraded},
	}

	if podSpec.Affinity == nil {
		podSpec.Affinity = &corev1.Affinity{}
	}
	if podSpec.Affinity.NodeAffinity == nil {
		podSpec.Affinity.NodeAffinity = &corev1.NodeAffinity{}
	}
	nodeAffinity := podSpec.Affinity.NodeAffinity
	if nodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution == nil ||
		len(nodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms) == 0 {
		nodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution = &corev1.NodeSelector{
			NodeSelectorTerms: []corev1.NodeSelectorTerm{
				{MatchExpressions: []corev1.NodeSelectorRequirement{requirement}},
			},
		}
		return
	}
	// Terms are ORed, so the requirement has to go into each of them.
	terms := nodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms
	for i := range terms {
		terms[i].MatchExpressions = append(terms[i].MatchExpressions, requirement)
	}
}

func constrainsNodeHealth(podSpec *corev1.PodSpec) bool {
	if _, found := podSpec.NodeSelector[core.TPUSliceHealthLabel]; found {
		return true
	}
	if podSpec.Affinity == nil || podSpec.Affinity.NodeAffinity == nil ||
		podSpec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution == nil {
		return false
	}
	for _, term := range podSpec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms {
		for _, expression := range term.MatchExpressions {
			if expression.Key == core.TPUSliceHealthLabel {
				return true
			}
		}
	}
	return false
}
