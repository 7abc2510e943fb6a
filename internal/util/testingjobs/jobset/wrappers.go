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

package jobset

import (
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"
	jobsetapi "sigs.k8s.io/jobset/api/jobset/v1alpha2"
	kueueconstants "sigs.k8s.io/kueue/pkg/controller/constants"

	"tpu-slice-controller/internal/core"
)

// JobSetWrapper wraps a JobSet.
type JobSetWrapper struct{ jobsetapi.JobSet }

// MakeJobSet creates a wrapper for a suspended JobSet.
func MakeJobSet(name, ns string) *JobSetWrapper {
	return &JobSetWrapper{jobsetapi.JobSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   ns,
			Annotations: make(map[string]string),
		},
		Spec: jobsetapi.JobSetSpec{
			Suspend: ptr.To(true),
		},
	}}
}

// Obj returns the inner JobSet.
func (j *JobSetWrapper) Obj() *jobsetapi.JobSet {
	return &j.JobSet
}

// Clone returns a deep copy of the JobSetWrapper.
func (j *JobSetWrapper) Clone() *JobSetWrapper {
	return &JobSetWrapper{JobSet: *j.DeepCopy()}
}

// ReplicatedJobRequirements holds the requirements for a replicated job.
type ReplicatedJobRequirements struct {
	Name           string
	Replicas       int32
	Parallelism    int32
	Completions    int32
	Image          string
	Args           []string
	PodAnnotations map[string]string
	NodeSelector   map[string]string
	// TPURequest, when set, is added to the job container's limits under the
	// TPU extended resource.
	TPURequest string
}

// ReplicatedJobs replaces the JobSet's replicated jobs.
func (j *JobSetWrapper) ReplicatedJobs(replicatedJobs ...ReplicatedJobRequirements) *JobSetWrapper {
	j.Spec.ReplicatedJobs = make([]jobsetapi.ReplicatedJob, len(replicatedJobs))
	for index, req := range replicatedJobs {
		jt := batchv1.JobTemplateSpec{
			Spec: batchv1.JobSpec{
				Parallelism: ptr.To(req.Parallelism),
				Completions: ptr.To(req.Completions),
				Template: corev1.PodTemplateSpec{
					ObjectMeta: metav1.ObjectMeta{
						Annotations: req.PodAnnotations,
					},
					Spec: corev1.PodSpec{
						RestartPolicy: corev1.RestartPolicyNever,
						NodeSelector:  req.NodeSelector,
					},
				},
			},
		}
		if req.Image != "" || req.TPURequest != "" {
			container := corev1.Container{
				Name:  "c",
				Image: req.Image,
				Args:  req.Args,
			}
			if req.TPURequest != "" {
				container.Resources.Limits = corev1.ResourceList{
					core.TPUResourceName: resource.MustParse(req.TPURequest),
				}
			}
			jt.Spec.Template.Spec.Containers = []corev1.Container{container}
		}
		replicas := req.Replicas
		if replicas == 0 {
			replicas = 1
		}
		j.Spec.ReplicatedJobs[index] = jobsetapi.ReplicatedJob{
			Name:     req.Name,
			Replicas: replicas,
			Template: jt,
		}
	}
	return j
}

// Suspend updates the suspend status of the JobSet.
func (j *JobSetWrapper) Suspend(s bool) *JobSetWrapper {
	j.Spec.Suspend = ptr.To(s)
	return j
}

// Queue updates the queue name of the JobSet.
func (j *JobSetWrapper) Queue(q string) *JobSetWrapper {
	return j.Label(kueueconstants.QueueLabel, q)
}

// Label sets a label on the JobSet.
func (j *JobSetWrapper) Label(k, v string) *JobSetWrapper {
	if j.Labels == nil {
		j.Labels = make(map[string]string)
	}
	j.Labels[k] = v
	return j
}

// UID sets the JobSet's UID.
func (j *JobSetWrapper) UID(uid string) *JobSetWrapper {
	j.ObjectMeta.UID = types.UID(uid)
	return j
}
