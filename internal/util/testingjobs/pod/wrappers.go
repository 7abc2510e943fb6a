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

package pod

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/utils/ptr"

	utiltesting "tpu-slice-controller/internal/util/testing"
)

// PodWrapper wraps a Pod.
type PodWrapper struct{ corev1.Pod }

// MakePod creates a wrapper for a Pod.
func MakePod(name, ns string) *PodWrapper {
	return &PodWrapper{corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
		},
	}}
}

// Obj returns the inner Pod.
func (p *PodWrapper) Obj() *corev1.Pod {
	return &p.Pod
}

// Clone returns a deep copy of the PodWrapper.
func (p *PodWrapper) Clone() *PodWrapper {
	return &PodWrapper{Pod: *p.DeepCopy()}
}

// Name sets the name of the Pod.
func (p *PodWrapper) Name(name string) *PodWrapper {
	p.ObjectMeta.Name = name
	return p
}

// OwnerReference adds a controller owner reference to the Pod.
func (p *PodWrapper) OwnerReference(name string, gvk schema.GroupVersionKind) *PodWrapper {
	utiltesting.AppendOwnerReference(&p.Pod, gvk, name, name, ptr.To(true), ptr.To(true))
	return p
}

// Label sets a label on the Pod.
func (p *PodWrapper) Label(k, v string) *PodWrapper {
	if p.Labels == nil {
		p.Labels = make(map[string]string)
	}
	p.Labels[k] = v
	return p
}

// StatusPhase sets the Pod's status phase.
func (p *PodWrapper) StatusPhase(phase corev1.PodPhase) *PodWrapper {
	p.Status.Phase = phase
	return p
}
