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

package core

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	jobset "sigs.k8s.io/jobset/api/jobset/v1alpha2"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"
)

// HasSupportedOwner reports whether the workload's controller owner is a kind
// this controller knows how to manage slices for.
func HasSupportedOwner(wl *kueue.Workload) bool {
	// For now, we only support JobSets.
	return IsJobSetOwner(wl)
}

// IsJobSetOwner reports whether the workload's controller owner is a JobSet.
func IsJobSetOwner(wl *kueue.Workload) bool {
	if owner := metav1.GetControllerOf(wl); owner != nil {
		return owner.APIVersion == jobset.SchemeGroupVersion.String() && owner.Kind == "JobSet"
	}
	return false
}

// OwnerJobSetKey returns the object key of the workload's owning JobSet.
// The workload must have a JobSet owner.
func OwnerJobSetKey(wl *kueue.Workload) types.NamespacedName {
	owner := metav1.GetControllerOf(wl)
	return types.NamespacedName{Name: owner.Name, Namespace: wl.Namespace}
}
