// Copyright The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"

	"tpu-slice-controller/api/v1alpha1"
)

const (
	// DefaultActivationTimeout bounds how long a Slice may stay unready before
	// it is treated as failed and recreated.
	DefaultActivationTimeout = 3 * time.Minute

	maxSliceNameLength  = 63
	sliceNameHashLength = 10
)

func SliceKeyFromWorkload(wl *kueue.Workload, podSetName kueue.PodSetReference, sliceIndex int32) client.ObjectKey {
	slice := SliceWithMetadata(wl, podSetName, sliceIndex)
	return client.ObjectKeyFromObject(slice)
}

// SliceWithMetadata returns a Slice skeleton for the given workload pod set and
// sub-group index. Slice is cluster-scoped while Workload is namespaced, so the
// owner is recorded in annotations rather than a controller reference.
func SliceWithMetadata(wl *kueue.Workload, podSetName kueue.PodSetReference, sliceIndex int32) *v1alpha1.Slice {
	return &v1alpha1.Slice{
		ObjectMeta: metav1.ObjectMeta{
			Name: SliceName(wl.Namespace, wl.Name, podSetName, sliceIndex),
			Annotations: map[string]string{
				OwnerWorkloadNamespaceAnnotation: wl.Namespace,
				OwnerWorkloadNameAnnotation:      wl.Name,
			},
		},
	}
}

// SliceName builds a deterministic object name. Names exceeding the 63
// character limit are truncated and suffixed with a hash of the full name to
// stay unique.
func SliceName(ns, workloadName string, podSetName kueue.PodSetReference, sliceIndex int32) string {
	name := fmt.Sprintf("%s-%s-%s-%d", ns, workloadName, podSetName, sliceIndex)
	if len(name) <= maxSliceNameLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	hash := hex.EncodeToString(sum[:])[:sliceNameHashLength]
	return fmt.Sprintf("%s-%s", name[:maxSliceNameLength-sliceNameHashLength-1], hash)
}

func isStale(slice *v1alpha1.Slice, c clock.Clock, activationTimeout time.Duration) bool {
	cond := meta.FindStatusCondition(slice.Status.Conditions, v1alpha1.SliceStateConditionType)
	staleUnready := cond != nil && cond.Status == metav1.ConditionFalse &&
		!cond.LastTransitionTime.IsZero() && c.Since(cond.LastTransitionTime.Time) >= activationTimeout
	staleWithoutState := cond == nil && !slice.CreationTimestamp.IsZero() &&
		c.Since(slice.CreationTimestamp.Time) >= activationTimeout
	return staleUnready || staleWithoutState
}

func isError(slice *v1alpha1.Slice) bool {
	condReady := meta.FindStatusCondition(slice.Status.Conditions, v1alpha1.SliceStateConditionType)
	condFailed := meta.FindStatusCondition(slice.Status.Conditions, v1alpha1.SliceCreationFailedConditionType)
	runtimeError := condReady != nil && condReady.Status == metav1.ConditionFalse && condReady.Reason == string(MMIGHealthStatusFailed)
	creationError := condFailed != nil && condFailed.Status == metav1.ConditionTrue
	return runtimeError || creationError
}

func isDeformed(slice *v1alpha1.Slice) bool {
	cond := meta.FindStatusCondition(slice.Status.Conditions, v1alpha1.SliceStateConditionType)
	return cond != nil && cond.Status == metav1.ConditionFalse && cond.Reason == string(MMIGHealthStatusDeformed)
}
