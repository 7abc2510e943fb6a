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
	"regexp"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"

	"tpu-slice-controller/api/v1alpha1"
)

// SliceState is the controller's view of a Slice, combining the hardware
// health condition, staleness and deletion.
type SliceState string

const (
	SliceStateCreated        SliceState = "CREATED"
	SliceStateActivating     SliceState = "ACTIVATING"
	SliceStateActive         SliceState = "ACTIVE"
	SliceStateActiveDegraded SliceState = "ACTIVE_DEGRADED"
	SliceStateError          SliceState = "ERROR"
	SliceStateDeformed       SliceState = "DEFORMED"
	SliceStateStale          SliceState = "STALE"
	SliceStateDeleted        SliceState = "DELETED"
)

// SliceStates lists all states in lifecycle order. The admission-check message
// histogram follows this order.
var SliceStates = []SliceState{
	SliceStateCreated, SliceStateActivating, SliceStateActive, SliceStateActiveDegraded,
	SliceStateError, SliceStateDeformed, SliceStateStale, SliceStateDeleted,
}

var tpuTopologyRegexp = regexp.MustCompile(`^[0-9]+x[0-9]+x[0-9]+$`)

func IsValidTPUTopology(tpuTopology string) bool {
	return tpuTopologyRegexp.MatchString(tpuTopology)
}

func IsValidTPUAccelerator(tpuAccelerator string) bool {
	return tpuAccelerator == string(v1alpha1.TypeTpu7x)
}

// IsRelevantPodTemplateSpec reports whether a pod template requests hardware
// this controller manages.
func IsRelevantPodTemplateSpec(spec corev1.PodTemplateSpec) bool {
	return IsValidTPUTopology(GetTPUTopology(spec)) &&
		IsValidTPUAccelerator(GetTPUAccelerator(spec))
}

func GetTPUTopology(spec corev1.PodTemplateSpec) string {
	return spec.Annotations[TPUTopologyAnnotation]
}

func GetTPUAccelerator(spec corev1.PodTemplateSpec) string {
	return spec.Spec.NodeSelector[TPUAcceleratorLabel]
}

// GetSliceState derives the state of a Slice. A Slice stuck unready for longer
// than activationTimeout is STALE and treated as failed by the reconciler.
func GetSliceState(slice v1alpha1.Slice, c clock.Clock, activationTimeout time.Duration) SliceState {
	if !slice.DeletionTimestamp.IsZero() {
		return SliceStateDeleted
	}
	if isDeformed(&slice) {
		return SliceStateDeformed
	}
	if isError(&slice) {
		return SliceStateError
	}
	if isStale(&slice, c, activationTimeout) {
		return SliceStateStale
	}
	condReady := meta.FindStatusCondition(slice.Status.Conditions, v1alpha1.SliceStateConditionType)
	if condReady == nil {
		return SliceStateCreated
	}
	if condReady.Status == metav1.ConditionTrue {
		if condReady.Reason == string(MMIGHealthStatusActiveDegraded) {
			return SliceStateActiveDegraded
		}
		if condReady.Reason == string(MMIGHealthStatusActive) {
			return SliceStateActive
		}
	}
	return SliceStateActivating
}
