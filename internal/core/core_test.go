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
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	testingclock "k8s.io/utils/clock/testing"

	"tpu-slice-controller/api/v1alpha1"
)

func sliceWithReadyCondition(status metav1.ConditionStatus, reason MMIGHealthStatus, transition time.Time) v1alpha1.Slice {
	return v1alpha1.Slice{
		Status: v1alpha1.SliceStatus{
			Conditions: []metav1.Condition{{
				Type:               v1alpha1.SliceStateConditionType,
				Status:             status,
				Reason:             string(reason),
				LastTransitionTime: metav1.NewTime(transition),
			}},
		},
	}
}

func TestGetSliceState(t *testing.T) {
	now := time.Now()
	fakeClock := testingclock.NewFakeClock(now)

	testCases := map[string]struct {
		slice v1alpha1.Slice
		want  SliceState
	}{
		"no conditions, fresh": {
			slice: v1alpha1.Slice{
				ObjectMeta: metav1.ObjectMeta{
					CreationTimestamp: metav1.NewTime(now.Add(-time.Minute)),
				},
			},
			want: SliceStateCreated,
		},
		"no conditions, never reported within timeout": {
			slice: v1alpha1.Slice{
				ObjectMeta: metav1.ObjectMeta{
					CreationTimestamp: metav1.NewTime(now.Add(-DefaultActivationTimeout)),
				},
			},
			want: SliceStateStale,
		},
		"activating": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusActivating, now.Add(-time.Minute)),
			want:  SliceStateActivating,
		},
		"activating for too long": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusActivating, now.Add(-DefaultActivationTimeout)),
			want:  SliceStateStale,
		},
		"incomplete counts as activating": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusIncomplete, now.Add(-time.Minute)),
			want:  SliceStateActivating,
		},
		"active": {
			slice: sliceWithReadyCondition(metav1.ConditionTrue, MMIGHealthStatusActive, now),
			want:  SliceStateActive,
		},
		"active degraded": {
			slice: sliceWithReadyCondition(metav1.ConditionTrue, MMIGHealthStatusActiveDegraded, now),
			want:  SliceStateActiveDegraded,
		},
		"failed": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusFailed, now),
			want:  SliceStateError,
		},
		"failed long ago stays error, not stale": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusFailed, now.Add(-2*DefaultActivationTimeout)),
			want:  SliceStateError,
		},
		"deformed": {
			slice: sliceWithReadyCondition(metav1.ConditionFalse, MMIGHealthStatusDeformed, now),
			want:  SliceStateDeformed,
		},
		"creation failed": {
			slice: v1alpha1.Slice{
				Status: v1alpha1.SliceStatus{
					Conditions: []metav1.Condition{{
						Type:               v1alpha1.SliceCreationFailedConditionType,
						Status:             metav1.ConditionTrue,
						Reason:             "CreationFailed",
						LastTransitionTime: metav1.NewTime(now),
					}},
				},
			},
			want: SliceStateError,
		},
		"deleted": {
			slice: func() v1alpha1.Slice {
				s := sliceWithReadyCondition(metav1.ConditionTrue, MMIGHealthStatusActive, now)
				s.DeletionTimestamp = &metav1.Time{Time: now}
				s.Finalizers = []string{"keep"}
				return s
			}(),
			want: SliceStateDeleted,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			got := GetSliceState(tc.slice, fakeClock, DefaultActivationTimeout)
			if got != tc.want {
				t.Errorf("GetSliceState() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsRelevantPodTemplateSpec(t *testing.T) {
	makeSpec := func(topology, accelerator string) corev1.PodTemplateSpec {
		spec := corev1.PodTemplateSpec{}
		if topology != "" {
			spec.Annotations = map[string]string{TPUTopologyAnnotation: topology}
		}
		if accelerator != "" {
			spec.Spec.NodeSelector = map[string]string{TPUAcceleratorLabel: accelerator}
		}
		return spec
	}

	testCases := map[string]struct {
		spec corev1.PodTemplateSpec
		want bool
	}{
		"relevant": {
			spec: makeSpec("4x4x12", string(v1alpha1.TypeTpu7x)),
			want: true,
		},
		"missing topology": {
			spec: makeSpec("", string(v1alpha1.TypeTpu7x)),
			want: false,
		},
		"malformed topology": {
			spec: makeSpec("4x4", string(v1alpha1.TypeTpu7x)),
			want: false,
		},
		"missing accelerator": {
			spec: makeSpec("4x4x12", ""),
			want: false,
		},
		"unsupported accelerator": {
			spec: makeSpec("4x4x12", "test"),
			want: false,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			if got := IsRelevantPodTemplateSpec(tc.spec); got != tc.want {
				t.Errorf("IsRelevantPodTemplateSpec() = %v, want %v", got, tc.want)
			}
		})
	}
}
