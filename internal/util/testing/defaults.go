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

package testing

import (
	corev1 "k8s.io/api/core/v1"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"

	"tpu-slice-controller/internal/core"
)

// MakeDefaultOneLevelTopology creates a default topology with hostname level.
func MakeDefaultOneLevelTopology(name string) *kueue.Topology {
	return MakeTopology(name).
		Levels(corev1.LabelHostname).
		Obj()
}

// MakeDefaultSliceTopology creates the block/sub-block/hostname topology the
// slice admission flow schedules against.
func MakeDefaultSliceTopology(name string) *kueue.Topology {
	return MakeTopology(name).
		Levels(core.TPUBlockLabel, core.TPUSubBlockLabel, corev1.LabelHostname).
		Obj()
}
