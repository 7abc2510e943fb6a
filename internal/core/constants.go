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

// MMIGHealthStatus is the hardware health state machine reported by the
// node-health agent through the Slice's Ready condition reason.
type MMIGHealthStatus string

const (
	TPUTopologyAnnotation = "cloud.google.com/gke-tpu-topology"
	// TPUSliceTopologyAnnotation carries the topology each slice of the pod
	// set forms. Copied into the pod node selector before unsuspension.
	TPUSliceTopologyAnnotation = "cloud.google.com/gke-tpu-slice-topology"
	TPUAcceleratorLabel        = "cloud.google.com/gke-tpu-accelerator"
	TPUBlockLabel              = "cloud.google.com/gce-topology-block"
	TPUSubBlockLabel           = "cloud.google.com/gke-tpu-slice-4x4x4-id"

	// TPUSliceHealthLabel carries the node-health agent's verdict for the
	// 4x4x4 partition a node belongs to.
	TPUSliceHealthLabel = "cloud.google.com/gke-tpu-slice-4x4x4-health"

	NodeHealthHealthy  = "healthy"
	NodeHealthDegraded = "degraded"

	// TPUResourceName is the extended resource TPU chips are requested under.
	TPUResourceName = "google.com/tpu"
)

const (
	// OwnerWorkloadNamespaceAnnotation and OwnerWorkloadNameAnnotation link a
	// cluster-scoped Slice back to its namespaced owner Workload.
	OwnerWorkloadNamespaceAnnotation = "slice.accelerator.gke.io/owner-workload-namespace"
	OwnerWorkloadNameAnnotation      = "slice.accelerator.gke.io/owner-workload-name"
)

const (
	// MMIGHealthStatusIncomplete indicates the MMIG is incomplete.
	MMIGHealthStatusIncomplete MMIGHealthStatus = "INCOMPLETE"
	// MMIGHealthStatusActivating indicates the MMIG is activating.
	MMIGHealthStatusActivating MMIGHealthStatus = "ACTIVATING"
	// MMIGHealthStatusActive indicates the MMIG is active.
	MMIGHealthStatusActive MMIGHealthStatus = "ACTIVE"
	// MMIGHealthStatusActiveDegraded indicates the MMIG is active but degraded.
	MMIGHealthStatusActiveDegraded MMIGHealthStatus = "ACTIVE_DEGRADED"
	// MMIGHealthStatusDeactivating indicates the MMIG is deactivating.
	MMIGHealthStatusDeactivating MMIGHealthStatus = "DEACTIVATING"
	// MMIGHealthStatusFailed indicates the MMIG has failed.
	MMIGHealthStatusFailed MMIGHealthStatus = "FAILED"
	// MMIGHealthStatusDeformed indicates the MMIG formed incorrectly and
	// cannot recover without recreation.
	MMIGHealthStatusDeformed MMIGHealthStatus = "DEFORMED"
	// MMIGHealthStatusUnknown indicates the MMIG health is unknown.
	MMIGHealthStatusUnknown MMIGHealthStatus = "UNKNOWN"
)
