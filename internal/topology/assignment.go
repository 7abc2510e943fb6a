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

package topology

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"
	utiltas "sigs.k8s.io/kueue/pkg/util/tas"
)

// HostnameLevelIndex returns the index of the hostname level in the topology
// assignment, or -1 if it doesn't exist.
func HostnameLevelIndex(topologyAssignment *kueue.TopologyAssignment) int {
	for i, level := range topologyAssignment.Levels {
		if level == corev1.LabelHostname {
			return i
		}
	}
	return -1
}

// ParsedAssignment is a topology assignment resolved against the cluster's
// nodes. PartitionIDs keeps the order of first appearance in the assignment's
// domains, so the same assignment always resolves to the same list.
type ParsedAssignment struct {
	PartitionIDs []string
}

// ParseAssignment maps each assigned node to the hardware partition it sits
// on and collects the distinct partition IDs. The assignment must already be
// validated, so every node resolves to a labeled partition.
func ParseAssignment(topologyAssignment *kueue.TopologyAssignment, nodes map[string]corev1.Node) ParsedAssignment {
	parsedAssignment := ParsedAssignment{
		PartitionIDs: make([]string, 0),
	}
	seenPartitionIDs := sets.New[string]()
	hostnameLevelIndex := HostnameLevelIndex(topologyAssignment)
	for domain := range utiltas.InternalSeqFrom(topologyAssignment) {
		nodeName := domain.Values[hostnameLevelIndex]
		if partitionID := GetTPUSubBlockLabelValue(nodes, nodeName); !seenPartitionIDs.Has(partitionID) {
			parsedAssignment.PartitionIDs = append(parsedAssignment.PartitionIDs, partitionID)
			seenPartitionIDs.Insert(partitionID)
		}
	}
	return parsedAssignment
}
