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

// Package topology parses and validates TPU mesh topology strings and
// resolves Kueue topology assignments into hardware partition IDs.
package topology

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// PartitionEdge is the edge length of the minimal physically-interconnected
	// partition (a 4x4x4 cube). Superslice dimensions must be multiples of it.
	PartitionEdge = 4
	// ChipsPerCube is the number of chips in a minimal partition.
	ChipsPerCube = 64
)

// Maximum supported mesh size per axis.
var maxDims = [3]int64{16, 24, 24}

var (
	// ErrInvalidTopology marks a topology string that cannot be placed on the
	// supported hardware.
	ErrInvalidTopology = errors.New("invalid topology")
	// ErrInvalidConfiguration marks a request that parses but does not line up
	// with full-cube utilization.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// TopologyType classifies a topology by its relation to the minimal partition.
type TopologyType string

const (
	// TopologyTypeSuperslice spans one or more full 4x4x4 cubes.
	TopologyTypeSuperslice TopologyType = "Superslice"
	// TopologyTypeSubslice occupies a fraction of a single cube.
	TopologyTypeSubslice TopologyType = "Subslice"
	TopologyTypeInvalid  TopologyType = "Invalid"
)

// The fixed set of sub-cube shapes the hardware can carve out of one partition.
var subsliceShapes = map[[3]int64]bool{
	{2, 2, 1}: true,
	{2, 2, 2}: true,
	{2, 2, 4}: true,
	{2, 4, 4}: true,
}

// ParseTopology splits a `<X>x<Y>x<Z>` topology string into its dimensions and
// classifies it. Superslice topologies must have every dimension divisible by
// the partition edge, be in non-decreasing order and fit within the per-axis
// maximums. Subslice topologies must match one of the supported sub-cube shapes.
func ParseTopology(tpuTopology string) ([]int64, TopologyType, error) {
	dimensions := strings.Split(tpuTopology, "x")
	if len(dimensions) != 3 {
		return nil, TopologyTypeInvalid, fmt.Errorf("%w: format %q, expected 3 dimensions", ErrInvalidTopology, tpuTopology)
	}

	dims := make([]int64, 3)
	for i, dim := range dimensions {
		parsedDim, err := strconv.ParseInt(dim, 10, 32)
		if err != nil {
			return nil, TopologyTypeInvalid, fmt.Errorf("%w: %q: %v", ErrInvalidTopology, tpuTopology, err)
		}
		dims[i] = parsedDim
	}
	if dims[0] <= 0 || dims[1] <= 0 || dims[2] <= 0 {
		return nil, TopologyTypeInvalid, fmt.Errorf("%w: dimensions must be positive: %s", ErrInvalidTopology, tpuTopology)
	}
	if subsliceShapes[[3]int64{dims[0], dims[1], dims[2]}] {
		return dims, TopologyTypeSubslice, nil
	}
	if dims[0]%PartitionEdge != 0 || dims[1]%PartitionEdge != 0 || dims[2]%PartitionEdge != 0 {
		return nil, TopologyTypeInvalid, fmt.Errorf("%w: dimensions must be divisible by %d: %s", ErrInvalidTopology, PartitionEdge, tpuTopology)
	}
	if dims[0] > dims[1] || dims[1] > dims[2] {
		return nil, TopologyTypeInvalid, fmt.Errorf("%w: dimensions must be in non-decreasing order: %s", ErrInvalidTopology, tpuTopology)
	}
	if dims[0] > maxDims[0] || dims[1] > maxDims[1] || dims[2] > maxDims[2] {
		return nil, TopologyTypeInvalid, fmt.Errorf("%w: dimensions exceed maximum %dx%dx%d: %s", ErrInvalidTopology, maxDims[0], maxDims[1], maxDims[2], tpuTopology)
	}

	return dims, TopologyTypeSuperslice, nil
}

// CubeCount returns the number of minimal partitions a topology spans.
// A subslice fits within a single partition.
func CubeCount(tpuTopology string) (int64, error) {
	dims, topologyType, err := ParseTopology(tpuTopology)
	if err != nil {
		return 0, err
	}
	if topologyType == TopologyTypeSubslice {
		return 1, nil
	}
	return dims[0] * dims[1] * dims[2] / ChipsPerCube, nil
}

// SliceSize returns the number of pods that land on each cube of a topology,
// given the total pod count of the pod set. The pods must spread evenly across
// cubes; anything else cannot be physically placed.
func SliceSize(tpuTopology string, pods int32) (int32, error) {
	cubes, err := CubeCount(tpuTopology)
	if err != nil {
		return 0, err
	}
	if int64(pods)%cubes != 0 {
		return 0, fmt.Errorf("%w: %d pods do not spread evenly across %d partitions of %s", ErrInvalidConfiguration, pods, cubes, tpuTopology)
	}
	return int32(int64(pods) / cubes), nil
}

// ValidateCubeUtilization ensures the chips requested per cube add up to a full
// cube: sliceSize pods per cube, chipsPerPod chips each. Partially used cubes
// cannot be placed.
func ValidateCubeUtilization(sliceSize, chipsPerPod int32) error {
	if chipsPerPod <= 0 {
		return nil
	}
	if sliceSize*chipsPerPod != ChipsPerCube {
		return fmt.Errorf("%w: %d pods x %d chips per cube, expected exactly %d", ErrInvalidConfiguration, sliceSize, chipsPerPod, ChipsPerCube)
	}
	return nil
}
