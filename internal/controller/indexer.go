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

package controller

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"tpu-slice-controller/api/v1alpha1"
	"tpu-slice-controller/internal/core"
)

const (
	WorkloadNamespaceIndex = "metadata.annotations.owner-workload-namespace"
	WorkloadNameIndex      = "metadata.annotations.owner-workload-name"
)

func indexWorkloadNamespace(obj client.Object) []string {
	if ns, found := obj.GetAnnotations()[core.OwnerWorkloadNamespaceAnnotation]; found {
		return []string{ns}
	}
	return nil
}

func indexWorkloadName(obj client.Object) []string {
	if name, found := obj.GetAnnotations()[core.OwnerWorkloadNameAnnotation]; found {
		return []string{name}
	}
	return nil
}

// SetupIndexer registers the owner-workload indexes used to look up the
// Slices of a Workload.
func SetupIndexer(ctx context.Context, indexer client.FieldIndexer) error {
	if err := indexer.IndexField(ctx, &v1alpha1.Slice{}, WorkloadNamespaceIndex, indexWorkloadNamespace); err != nil {
		return fmt.Errorf("setting index on owner workload namespace for Slice: %w", err)
	}
	if err := indexer.IndexField(ctx, &v1alpha1.Slice{}, WorkloadNameIndex, indexWorkloadName); err != nil {
		return fmt.Errorf("setting index on owner workload name for Slice: %w", err)
	}
	return nil
}
