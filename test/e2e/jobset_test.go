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

package e2e

import (
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	jobset "sigs.k8s.io/jobset/api/jobset/v1alpha2"
	kueue "sigs.k8s.io/kueue/apis/kueue/v1beta2"
	jobsetcontroller "sigs.k8s.io/kueue/pkg/controller/jobs/jobset"
	"sigs.k8s.io/kueue/pkg/workload"

	slice "tpu-slice-controller/api/v1alpha1"
	"tpu-slice-controller/internal/controller"
	"tpu-slice-controller/internal/core"
	"tpu-slice-controller/internal/util/testing"
	testingjobsjobset "tpu-slice-controller/internal/util/testingjobs/jobset"
	"tpu-slice-controller/test/utils"
)

var (
	ignorePodSetTopologyRequestFields = cmpopts.IgnoreFields(kueue.PodSetTopologyRequest{}, "PodIndexLabel", "SubGroupIndexLabel")
	ignoreAdmissionCheckStateFields   = cmpopts.IgnoreFields(kueue.AdmissionCheckState{}, "LastTransitionTime", "PodSetUpdates")
)

var _ = ginkgo.Describe("JobSet", func() {
	var (
		topology *kueue.Topology
		ns       *corev1.Namespace
		rf       *kueue.ResourceFlavor
		ac       *kueue.AdmissionCheck
		cq       *kueue.ClusterQueue
		lq       *kueue.LocalQueue
	)

	ginkgo.BeforeEach(func() {
		ns = testing.MakeNamespaceWithGenerateName("e2e-jobset-")
		utils.MustCreate(ctx, k8sClient, ns)

		topology = testing.MakeDefaultSliceTopology("topology")
		utils.MustCreate(ctx, k8sClient, topology)

		rf = testing.MakeResourceFlavor("rf").
			NodeLabel(core.TPUAcceleratorLabel, string(slice.TypeTpu7x)).
			TopologyName(topology.Name).
			Obj()
		utils.MustCreate(ctx, k8sClient, rf)

		ac = testing.MakeAdmissionCheck("ac").ControllerName(controller.SliceControllerName).Obj()
		utils.MustCreate(ctx, k8sClient, ac)

		cq = testing.MakeClusterQueue("cq").
			AdmissionChecks(kueue.AdmissionCheckReference(ac.Name)).
			ResourceGroup(*testing.MakeFlavorQuotas(rf.Name).
				Resource(core.TPUResourceName, "9999").
				Obj()).
			Obj()
		utils.MustCreate(ctx, k8sClient, cq)

		lq = testing.MakeLocalQueue("lq", ns.Name).ClusterQueue(cq.Name).Obj()
		utils.MustCreate(ctx, k8sClient, lq)
	})

	ginkgo.AfterEach(func() {
		gomega.Expect(utils.DeleteNamespace(ctx, k8sClient, ns)).To(gomega.Succeed())
		utils.ExpectObjectToBeDeleted(ctx, k8sClient, cq, true)
		utils.ExpectObjectToBeDeleted(ctx, k8sClient, ac, true)
		utils.ExpectObjectToBeDeleted(ctx, k8sClient, rf, true)
		utils.ExpectObjectToBeDeleted(ctx, k8sClient, topology, true)
		utils.ExpectAllPodsInNamespaceDeleted(ctx, k8sClient, ns)
	})

	ginkgo.When("Creating a JobSet", func() {
		const (
			tpuTopology = "4x4x4"
			partitionID = "sb1"
		)

		ginkgo.It("should admit the Workload once its Slice is active", func() {
			utils.LabelNodesWithPartition(ctx, k8sClient, partitionID)

			jobSet := testingjobsjobset.MakeJobSet("jobset", ns.Name).
				Queue(lq.Name).
				ReplicatedJobs(
					testingjobsjobset.ReplicatedJobRequirements{
						Name:        "rj1",
						Image:       utils.E2eTestAgnHostImage,
						Args:        utils.BehaviorWaitForDeletion,
						Replicas:    1,
						Parallelism: 16,
						Completions: 16,
						TPURequest:  "4",
						PodAnnotations: map[string]string{
							core.TPUTopologyAnnotation: tpuTopology,
						},
						NodeSelector: map[string]string{
							core.TPUAcceleratorLabel: string(slice.TypeTpu7x),
						},
					},
				).
				Obj()

			ginkgo.By("Creating a JobSet", func() {
				utils.MustCreate(ctx, k8sClient, jobSet)
			})

			createdJobSet := &jobset.JobSet{}

			ginkgo.By("Checking that the JobSet is defaulted with topology annotations", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, client.ObjectKeyFromObject(jobSet), createdJobSet)).To(gomega.Succeed())
					for _, replicatedJob := range createdJobSet.Spec.ReplicatedJobs {
						annotations := replicatedJob.Template.Spec.Template.Annotations
						g.Expect(annotations[kueue.PodSetRequiredTopologyAnnotation]).
							Should(gomega.Equal(core.TPUBlockLabel))
						g.Expect(annotations[kueue.PodSetSliceRequiredTopologyAnnotation]).
							Should(gomega.Equal(core.TPUSubBlockLabel))
						g.Expect(annotations[kueue.PodSetSliceSizeAnnotation]).
							Should(gomega.Equal("16"))
						g.Expect(replicatedJob.Template.Spec.Template.Spec.Affinity).ShouldNot(gomega.BeNil())
					}
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			createdWorkload := &kueue.Workload{}
			wlKey := types.NamespacedName{
				Name:      jobsetcontroller.GetWorkloadNameForJobSet(jobSet.Name, jobSet.UID),
				Namespace: ns.Name,
			}

			ginkgo.By("Validating the Workload", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, wlKey, createdWorkload)).To(gomega.Succeed())
					g.Expect(createdWorkload.Spec.PodSets).To(gomega.HaveLen(1))
					g.Expect(createdWorkload.Spec.PodSets[0].TopologyRequest).To(gomega.BeComparableTo(&kueue.PodSetTopologyRequest{
						Required:                    ptr.To(core.TPUBlockLabel),
						PodSetSliceRequiredTopology: ptr.To(core.TPUSubBlockLabel),
						SubGroupCount:               ptr.To[int32](1),
						PodSetSliceSize:             ptr.To[int32](16),
					}, ignorePodSetTopologyRequestFields))
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Waiting for Admission of the Workload", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, wlKey, createdWorkload)).Should(gomega.Succeed())
					g.Expect(createdWorkload.Status.Admission).ShouldNot(gomega.BeNil())
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			createdSlice := &slice.Slice{}
			sliceKey := types.NamespacedName{
				Name: core.SliceName(wlKey.Namespace, wlKey.Name, "rj1", 0),
			}

			ginkgo.By("Checking that the Slice is created", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, sliceKey, createdSlice)).To(gomega.Succeed())
					g.Expect(createdSlice.Spec.Type).To(gomega.Equal(slice.TypeTpu7x))
					g.Expect(createdSlice.Spec.Topology).To(gomega.Equal(tpuTopology))
					g.Expect(createdSlice.Spec.PartitionIDs).To(gomega.ConsistOf(partitionID))
					g.Expect(createdSlice.Annotations).To(gomega.HaveKeyWithValue(core.OwnerWorkloadNamespaceAnnotation, wlKey.Namespace))
					g.Expect(createdSlice.Annotations).To(gomega.HaveKeyWithValue(core.OwnerWorkloadNameAnnotation, wlKey.Name))
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Checking that the Workload is waiting for the Slice", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, wlKey, createdWorkload)).Should(gomega.Succeed())
					g.Expect(workload.IsAdmitted(createdWorkload)).Should(gomega.BeFalse())
					g.Expect(createdWorkload.Status.AdmissionChecks).Should(gomega.BeComparableTo([]kueue.AdmissionCheckState{{
						Name:    kueue.AdmissionCheckReference(ac.Name),
						State:   kueue.CheckStatePending,
						Message: "Slices are in states: 1 CREATED",
					}}, ignoreAdmissionCheckStateFields))
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Marking the Slice as active", func() {
				utils.SetSliceReady(ctx, k8sClient, sliceKey, tpuTopology)
			})

			ginkgo.By("Checking that the Workload is admitted and the admission check is ready", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, wlKey, createdWorkload)).Should(gomega.Succeed())
					g.Expect(workload.IsAdmitted(createdWorkload)).Should(gomega.BeTrue())
					g.Expect(createdWorkload.Status.AdmissionChecks).Should(gomega.BeComparableTo([]kueue.AdmissionCheckState{{
						Name:    kueue.AdmissionCheckReference(ac.Name),
						State:   kueue.CheckStateReady,
						Message: "Slices are in states: 1 ACTIVE",
					}}, ignoreAdmissionCheckStateFields))
				}, utils.LongTimeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Deleting JobSet", func() {
				utils.ExpectObjectToBeDeleted(ctx, k8sClient, jobSet, true)
			})

			ginkgo.By("Checking that the Slice is deleted", func() {
				utils.ExpectObjectToBeDeleted(ctx, k8sClient, createdSlice, false)
			})
		})

		ginkgo.It("should reject the Workload when its Slice fails", func() {
			utils.LabelNodesWithPartition(ctx, k8sClient, partitionID)

			jobSet := testingjobsjobset.MakeJobSet("jobset-failure", ns.Name).
				Queue(lq.Name).
				ReplicatedJobs(
					testingjobsjobset.ReplicatedJobRequirements{
						Name:        "rj1",
						Image:       utils.E2eTestAgnHostImage,
						Args:        utils.BehaviorWaitForDeletion,
						Replicas:    1,
						Parallelism: 16,
						Completions: 16,
						TPURequest:  "4",
						PodAnnotations: map[string]string{
							core.TPUTopologyAnnotation: tpuTopology,
						},
						NodeSelector: map[string]string{
							core.TPUAcceleratorLabel: string(slice.TypeTpu7x),
						},
					},
				).
				Obj()

			ginkgo.By("Creating a JobSet", func() {
				utils.MustCreate(ctx, k8sClient, jobSet)
			})

			createdWorkload := &kueue.Workload{}
			wlKey := types.NamespacedName{
				Name:      jobsetcontroller.GetWorkloadNameForJobSet(jobSet.Name, jobSet.UID),
				Namespace: ns.Name,
			}
			sliceKey := types.NamespacedName{
				Name: core.SliceName(wlKey.Namespace, wlKey.Name, "rj1", 0),
			}

			ginkgo.By("Waiting for the Slice to be created", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, sliceKey, &slice.Slice{})).To(gomega.Succeed())
				}, utils.Timeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Marking the Slice as failed", func() {
				utils.SetSliceFailed(ctx, k8sClient, sliceKey)
			})

			ginkgo.By("Checking that the admission check is rejected", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, wlKey, createdWorkload)).Should(gomega.Succeed())
					g.Expect(createdWorkload.Status.AdmissionChecks).Should(gomega.HaveLen(1))
					g.Expect(createdWorkload.Status.AdmissionChecks[0].State).Should(gomega.Equal(kueue.CheckStateRejected))
					g.Expect(createdWorkload.Status.AdmissionChecks[0].Message).Should(gomega.ContainSubstring("1 ERROR"))
				}, utils.LongTimeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Checking that the failed Slice is deleted", func() {
				gomega.Eventually(func(g gomega.Gomega) {
					g.Expect(k8sClient.Get(ctx, sliceKey, &slice.Slice{})).Should(testing.BeNotFoundError())
				}, utils.LongTimeout, utils.Interval).Should(gomega.Succeed())
			})

			ginkgo.By("Deleting JobSet", func() {
				utils.ExpectObjectToBeDeleted(ctx, k8sClient, jobSet, true)
			})
		})
	})
})

var _ = ginkgo.Describe("JobSet without a queue", func() {
	var ns *corev1.Namespace

	ginkgo.BeforeEach(func() {
		ns = testing.MakeNamespaceWithGenerateName("e2e-jobset-unqueued-")
		utils.MustCreate(ctx, k8sClient, ns)
	})

	ginkgo.AfterEach(func() {
		gomega.Expect(utils.DeleteNamespace(ctx, k8sClient, ns)).To(gomega.Succeed())
	})

	ginkgo.It("should not be defaulted by the webhook", func() {
		jobSet := testingjobsjobset.MakeJobSet("jobset-unqueued", ns.Name).
			ReplicatedJobs(
				testingjobsjobset.ReplicatedJobRequirements{
					Name:        "rj1",
					Image:       utils.E2eTestAgnHostImage,
					Replicas:    1,
					Parallelism: 16,
					Completions: 16,
					TPURequest:  "4",
					PodAnnotations: map[string]string{
						core.TPUTopologyAnnotation: "4x4x4",
					},
					NodeSelector: map[string]string{
						core.TPUAcceleratorLabel: string(slice.TypeTpu7x),
					},
				},
			).
			Obj()
		utils.MustCreate(ctx, k8sClient, jobSet)

		createdJobSet := &jobset.JobSet{}
		gomega.Expect(k8sClient.Get(ctx, client.ObjectKeyFromObject(jobSet), createdJobSet)).To(gomega.Succeed())
		for _, replicatedJob := range createdJobSet.Spec.ReplicatedJobs {
			annotations := replicatedJob.Template.Spec.Template.Annotations
			gomega.Expect(annotations).ShouldNot(gomega.HaveKey(kueue.PodSetRequiredTopologyAnnotation))
			gomega.Expect(annotations).ShouldNot(gomega.HaveKey(kueue.PodSetSliceRequiredTopologyAnnotation))
			gomega.Expect(annotations).ShouldNot(gomega.HaveKey(kueue.PodSetSliceSizeAnnotation))
		}
	})
})
