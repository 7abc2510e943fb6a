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

package cert

import (
	"fmt"
	"os"

	cert "github.com/open-policy-agent/cert-controller/pkg/rotator"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	defaultNamespace    = "tpu-slice-controller-system"
	serviceName         = "tpu-slice-controller-webhook-service"
	secretName          = "tpu-slice-controller-webhook-server-cert"
	certDir             = "/tmp/k8s-webhook-server/serving-certs"
	caName              = "tpu-slice-controller-ca"
	caOrganization      = "tpu-slice-controller"
	mutatingWebhookName = "tpu-slice-controller-mutating-webhook-configuration"
)

// namespace returns the namespace the controller runs in. The downward API
// sets POD_NAMESPACE in the manager deployment.
func namespace() string {
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}
	return defaultNamespace
}

// ManageCerts creates all cert-related controllers and wires the webhook
// server certificates. setupFinished is closed once the certs are ready to
// be served, gating webhook registration.
func ManageCerts(mgr ctrl.Manager, setupFinished chan struct{}) error {
	ns := namespace()
	return cert.AddRotator(mgr, &cert.CertRotator{
		SecretKey: types.NamespacedName{
			Namespace: ns,
			Name:      secretName,
		},
		CertDir:        certDir,
		CAName:         caName,
		CAOrganization: caOrganization,
		DNSName:        fmt.Sprintf("%s.%s.svc", serviceName, ns),
		IsReady:        setupFinished,
		Webhooks: []cert.WebhookInfo{{
			Type: cert.Mutating,
			Name: mutatingWebhookName,
		}},
		// The rotator runs on every replica. Only the leader rotates the
		// secret, the others just wait for the certs to show up on disk.
		RequireLeaderElection: false,
		EnableReadinessCheck:  true,
	})
}
