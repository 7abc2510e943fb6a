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
	"fmt"

	gomegatypes "github.com/onsi/gomega/types"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

type errorMatcher struct {
	name  string
	check func(error) bool
}

func (m *errorMatcher) Match(actual any) (bool, error) {
	if actual == nil {
		return false, nil
	}
	err, ok := actual.(error)
	if !ok {
		return false, fmt.Errorf("expected an error, got %T", actual)
	}
	return m.check(err), nil
}

func (m *errorMatcher) FailureMessage(actual any) string {
	return fmt.Sprintf("Expected\n\t%#v\nto be a %s error", actual, m.name)
}

func (m *errorMatcher) NegatedFailureMessage(actual any) string {
	return fmt.Sprintf("Expected\n\t%#v\nnot to be a %s error", actual, m.name)
}

// BeNotFoundError matches API errors with the NotFound reason.
func BeNotFoundError() gomegatypes.GomegaMatcher {
	return &errorMatcher{name: "NotFound", check: apierrors.IsNotFound}
}
