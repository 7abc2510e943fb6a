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

package slices

// Map converts a slice of type E into a slice of type R using the
// provided transform function.
func Map[E any, R any, S ~[]E](s S, transform func(*E) R) []R {
	if s == nil {
		return nil
	}
	result := make([]R, len(s))
	for i := range s {
		result[i] = transform(&s[i])
	}
	return result
}
