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

package api

const (
	eventMessageMaxLength     = 1024
	conditionMessageMaxLength = 32 * 1024
)

// TruncateEventMessage truncates a message to fit the size limit of an event
// message.
func TruncateEventMessage(message string) string {
	return truncateMessage(message, eventMessageMaxLength)
}

// TruncateConditionMessage truncates a message to fit the size limit of a
// condition message.
func TruncateConditionMessage(message string) string {
	return truncateMessage(message, conditionMessageMaxLength)
}

// truncateMessage truncates a message if it hits the limit.
// It adds an ellipsis at the end to signal truncation happened.
func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	suffix := "..."
	return message[:limit-len(suffix)] + suffix
}
