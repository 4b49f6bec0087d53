// Copyright 2025 ChatBridge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"testing"
	"time"

	"chatbridge/platform/protocol"
)

// TestPolicyDelay verifies the exponential backoff schedule.
func TestPolicyDelay(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 80 * time.Second},
		{5, 160 * time.Second},
		{6, 300 * time.Second}, // 320s capped
		{7, 300 * time.Second},
		{100, 300 * time.Second},
		{-1, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.expected {
			t.Errorf("Delay(%d) = %v, expected %v", tt.attempt, got, tt.expected)
		}
	}
}

// TestPolicyDelayMonotonic verifies delays never decrease with the
// attempt count and never exceed the cap.
func TestPolicyDelayMonotonic(t *testing.T) {
	policy := DefaultPolicy()

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		delay := policy.Delay(attempt)
		if delay < prev {
			t.Errorf("Delay(%d) = %v, less than Delay(%d) = %v", attempt, delay, attempt-1, prev)
		}
		if delay > policy.MaxDelay {
			t.Errorf("Delay(%d) = %v exceeds max %v", attempt, delay, policy.MaxDelay)
		}
		prev = delay
	}

	if policy.Delay(0) != policy.BaseDelay {
		t.Errorf("Delay(0) = %v, expected base delay %v", policy.Delay(0), policy.BaseDelay)
	}
}

// TestPolicyClassify verifies close reason classification.
func TestPolicyClassify(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name     string
		reason   protocol.CloseReason
		expected Disposition
	}{
		{"logged out is terminal", protocol.CloseLoggedOut, DispositionTerminal},
		{"bad session is terminal", protocol.CloseBadSession, DispositionTerminal},
		{"user stop is silent", protocol.CloseUserStopped, DispositionSilent},
		{"restart required reconnects immediately", protocol.CloseRestartRequired, DispositionRestart},
		{"renewal reconnects immediately", protocol.CloseRenewal, DispositionRestart},
		{"connection lost retries", protocol.CloseConnectionLost, DispositionRetry},
		{"connection replaced retries", protocol.CloseConnectionReplaced, DispositionRetry},
		{"timeout retries", protocol.CloseTimedOut, DispositionRetry},
		{"unknown retries", protocol.CloseUnknown, DispositionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Classify(tt.reason); got != tt.expected {
				t.Errorf("Classify(%v) = %v, expected %v", tt.reason, got, tt.expected)
			}
		})
	}
}
