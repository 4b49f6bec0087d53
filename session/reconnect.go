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
	"time"

	"chatbridge/platform/protocol"
)

// Disposition is the supervisor's reaction to a transport close.
type Disposition int

const (
	// DispositionRetry reconnects after a backoff delay.
	DispositionRetry Disposition = iota
	// DispositionRestart reconnects immediately with no delay.
	DispositionRestart
	// DispositionTerminal stops supervision and purges credentials.
	DispositionTerminal
	// DispositionSilent stops supervision but keeps credentials, used
	// for caller-initiated close.
	DispositionSilent
)

// String returns the disposition name used in logs.
func (d Disposition) String() string {
	switch d {
	case DispositionRetry:
		return "retry"
	case DispositionRestart:
		return "restart"
	case DispositionTerminal:
		return "terminal"
	case DispositionSilent:
		return "silent"
	default:
		return "unknown"
	}
}

// Default backoff parameters.
const (
	DefaultBaseDelay = 5 * time.Second
	DefaultMaxDelay  = 300 * time.Second
	DefaultFactor    = 2
)

// Policy computes reconnect delays and classifies close reasons. The
// zero value is not usable; call DefaultPolicy or fill all fields.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    int
}

// DefaultPolicy returns the standard exponential backoff policy:
// 5s base, doubling per attempt, capped at 300s.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Factor:    DefaultFactor,
	}
}

// Delay returns the backoff before reconnect attempt number attempt.
// Delay(0) is BaseDelay; the result is capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= time.Duration(p.Factor)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Classify maps a close reason to a supervision disposition. Logged-out
// and bad-session closes are terminal and purge credentials; a
// caller-initiated stop is terminal but keeps them. Restart-required
// and scheduled renewal closes reconnect immediately. Everything else,
// including timeouts, retries with backoff.
func (p Policy) Classify(reason protocol.CloseReason) Disposition {
	switch reason {
	case protocol.CloseLoggedOut, protocol.CloseBadSession:
		return DispositionTerminal
	case protocol.CloseUserStopped:
		return DispositionSilent
	case protocol.CloseRestartRequired, protocol.CloseRenewal:
		return DispositionRestart
	default:
		return DispositionRetry
	}
}
