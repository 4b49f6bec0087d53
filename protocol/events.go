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

package protocol

import "encoding/json"

// CloseReason classifies why a transport ended. The set mirrors the close
// codes surfaced by the upstream chat-network client library.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	CloseLoggedOut
	CloseBadSession
	CloseRestartRequired
	CloseConnectionLost
	CloseConnectionReplaced
	CloseTimedOut
	CloseUserStopped
	CloseRenewal
)

// String returns the reason name used in logs and metrics labels.
func (r CloseReason) String() string {
	switch r {
	case CloseLoggedOut:
		return "logged_out"
	case CloseBadSession:
		return "bad_session"
	case CloseRestartRequired:
		return "restart_required"
	case CloseConnectionLost:
		return "connection_lost"
	case CloseConnectionReplaced:
		return "connection_replaced"
	case CloseTimedOut:
		return "timed_out"
	case CloseUserStopped:
		return "user_stopped"
	case CloseRenewal:
		return "renewal"
	default:
		return "unknown"
	}
}

// Event is the closed set of notifications a transport delivers to its
// supervisor. Events for one tenant are delivered in order on a single
// channel; there are no callbacks.
type Event interface {
	isEvent()
}

// Opened signals the transport finished its handshake and is live.
type Opened struct{}

// Closed signals the transport ended. It is the last event before the
// event channel closes.
type Closed struct {
	Reason CloseReason
	Err    error
}

// QR carries a raw QR payload to display during authentication. The
// upstream library refreshes the payload periodically until it is
// scanned or the attempt times out.
type QR struct {
	Payload string
}

// NewLogin signals a pairing (QR scan or phone code) completed and the
// account is now linked to this session.
type NewLogin struct{}

// CredentialsUpdated carries the full serialized credential state after
// an incremental mutation. Persisting it is the supervisor's job; the
// transport never touches storage.
type CredentialsUpdated struct {
	Data json.RawMessage
}

// Group is a chat-group descriptor as reported by the network.
type Group struct {
	ID           string `json:"id"`
	Subject      string `json:"subject,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Participants int    `json:"participants,omitempty"`
	Announce     bool   `json:"announce,omitempty"`
}

// GroupsUpsert carries full group descriptors from a bulk sync.
type GroupsUpsert struct {
	Groups []Group
}

// GroupsUpdate carries partial group patches. A patch only has meaning
// for groups already known to the consumer.
type GroupsUpdate struct {
	Patches []Group
}

func (Opened) isEvent()             {}
func (Closed) isEvent()             {}
func (QR) isEvent()                 {}
func (NewLogin) isEvent()           {}
func (CredentialsUpdated) isEvent() {}
func (GroupsUpsert) isEvent()       {}
func (GroupsUpdate) isEvent()       {}
