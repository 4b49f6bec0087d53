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

import (
	"context"

	"chatbridge/platform/credstore"
)

// Client opens protocol connections for one tenant at a time. It wraps
// the external chat-network library; handshake cryptography and wire
// framing live entirely behind this interface.
type Client interface {
	// Connect opens a transport using the given credential bundle. An
	// empty bundle starts an unauthenticated session that will emit QR
	// events until pairing completes.
	Connect(ctx context.Context, creds *credstore.Bundle) (Handle, error)
}

// Handle is one live transport. The Events channel delivers every
// lifecycle notification in order and is closed after the final Closed
// event, so consumers can range over it.
type Handle interface {
	Events() <-chan Event

	// IsOpen reports whether the transport completed its handshake and
	// has not yet closed.
	IsOpen() bool

	// End terminates the transport with the given reason. Safe to call
	// more than once; later calls are no-ops.
	End(reason CloseReason)

	// Logout invalidates the session upstream, then ends the transport
	// with CloseLoggedOut.
	Logout(ctx context.Context) error

	// RequestPairingCode asks the network for a phone-pairing code for
	// the given E.164 number. Only valid before the session is open.
	RequestPairingCode(ctx context.Context, phoneE164 string) (string, error)
}
