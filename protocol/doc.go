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

/*
Package protocol defines the contract between the session layer and the
external chat-network client library.

The session supervisor never talks to the network directly. It obtains a
Client from the ClientFactory, calls Connect with the tenant's credential
bundle, and then consumes the Handle's event channel:

	client, err := protocol.DefaultFactory().Create("simulator", nil)
	if err != nil {
	    return err
	}

	handle, err := client.Connect(ctx, bundle)
	if err != nil {
	    return err
	}

	for ev := range handle.Events() {
	    switch ev := ev.(type) {
	    case protocol.Opened:
	        // session is live
	    case protocol.QR:
	        // display ev.Payload for scanning
	    case protocol.Closed:
	        // ev.Reason says whether to reconnect
	    }
	}

# Event Ordering

Events for a single handle are delivered on one channel in the order the
transport produced them. The channel is closed after the final Closed
event, so `for ev := range handle.Events()` terminates cleanly.

# Close Reasons

CloseReason is the transport's own classification of why it ended. The
session layer maps reasons onto reconnect behavior; this package only
names them.

# Registering Implementations

Real client libraries and the in-process simulator register themselves
with the factory:

	func init() {
	    protocol.DefaultFactory().Register("simulator", New)
	}

Binaries select an implementation by type string at startup.
*/
package protocol
