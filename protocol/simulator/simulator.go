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

// Package simulator is an in-process protocol client. It speaks no real
// network protocol; it exists so the whole session lifecycle can run in
// development and in tests. Registered with the factory as "simulator".
package simulator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatbridge/platform/credstore"
	"chatbridge/platform/protocol"
)

func init() {
	_ = protocol.DefaultFactory().Register("simulator", New)
}

// Options controls the simulator's automatic behavior. With Auto set,
// a connect without credentials emits one QR and then logs in after
// OpenDelay; a connect with credentials opens after OpenDelay. With Auto
// unset the handle does nothing until a test drives it via the Emit
// methods.
type Options struct {
	Auto      bool
	OpenDelay time.Duration
}

// Client fabricates Handles and remembers them for inspection.
type Client struct {
	opts Options

	mu         sync.Mutex
	handles    []*Handle
	connectErr error
}

// New builds a simulator client from factory options. Recognized keys:
// "auto" ("true"/"false", default true) and "open_delay_ms".
func New(options map[string]string) (protocol.Client, error) {
	opts := Options{Auto: true, OpenDelay: 500 * time.Millisecond}
	if v, ok := options["auto"]; ok {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid auto option %q: %w", v, err)
		}
		opts.Auto = auto
	}
	if v, ok := options["open_delay_ms"]; ok {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid open_delay_ms option %q: %w", v, err)
		}
		opts.OpenDelay = time.Duration(ms) * time.Millisecond
	}
	return NewClient(opts), nil
}

// NewClient builds a simulator client with explicit options.
func NewClient(opts Options) *Client {
	return &Client{opts: opts}
}

// Connect fabricates a new handle.
func (c *Client) Connect(ctx context.Context, creds *credstore.Bundle) (protocol.Handle, error) {
	c.mu.Lock()
	if c.connectErr != nil {
		err := c.connectErr
		c.mu.Unlock()
		return nil, err
	}
	h := newHandle()
	c.handles = append(c.handles, h)
	c.mu.Unlock()

	if c.opts.Auto {
		go h.autoRun(creds.Empty(), c.opts.OpenDelay)
	}
	return h, nil
}

// SetConnectErr makes subsequent Connect calls fail with err.
func (c *Client) SetConnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// ConnectCount returns how many handles this client has fabricated.
func (c *Client) ConnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Handles returns all fabricated handles in connect order.
func (c *Client) Handles() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Handle, len(c.handles))
	copy(out, c.handles)
	return out
}

// LastHandle returns the most recently fabricated handle, or nil.
func (c *Client) LastHandle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

// Handle is one simulated transport. Tests drive it with the Emit
// methods; the session layer consumes it through protocol.Handle.
type Handle struct {
	mu          sync.Mutex
	events      chan protocol.Event
	open        bool
	ended       bool
	pairingCode string
	pairingErr  error
}

func newHandle() *Handle {
	return &Handle{
		events:      make(chan protocol.Event, 64),
		pairingCode: "ABCD-1234",
	}
}

// Events returns the event channel. It closes after the final Closed
// event.
func (h *Handle) Events() <-chan protocol.Event {
	return h.events
}

// IsOpen reports whether the simulated handshake completed and the
// handle has not ended.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open && !h.ended
}

// End emits a final Closed event and closes the event channel. Repeat
// calls are no-ops.
func (h *Handle) End(reason protocol.CloseReason) {
	h.close(reason, nil)
}

// Logout simulates an upstream session invalidation.
func (h *Handle) Logout(ctx context.Context) error {
	h.close(protocol.CloseLoggedOut, nil)
	return nil
}

// RequestPairingCode returns the scripted pairing code, or the scripted
// error. Fails once the session is open, matching the real library.
func (h *Handle) RequestPairingCode(ctx context.Context, phoneE164 string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pairingErr != nil {
		return "", h.pairingErr
	}
	if h.ended {
		return "", fmt.Errorf("transport ended")
	}
	if h.open {
		return "", fmt.Errorf("session already open")
	}
	return h.pairingCode, nil
}

// SetPairingCode scripts the code returned by RequestPairingCode.
func (h *Handle) SetPairingCode(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairingCode = code
}

// SetPairingErr scripts RequestPairingCode to fail.
func (h *Handle) SetPairingErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairingErr = err
}

// EmitOpen marks the handle open and delivers an Opened event.
func (h *Handle) EmitOpen() {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.open = true
	h.mu.Unlock()
	h.emit(protocol.Opened{})
}

// EmitQR delivers a QR event.
func (h *Handle) EmitQR(payload string) {
	h.emit(protocol.QR{Payload: payload})
}

// EmitNewLogin delivers a NewLogin event.
func (h *Handle) EmitNewLogin() {
	h.emit(protocol.NewLogin{})
}

// EmitCredentials delivers a CredentialsUpdated event.
func (h *Handle) EmitCredentials(data []byte) {
	h.emit(protocol.CredentialsUpdated{Data: data})
}

// EmitGroupsUpsert delivers a bulk group sync.
func (h *Handle) EmitGroupsUpsert(groups ...protocol.Group) {
	h.emit(protocol.GroupsUpsert{Groups: groups})
}

// EmitGroupsUpdate delivers partial group patches.
func (h *Handle) EmitGroupsUpdate(patches ...protocol.Group) {
	h.emit(protocol.GroupsUpdate{Patches: patches})
}

// EmitClose ends the handle with the given reason and error.
func (h *Handle) EmitClose(reason protocol.CloseReason, err error) {
	h.close(reason, err)
}

func (h *Handle) emit(ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	select {
	case h.events <- ev:
	default:
		// Consumer is hopelessly behind; drop rather than deadlock.
	}
}

func (h *Handle) close(reason protocol.CloseReason, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	h.ended = true
	h.open = false
	select {
	case h.events <- protocol.Closed{Reason: reason, Err: err}:
	default:
	}
	close(h.events)
}

func (h *Handle) autoRun(needsPairing bool, openDelay time.Duration) {
	if needsPairing {
		h.EmitQR(uuid.NewString())
		time.Sleep(openDelay)
		h.EmitNewLogin()
		h.EmitCredentials([]byte(`{"registered":true}`))
	} else {
		time.Sleep(openDelay)
	}
	h.EmitOpen()
}
