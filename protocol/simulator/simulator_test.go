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

package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatbridge/platform/credstore"
	"chatbridge/platform/protocol"
)

func drainUntil(t *testing.T, h protocol.Handle, want func(protocol.Event) bool) protocol.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				t.Fatal("Event channel closed before expected event")
			}
			if want(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("Timed out waiting for event")
		}
	}
}

// TestFactoryRegistration verifies the init hook registers the
// "simulator" type with usable options parsing.
func TestFactoryRegistration(t *testing.T) {
	client, err := protocol.DefaultFactory().Create("simulator", map[string]string{
		"auto":          "false",
		"open_delay_ms": "10",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, ok := client.(*Client); !ok {
		t.Fatalf("Expected *Client, got %T", client)
	}

	if _, err := New(map[string]string{"auto": "maybe"}); err == nil {
		t.Error("Expected error for invalid auto option")
	}
	if _, err := New(map[string]string{"open_delay_ms": "fast"}); err == nil {
		t.Error("Expected error for invalid open_delay_ms option")
	}
}

// TestAutoPairingFlow verifies an empty bundle drives QR, NewLogin,
// CredentialsUpdated and Opened in order.
func TestAutoPairingFlow(t *testing.T) {
	client := NewClient(Options{Auto: true, OpenDelay: 10 * time.Millisecond})

	h, err := client.Connect(context.Background(), &credstore.Bundle{})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ev := drainUntil(t, h, func(ev protocol.Event) bool { _, ok := ev.(protocol.QR); return ok })
	if qr := ev.(protocol.QR); qr.Payload == "" {
		t.Error("Expected non-empty QR payload")
	}
	drainUntil(t, h, func(ev protocol.Event) bool { _, ok := ev.(protocol.NewLogin); return ok })
	drainUntil(t, h, func(ev protocol.Event) bool { _, ok := ev.(protocol.CredentialsUpdated); return ok })
	drainUntil(t, h, func(ev protocol.Event) bool { _, ok := ev.(protocol.Opened); return ok })

	if !h.IsOpen() {
		t.Error("Expected handle to be open after Opened event")
	}
}

// TestAutoResumeSkipsPairing verifies a non-empty bundle opens without
// QR events.
func TestAutoResumeSkipsPairing(t *testing.T) {
	client := NewClient(Options{Auto: true, OpenDelay: 10 * time.Millisecond})

	h, err := client.Connect(context.Background(), &credstore.Bundle{Data: []byte(`{"registered":true}`)})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ev := drainUntil(t, h, func(ev protocol.Event) bool {
		_, qr := ev.(protocol.QR)
		_, opened := ev.(protocol.Opened)
		return qr || opened
	})
	if _, ok := ev.(protocol.QR); ok {
		t.Error("Resume must not emit QR events")
	}
}

// TestEndClosesEventChannel verifies End delivers a final Closed event,
// closes the channel, and is idempotent.
func TestEndClosesEventChannel(t *testing.T) {
	client := NewClient(Options{})
	h, _ := client.Connect(context.Background(), &credstore.Bundle{})
	sim := h.(*Handle)

	sim.End(protocol.CloseUserStopped)
	sim.End(protocol.CloseUserStopped) // no-op

	ev, ok := <-h.Events()
	if !ok {
		t.Fatal("Expected Closed event before channel close")
	}
	closed, ok := ev.(protocol.Closed)
	if !ok || closed.Reason != protocol.CloseUserStopped {
		t.Errorf("Unexpected final event: %+v", ev)
	}
	if _, ok := <-h.Events(); ok {
		t.Error("Expected channel to be closed")
	}
	if h.IsOpen() {
		t.Error("Ended handle must not report open")
	}
}

// TestRequestPairingCode verifies scripted codes, failure injection and
// the open/ended guards.
func TestRequestPairingCode(t *testing.T) {
	client := NewClient(Options{})
	ctx := context.Background()

	h, _ := client.Connect(ctx, &credstore.Bundle{})
	sim := h.(*Handle)

	code, err := h.RequestPairingCode(ctx, "+14155552671")
	if err != nil {
		t.Fatalf("RequestPairingCode failed: %v", err)
	}
	if code != "ABCD-1234" {
		t.Errorf("Expected default code, got %q", code)
	}

	sim.SetPairingCode("WXYZ-9876")
	if code, _ := h.RequestPairingCode(ctx, "+14155552671"); code != "WXYZ-9876" {
		t.Errorf("Expected scripted code, got %q", code)
	}

	sim.SetPairingErr(errors.New("rejected"))
	if _, err := h.RequestPairingCode(ctx, "+14155552671"); err == nil {
		t.Error("Expected scripted error")
	}
	sim.SetPairingErr(nil)

	sim.EmitOpen()
	if _, err := h.RequestPairingCode(ctx, "+14155552671"); err == nil {
		t.Error("Expected error once the session is open")
	}
}

// TestSetConnectErr verifies connect failure injection.
func TestSetConnectErr(t *testing.T) {
	client := NewClient(Options{})
	client.SetConnectErr(errors.New("network down"))

	if _, err := client.Connect(context.Background(), &credstore.Bundle{}); err == nil {
		t.Error("Expected injected connect error")
	}
	if client.ConnectCount() != 0 {
		t.Error("Failed connects must not fabricate handles")
	}

	client.SetConnectErr(nil)
	if _, err := client.Connect(context.Background(), &credstore.Bundle{}); err != nil {
		t.Errorf("Connect after clearing error failed: %v", err)
	}
	if client.ConnectCount() != 1 || client.LastHandle() == nil {
		t.Error("Expected one fabricated handle")
	}
}

// TestEmitAfterEndIsDropped verifies events after close are discarded.
func TestEmitAfterEndIsDropped(t *testing.T) {
	client := NewClient(Options{})
	h, _ := client.Connect(context.Background(), &credstore.Bundle{})
	sim := h.(*Handle)

	sim.End(protocol.CloseConnectionLost)
	sim.EmitOpen()
	sim.EmitQR("late")

	count := 0
	for range h.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("Expected only the Closed event, got %d events", count)
	}
}
