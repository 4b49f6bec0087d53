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

// Package pairing links new devices to tenant sessions. It renders QR
// payloads for scan-based pairing, validates phone numbers for
// code-based pairing, and streams pairing progress to subscribers.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"chatbridge/platform/protocol"
)

// ConnectionProvider is the session layer seam the coordinator pairs
// through. Implemented by the session registry; injected with
// SetProvider to keep the dependency one-directional.
type ConnectionProvider interface {
	// PairingHandle returns the tenant's live protocol handle, starting
	// a connection when none exists. The handle must be pre-open, i.e.
	// still awaiting authentication.
	PairingHandle(ctx context.Context, tenantID string) (protocol.Handle, error)

	// PurgeCredentials deletes the tenant's stored credential bundle.
	PurgeCredentials(ctx context.Context, tenantID string) error
}

// Coordinator drives device pairing for tenants.
type Coordinator struct {
	broker   *Broker
	provider ConnectionProvider
	logger   *log.Logger
}

// NewCoordinator creates a coordinator with an empty stream broker.
// A ConnectionProvider must be injected before pairing codes can be
// requested.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		broker: NewBroker(),
		logger: log.New(os.Stdout, "[PAIRING] ", log.LstdFlags),
	}
}

// SetProvider injects the session layer.
func (c *Coordinator) SetProvider(p ConnectionProvider) {
	c.provider = p
}

// Subscribe attaches a listener to a tenant's pairing stream.
func (c *Coordinator) Subscribe(tenantID string) (<-chan StreamEvent, func()) {
	return c.broker.Subscribe(tenantID)
}

// PublishQR renders a raw QR payload and fans the image out to
// subscribers. Render failures are logged and dropped; the next QR
// rotation will retry.
func (c *Coordinator) PublishQR(tenantID, payload string) {
	dataURL, err := RenderQR(payload)
	if err != nil {
		c.logger.Printf("Failed to render QR for tenant %s: %v", tenantID, err)
		return
	}
	c.broker.Publish(tenantID, StreamEvent{Kind: StreamQR, Data: dataURL})
}

// PublishConnected marks a tenant's pairing stream as successfully
// completed and closes it.
func (c *Coordinator) PublishConnected(tenantID string) {
	c.broker.Publish(tenantID, StreamEvent{Kind: StreamConnected, Data: "Connected!"})
}

// PublishError terminates a tenant's pairing stream with an error.
func (c *Coordinator) PublishError(tenantID string, err error) {
	c.broker.Publish(tenantID, StreamEvent{Kind: StreamError, Data: err.Error()})
}

// CloseStream drops a tenant's subscribers without a terminal event.
func (c *Coordinator) CloseStream(tenantID string) {
	c.broker.Close(tenantID)
}

// RequestPairingCode obtains a numeric linking code for phone-based
// pairing. The number is validated before any connection work happens,
// so an invalid number leaves no session state behind. A failure after
// the connection was established purges the tenant's credentials to
// avoid a half-initialized session.
func (c *Coordinator) RequestPairingCode(ctx context.Context, tenantID, phone string) (string, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	if c.provider == nil {
		return "", errors.New("pairing: no connection provider configured")
	}

	handle, err := c.provider.PairingHandle(ctx, tenantID)
	if err != nil {
		c.purge(ctx, tenantID)
		return "", fmt.Errorf("failed to prepare pairing connection: %w", err)
	}

	code, err := handle.RequestPairingCode(ctx, normalized)
	if err != nil {
		c.purge(ctx, tenantID)
		return "", fmt.Errorf("failed to request pairing code: %w", err)
	}
	return code, nil
}

func (c *Coordinator) purge(ctx context.Context, tenantID string) {
	if err := c.provider.PurgeCredentials(ctx, tenantID); err != nil {
		c.logger.Printf("Failed to purge credentials for tenant %s after pairing failure: %v", tenantID, err)
	}
}
