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
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chatbridge/platform/credstore"
	"chatbridge/platform/metacache"
	"chatbridge/platform/pairing"
	"chatbridge/platform/protocol"
	"chatbridge/platform/shared/logger"
	"chatbridge/platform/tenantstore"
)

// Status is a tenant session's lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusAwaitingAuth
	StatusOpen
	StatusClosing
	StatusReconnecting
	StatusLoggedOut
)

// String returns the status name used in logs and API responses.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusAwaitingAuth:
		return "AWAITING_AUTH"
	case StatusOpen:
		return "OPEN"
	case StatusClosing:
		return "CLOSING"
	case StatusReconnecting:
		return "RECONNECTING"
	case StatusLoggedOut:
		return "LOGGED_OUT"
	default:
		return "DISCONNECTED"
	}
}

// ErrSessionEnded is returned when an operation requires a live
// supervisor but the session already terminated.
var ErrSessionEnded = errors.New("session ended")

// opTimeout bounds the async side effects (credential saves, active
// flag mirroring) so a hung backend cannot leak goroutines forever.
const opTimeout = 10 * time.Second

type supervisorConfig struct {
	tenantID   string
	sessionKey string
	client     protocol.Client
	creds      credstore.Store
	tenants    tenantstore.Store
	pairing    *pairing.Coordinator
	groups     *metacache.Cache
	policy     Policy
	renewal    time.Duration
	metrics    *Metrics
	log        *logger.Logger
	onRemove   func(*Supervisor)
}

// Supervisor owns one tenant's connection lifecycle. It runs a single
// goroutine that opens the transport, consumes its event stream in
// order, persists credential updates, schedules renewal, and decides
// after every close whether to reconnect, restart, or stop.
type Supervisor struct {
	cfg supervisorConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	status       Status
	handle       protocol.Handle
	attempts     int
	lastOpenedAt time.Time
	lastClosedAt time.Time
	changed      chan struct{}
	renewalTimer *time.Timer

	mirrorMu   sync.Mutex
	mirrorWant bool
	mirrorBusy bool
}

func newSupervisor(cfg supervisorConfig) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusConnecting,
		changed: make(chan struct{}),
	}
}

func (s *Supervisor) start() {
	go s.run()
}

// TenantID returns the supervised tenant's identifier.
func (s *Supervisor) TenantID() string { return s.cfg.tenantID }

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Attempts returns the reconnect attempt count since the last OPEN.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastOpenedAt returns when the transport last reached OPEN.
func (s *Supervisor) LastOpenedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpenedAt
}

// LastClosedAt returns when the transport last closed.
func (s *Supervisor) LastClosedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClosedAt
}

// Done is closed when supervision has fully stopped.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// WaitForHandle blocks until the supervisor has a live transport
// handle, the session ends, or ctx expires. Used by the pairing flow,
// which needs the pre-open handle to request a pairing code.
func (s *Supervisor) WaitForHandle(ctx context.Context) (protocol.Handle, error) {
	for {
		s.mu.Lock()
		h := s.handle
		ch := s.changed
		s.mu.Unlock()

		if h != nil {
			return h, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, ErrSessionEnded
		case <-ch:
		}
	}
}

// Stop ends the session silently: the transport closes with a
// user-stop reason, credentials are retained, and no reconnect is
// scheduled. Blocks until supervision stopped or ctx expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		h.End(protocol.CloseUserStopped)
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout invalidates the session upstream and tears it down
// terminally, purging stored credentials. Blocks until supervision
// stopped or ctx expires.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		// No live transport; purge directly and stop silently.
		s.purgeCredentials()
		s.cancel()
	} else {
		if err := h.Logout(ctx); err != nil {
			s.cfg.log.Warn(s.cfg.tenantID, "", "Upstream logout failed, ending transport anyway", map[string]interface{}{
				"error": err.Error(),
			})
			h.End(protocol.CloseLoggedOut)
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer s.cfg.metrics.sessionEnded()
	defer func() {
		// Let in-flight credential writes drain before the store goes
		// away.
		s.wg.Wait()
		if err := s.cfg.creds.Close(); err != nil {
			s.cfg.log.Warn(s.cfg.tenantID, "", "Failed to close credential store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	for {
		disp, delay := s.runConnection()
		if disp == DispositionTerminal || disp == DispositionSilent {
			return
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
		if s.ctx.Err() != nil {
			s.finalizeSilent()
			return
		}
	}
}

// runConnection opens one transport and consumes its event stream to
// completion. It returns the close disposition and, for retries, the
// backoff delay before the next attempt.
func (s *Supervisor) runConnection() (Disposition, time.Duration) {
	s.setStatus(StatusConnecting)

	bundle, err := s.cfg.creds.Load(s.ctx, s.cfg.sessionKey)
	if err != nil {
		s.cfg.log.Warn(s.cfg.tenantID, "", "Failed to load credentials", map[string]interface{}{
			"error": err.Error(),
		})
		return s.retry()
	}

	handle, err := s.cfg.client.Connect(s.ctx, bundle)
	if err != nil {
		if s.ctx.Err() != nil {
			s.finalizeSilent()
			return DispositionSilent, 0
		}
		s.cfg.log.Warn(s.cfg.tenantID, "", "Failed to open transport", map[string]interface{}{
			"error": err.Error(),
		})
		return s.retry()
	}
	s.setHandle(handle)

	var closed *protocol.Closed
	for ev := range handle.Events() {
		s.handleEvent(ev, &closed)
	}
	s.setHandle(nil)
	s.cancelRenewal()

	reason := protocol.CloseConnectionLost
	var closeErr error
	if closed != nil {
		reason = closed.Reason
		closeErr = closed.Err
	}

	s.setStatus(StatusClosing)
	s.mu.Lock()
	s.lastClosedAt = time.Now()
	s.mu.Unlock()
	s.cfg.metrics.disconnect(reason.String())
	s.mirrorActive(false)

	disp := s.cfg.policy.Classify(reason)
	if s.ctx.Err() != nil && (disp == DispositionRetry || disp == DispositionRestart) {
		disp = DispositionSilent
	}

	fields := map[string]interface{}{
		"reason":      reason.String(),
		"disposition": disp.String(),
	}
	if closeErr != nil {
		fields["error"] = closeErr.Error()
	}
	s.cfg.log.Info(s.cfg.tenantID, "", "Transport closed", fields)

	switch disp {
	case DispositionTerminal:
		s.finalizeTerminal()
		return DispositionTerminal, 0
	case DispositionSilent:
		s.finalizeSilent()
		return DispositionSilent, 0
	case DispositionRestart:
		s.cfg.metrics.reconnectAttempt()
		return DispositionRestart, 0
	default:
		return s.retry()
	}
}

func (s *Supervisor) handleEvent(ev protocol.Event, closed **protocol.Closed) {
	switch e := ev.(type) {
	case protocol.Opened:
		s.mu.Lock()
		s.status = StatusOpen
		s.attempts = 0
		s.lastOpenedAt = time.Now()
		s.signalLocked()
		s.mu.Unlock()

		s.cfg.metrics.transition(StatusOpen)
		s.cfg.log.Info(s.cfg.tenantID, "", "Connection opened", nil)
		s.mirrorActive(true)
		s.scheduleRenewal()
		s.cfg.pairing.PublishConnected(s.cfg.tenantID)

	case protocol.QR:
		s.setStatus(StatusAwaitingAuth)
		payload := e.Payload
		s.spawn(func() {
			s.cfg.pairing.PublishQR(s.cfg.tenantID, payload)
		})

	case protocol.NewLogin:
		s.cfg.log.Info(s.cfg.tenantID, "", "Pairing completed, account linked", nil)
		s.cfg.pairing.PublishConnected(s.cfg.tenantID)

	case protocol.CredentialsUpdated:
		data := make(json.RawMessage, len(e.Data))
		copy(data, e.Data)
		s.spawn(func() {
			s.persistCredentials(data)
		})

	case protocol.GroupsUpsert:
		s.cfg.groups.UpsertMany(e.Groups)

	case protocol.GroupsUpdate:
		for _, patch := range e.Patches {
			s.cfg.groups.MergePartial(patch.ID, patch)
		}

	case protocol.Closed:
		c := e
		*closed = &c
	}
}

func (s *Supervisor) retry() (Disposition, time.Duration) {
	if s.ctx.Err() != nil {
		s.finalizeSilent()
		return DispositionSilent, 0
	}

	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	s.mu.Unlock()

	delay := s.cfg.policy.Delay(attempt)
	s.setStatus(StatusReconnecting)
	s.cfg.metrics.reconnectAttempt()
	s.cfg.log.Info(s.cfg.tenantID, "", "Reconnect scheduled", map[string]interface{}{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	})
	return DispositionRetry, delay
}

func (s *Supervisor) finalizeTerminal() {
	s.purgeCredentials()
	s.cfg.pairing.CloseStream(s.cfg.tenantID)
	s.setStatus(StatusLoggedOut)
	s.cfg.log.Info(s.cfg.tenantID, "", "Session terminated, credentials purged", nil)
	s.remove()
}

func (s *Supervisor) finalizeSilent() {
	s.cfg.pairing.CloseStream(s.cfg.tenantID)
	s.setStatus(StatusDisconnected)
	s.cfg.log.Info(s.cfg.tenantID, "", "Session stopped, credentials retained", nil)
	s.remove()
}

func (s *Supervisor) remove() {
	if s.cfg.onRemove != nil {
		s.cfg.onRemove(s)
	}
}

// scheduleRenewal arms the proactive renewal timer. When it fires the
// transport is ended cleanly and recreated immediately, bounding
// session staleness. Firing while the session is not open is a no-op.
func (s *Supervisor) scheduleRenewal() {
	if s.cfg.renewal <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renewalTimer != nil {
		s.renewalTimer.Stop()
	}
	s.renewalTimer = time.AfterFunc(s.cfg.renewal, func() {
		s.mu.Lock()
		h := s.handle
		open := s.status == StatusOpen
		s.mu.Unlock()

		if !open || h == nil {
			return
		}
		s.cfg.log.Info(s.cfg.tenantID, "", "Renewing connection", nil)
		h.End(protocol.CloseRenewal)
	})
}

func (s *Supervisor) cancelRenewal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renewalTimer != nil {
		s.renewalTimer.Stop()
		s.renewalTimer = nil
	}
}

// persistCredentials saves an updated bundle. Failures are logged and
// counted; the live connection is never blocked or torn down over a
// persistence error.
func (s *Supervisor) persistCredentials(data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := s.cfg.creds.Save(ctx, s.cfg.sessionKey, &credstore.Bundle{Data: data})
	s.cfg.metrics.credentialSave(err)
	if err != nil {
		s.cfg.log.Error(s.cfg.tenantID, "", "Failed to persist credentials", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Supervisor) purgeCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.cfg.creds.Delete(ctx, s.cfg.sessionKey); err != nil {
		s.cfg.log.Error(s.cfg.tenantID, "", "Failed to purge credentials", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// mirrorActive reflects the connection state to the tenant catalog
// without blocking the event loop. Writes for one tenant are applied in
// order by a single worker: a slow SetActive(true) from an open cannot
// land after the SetActive(false) of a later close. Rapid flips
// coalesce into the newest value.
func (s *Supervisor) mirrorActive(active bool) {
	s.mirrorMu.Lock()
	s.mirrorWant = active
	if s.mirrorBusy {
		s.mirrorMu.Unlock()
		return
	}
	s.mirrorBusy = true
	s.mirrorMu.Unlock()

	s.spawn(s.mirrorWorker)
}

func (s *Supervisor) mirrorWorker() {
	for {
		s.mirrorMu.Lock()
		want := s.mirrorWant
		s.mirrorMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := s.cfg.tenants.SetActive(ctx, s.cfg.tenantID, want)
		cancel()
		if err != nil {
			s.cfg.log.Warn(s.cfg.tenantID, "", "Failed to mirror active flag", map[string]interface{}{
				"active": want,
				"error":  err.Error(),
			})
		}

		s.mirrorMu.Lock()
		if s.mirrorWant == want {
			s.mirrorBusy = false
			s.mirrorMu.Unlock()
			return
		}
		s.mirrorMu.Unlock()
	}
}

func (s *Supervisor) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	if s.status != status {
		s.status = status
		s.signalLocked()
		s.mu.Unlock()
		s.cfg.metrics.transition(status)
		return
	}
	s.mu.Unlock()
}

func (s *Supervisor) setHandle(h protocol.Handle) {
	s.mu.Lock()
	s.handle = h
	s.signalLocked()
	s.mu.Unlock()

	// A stop that raced connection creation never saw this handle;
	// end it here so the event loop drains promptly.
	if h != nil && s.ctx.Err() != nil {
		h.End(protocol.CloseUserStopped)
	}
}

func (s *Supervisor) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
