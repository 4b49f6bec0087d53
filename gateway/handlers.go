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

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatbridge/platform/pairing"
	"chatbridge/platform/session"
	"chatbridge/platform/tenantstore"
)

// statusResponse is the JSON shape for instance status queries.
type statusResponse struct {
	TenantID     string     `json:"tenant_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts,omitempty"`
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
	LastClosedAt *time.Time `json:"last_closed_at,omitempty"`
}

// connectHandler starts (or returns) supervision for a tenant.
func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	sup, err := s.registry.GetOrCreate(r.Context(), tenantID)
	if err != nil {
		s.writeSessionError(w, r, tenantID, err)
		return
	}

	s.writeJSON(w, r, http.StatusAccepted, statusResponse{
		TenantID: tenantID,
		Status:   sup.Status().String(),
	})
}

// statusHandler reports a tenant's session state. Tenants without a
// live supervisor report DISCONNECTED as long as the catalog knows
// them.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	sup, ok := s.registry.Get(tenantID)
	if !ok {
		if _, err := s.tenants.FindTenant(r.Context(), tenantID); err != nil {
			s.writeSessionError(w, r, tenantID, err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, statusResponse{
			TenantID: tenantID,
			Status:   session.StatusDisconnected.String(),
		})
		return
	}

	resp := statusResponse{
		TenantID: tenantID,
		Status:   sup.Status().String(),
		Attempts: sup.Attempts(),
	}
	if t := sup.LastOpenedAt(); !t.IsZero() {
		resp.LastOpenedAt = &t
	}
	if t := sup.LastClosedAt(); !t.IsZero() {
		resp.LastClosedAt = &t
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// qrStreamHandler streams pairing events for a tenant as server-sent
// events: one event per QR refresh, then a terminal connected or error
// event, after which the stream ends.
func (s *Server) qrStreamHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sup, err := s.registry.GetOrCreate(r.Context(), tenantID)
	if err != nil {
		s.writeSessionError(w, r, tenantID, err)
		return
	}

	events, cancel := s.pairing.Subscribe(tenantID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Already authenticated sessions complete the stream right away.
	if sup.Status() == session.StatusOpen {
		s.writeSSE(w, flusher, pairing.StreamEvent{Kind: pairing.StreamConnected, Data: "Connected!"})
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.writeSSE(w, flusher, ev)
			if ev.Terminal() {
				return
			}
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, ev pairing.StreamEvent) {
	payload, err := json.Marshal(map[string]string{
		"type": streamEventType(ev.Kind),
		"data": ev.Data,
	})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func streamEventType(kind pairing.StreamEventKind) string {
	switch kind {
	case pairing.StreamConnected:
		return "connected"
	case pairing.StreamError:
		return "error"
	default:
		return "qr"
	}
}

// pairingCodeHandler requests a phone-pairing code for a tenant.
func (s *Server) pairingCodeHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	code, err := s.pairing.RequestPairingCode(r.Context(), tenantID, req.Phone)
	if err != nil {
		switch {
		case errors.Is(err, pairing.ErrInvalidPhone):
			s.writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, session.ErrSessionOpen):
			s.writeError(w, r, http.StatusConflict, "session already connected")
		case errors.Is(err, tenantstore.ErrNotFound):
			s.writeError(w, r, http.StatusNotFound, "tenant not found")
		default:
			s.log.ErrorWithCode(tenantID, RequestIDFromContext(r.Context()),
				"Pairing code request failed", http.StatusInternalServerError, err, nil)
			s.writeError(w, r, http.StatusInternalServerError, "failed to request pairing code")
		}
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]string{"code": code})
}

// logoutHandler invalidates the session upstream and purges stored
// credentials.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	if err := s.registry.Logout(r.Context(), tenantID); err != nil {
		s.writeSessionError(w, r, tenantID, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

// closeHandler stops the session without touching stored credentials,
// so it can be resumed later.
func (s *Server) closeHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	if err := s.registry.Stop(r.Context(), tenantID); err != nil {
		s.writeSessionError(w, r, tenantID, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "chatbridge-gateway",
		"sessions":  s.registry.Count(),
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	switch {
	case errors.Is(err, tenantstore.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "tenant not found")
	case errors.Is(err, session.ErrNotRunning):
		s.writeError(w, r, http.StatusNotFound, "no active session")
	default:
		s.log.ErrorWithCode(tenantID, RequestIDFromContext(r.Context()),
			"Session operation failed", http.StatusInternalServerError, err, nil)
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("", RequestIDFromContext(r.Context()), "Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, map[string]string{"error": message})
}
