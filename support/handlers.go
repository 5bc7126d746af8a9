// Copyright 2025 SupportFlow
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

package support

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"supportflow/platform/support/llm"
)

// server bundles the HTTP handler dependencies.
type server struct {
	conversations *Conversations
	escalations   *Escalations
	ledger        *Ledger
	audit         *Audit
	metrics       *Metrics
	router        *llm.Router
	agentToken    string
	adminToken    string
}

// writeError maps the error taxonomy onto HTTP status codes. Internal
// detail goes to the log, never to the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, ErrAlreadyResolved):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, ErrInvalidState):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	default:
		log.Printf("internal error: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireAgent gates a handler behind the shared agent bearer token.
func (s *server) requireAgent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.agentToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.agentToken)) != 1 {
			writeError(w, ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireAdmin gates a handler behind the admin query token.
func (s *server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chatRequestsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	resp, sessionID, err := s.conversations.Handle(r.Context(), req)
	if err != nil {
		chatRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, err)
		return
	}

	chatRequestsTotal.WithLabelValues("ok").Inc()
	requestDuration.WithLabelValues("chat").Observe(float64(time.Since(start).Milliseconds()))
	// Flat envelope: the structured response's own fields plus the session id.
	writeJSON(w, http.StatusOK, struct {
		SessionID string `json:"session_id"`
		*StructuredResponse
	}{sessionID, resp})
}

func (s *server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]
	order, err := s.ledger.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string    `json:"session_id"`
		OrderID   string    `json:"order_id"`
		UserEmail string    `json:"user_email"`
		Action    Action    `json:"action"`
		Context   []Message `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	esc, err := s.escalations.Create(r.Context(), req.SessionID, req.OrderID, req.UserEmail, req.Action, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}

	escalationsCreatedTotal.Inc()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"escalation_id": esc.ID,
		"status":        esc.Status,
		"message":       "Your request has been escalated to our support team for review.",
	})
}

func (s *server) handlePendingEscalations(w http.ResponseWriter, r *http.Request) {
	escalations, err := s.escalations.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if escalations == nil {
		escalations = []*Escalation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": escalations,
		"count":   len(escalations),
	})
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EscalationID string `json:"escalation_id"`
		Decision     string `json:"decision"`
		Notes        string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	esc, err := s.escalations.Resolve(r.Context(), req.EscalationID, req.Decision, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}

	escalationsResolvedTotal.WithLabelValues(req.Decision).Inc()
	writeJSON(w, http.StatusOK, esc)
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	turns, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if turns == nil {
		turns = []*ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": turns,
		"count":   len(turns),
	})
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"llm_providers": s.router.Providers(),
		"llm_healthy":   s.router.Healthy(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
