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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"supportflow/platform/shared/logger"
	"supportflow/platform/support/knowledge"
	"supportflow/platform/support/llm"
)

// Degraded-mode responses. These are served deterministically; provider
// errors never reach the customer.
const (
	fallbackResponse   = "I apologize, but our AI system is currently unavailable. Please contact our human support team for assistance."
	parseErrorResponse = "I apologize, but I encountered an issue processing your request. Could you please rephrase your question?"
)

// Conversations runs the chat pipeline: ground the query against the
// knowledge base and order state, call the LLM chain, validate the output
// contract, and audit exactly one turn per invocation.
type Conversations struct {
	router    *llm.Router
	retriever *knowledge.Retriever
	ledger    *Ledger
	audit     *Audit
	log       *logger.Logger
	timeout   time.Duration
}

// NewConversations wires the chat pipeline. timeout bounds retrieval plus
// the provider call; <= 0 uses 30s.
func NewConversations(router *llm.Router, retriever *knowledge.Retriever, ledger *Ledger, audit *Audit, log *logger.Logger, timeout time.Duration) *Conversations {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Conversations{
		router:    router,
		retriever: retriever,
		ledger:    ledger,
		audit:     audit,
		log:       log,
		timeout:   timeout,
	}
}

// Handle processes one chat turn and returns the validated structured
// response plus the session id (generated when the request carries none).
func (c *Conversations) Handle(ctx context.Context, req ChatRequest) (*StructuredResponse, string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, "", fmt.Errorf("%w: message is required", ErrValidation)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	entries := c.retriever.Search(ctx, req.Message)

	var order *Order
	if req.OrderID != "" {
		o, err := c.ledger.Get(ctx, req.OrderID)
		if err == nil {
			order = o
		} else {
			// Unknown order ids are not fatal: the assistant answers
			// without order grounding.
			c.log.Warn(sessionID, "", "order lookup failed during chat", map[string]interface{}{
				"order_id": req.OrderID,
				"error":    err.Error(),
			})
		}
	}

	prompt := buildPrompt(req, entries, order)

	resp, provider := c.queryProviders(ctx, sessionID, prompt)
	llmCallsTotal.WithLabelValues(provider, responseStatus(resp)).Inc()

	// Every path carries the KB matches used for grounding.
	if entries == nil {
		entries = []knowledge.ScoredEntry{}
	}
	resp.KBMatches = entries

	turn := &ConversationTurn{
		SessionID:       sessionID,
		UserEmail:       req.UserEmail,
		Messages:        []Message{{Role: "user", Content: req.Message}},
		Response:        resp,
		ActionSuggested: resp.Actions,
		Provider:        provider,
	}
	// The turn is audited even when the provider call consumed the whole
	// request deadline, so the append runs on its own clock.
	auditCtx, auditCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer auditCancel()
	if err := c.audit.Append(auditCtx, turn); err != nil {
		return nil, "", err
	}

	c.log.InfoWithDuration(sessionID, "", "chat turn completed", float64(time.Since(start).Milliseconds()), map[string]interface{}{
		"intent":           resp.Intent,
		"provider":         provider,
		"needs_escalation": resp.NeedsEscalation,
		"kb_entries":       len(entries),
	})
	return resp, sessionID, nil
}

// queryProviders calls the router and folds every failure mode into a
// deterministic structured response. provider is "" in degraded mode.
func (c *Conversations) queryProviders(ctx context.Context, sessionID, prompt string) (*StructuredResponse, string) {
	llmResp, provider, err := c.router.Query(ctx, prompt, llm.Options{
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		c.log.Warn(sessionID, "", "all providers failed, serving fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return fallback(), ""
	}

	resp, err := parseStructured(llmResp.Content)
	if err != nil {
		c.log.Warn(sessionID, "", "provider output violated contract", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return parseError(), provider
	}
	return resp, provider
}

func fallback() *StructuredResponse {
	return &StructuredResponse{
		Intent:          "fallback",
		ResponseText:    fallbackResponse,
		Actions:         []Action{{Type: ActionNone}},
		NeedsEscalation: true,
		Confidence:      0.5,
	}
}

func parseError() *StructuredResponse {
	return &StructuredResponse{
		Intent:          "parse_error",
		ResponseText:    parseErrorResponse,
		Actions:         []Action{{Type: ActionNone}},
		NeedsEscalation: false,
		Confidence:      0.1,
	}
}

// parseStructured validates provider output against the response contract:
// valid JSON, known action types, confidence clamped to [0,1].
func parseStructured(content string) (*StructuredResponse, error) {
	content = stripCodeFence(content)

	var resp StructuredResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderParse, err)
	}
	if resp.ResponseText == "" {
		return nil, fmt.Errorf("%w: missing response text", ErrProviderParse)
	}
	for _, action := range resp.Actions {
		if err := action.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderParse, err)
		}
	}
	if len(resp.Actions) == 0 {
		resp.Actions = []Action{{Type: ActionNone}}
	}
	if resp.Confidence < 0 {
		resp.Confidence = 0
	}
	if resp.Confidence > 1 {
		resp.Confidence = 1
	}
	return &resp, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// providers add around JSON despite instructions.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// buildPrompt assembles the grounding prompt: knowledge base block, optional
// order block, conversation history, and the JSON output contract.
func buildPrompt(req ChatRequest, entries []knowledge.ScoredEntry, order *Order) string {
	var b strings.Builder

	b.WriteString("You are a helpful customer support assistant for an e-commerce platform.\n\n")

	if len(entries) > 0 {
		b.WriteString("Relevant knowledge base articles:\n")
		for _, entry := range entries {
			fmt.Fprintf(&b, "- %s: %s\n", entry.Title, entry.Content)
		}
		b.WriteString("\n")
	}

	if order != nil {
		var items []string
		for _, item := range order.Items {
			items = append(items, fmt.Sprintf("%s (qty: %d)", item.SKU, item.Qty))
		}
		tracking := order.TrackingNumber
		if tracking == "" {
			tracking = "Not available yet"
		}
		fmt.Fprintf(&b, "Customer's order:\n")
		fmt.Fprintf(&b, "- Order ID: %s\n- Status: %s\n- Items: %s\n- Tracking: %s\n- Created: %s\n- Refund status: %s\n",
			order.ID, order.Status, strings.Join(items, ", "), tracking,
			order.CreatedAt.UTC().Format(time.RFC3339), order.RefundStatus)
		b.WriteString("\n")
	}

	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Customer (%s): %s\n\n", req.UserEmail, req.Message)

	b.WriteString(`Respond with ONLY a JSON object in this exact format:
{
  "intent": "one of: order_status, cancel_order, return_request, refund_status, product_question, policy_question, other",
  "response_text": "your helpful response to the customer",
  "actions": [{"type": "none | cancel_order | request_return | check_refund | process_refund", "order_id": "...", "reason": "..."}],
  "needs_escalation": true or false,
  "confidence": 0.0 to 1.0
}

Rules:
- Any action with a side effect (cancel_order, request_return, process_refund) requires needs_escalation: true so a human agent can approve it.
- Orders can only be cancelled if they have not shipped.
- Never invent order details that are not listed above.
- If you are unsure, set needs_escalation to true.`)

	return b.String()
}

func responseStatus(resp *StructuredResponse) string {
	switch resp.Intent {
	case "fallback":
		return "fallback"
	case "parse_error":
		return "parse_error"
	default:
		return "ok"
	}
}
