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
	"fmt"
	"time"

	"supportflow/platform/support/knowledge"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPlaced    OrderStatus = "placed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// RefundStatus tracks refund progress on an order. Transitions are
// forward-only.
type RefundStatus string

const (
	RefundNone       RefundStatus = "none"
	RefundRequested  RefundStatus = "requested"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
)

// OrderItem is one line of an order.
type OrderItem struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Order is a customer order.
type Order struct {
	ID             string       `json:"id"`
	CustomerEmail  string       `json:"customer_email"`
	Status         OrderStatus  `json:"status"`
	Items          []OrderItem  `json:"items"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	RefundStatus   RefundStatus `json:"refund_status"`
}

// ReturnStatus is the state of a return request.
type ReturnStatus string

const (
	ReturnRequested ReturnStatus = "requested"
	ReturnApproved  ReturnStatus = "approved"
	ReturnRejected  ReturnStatus = "rejected"
)

// Return is a return request against an order.
type Return struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	Reason    string       `json:"reason"`
	Status    ReturnStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// ActionType enumerates the actions the assistant may propose. It is a
// closed set: anything else fails validation at the boundary.
type ActionType string

const (
	ActionNone          ActionType = "none"
	ActionCancelOrder   ActionType = "cancel_order"
	ActionRequestReturn ActionType = "request_return"
	ActionCheckRefund   ActionType = "check_refund"
	ActionProcessRefund ActionType = "process_refund"
)

// Action is one proposed action with its payload.
type Action struct {
	Type    ActionType             `json:"type"`
	OrderID string                 `json:"order_id,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Validate rejects action types outside the closed set.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNone, ActionCancelOrder, ActionRequestReturn, ActionCheckRefund, ActionProcessRefund:
		return nil
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, a.Type)
	}
}

// RequiresApproval reports whether the action has a side effect and must go
// through the human-approval workflow before execution.
func (a Action) RequiresApproval() bool {
	switch a.Type {
	case ActionCancelOrder, ActionRequestReturn, ActionProcessRefund:
		return true
	default:
		return false
	}
}

// StructuredResponse is the assistant's contract-validated output. The KB
// matches used for grounding ride along so clients can show citations.
type StructuredResponse struct {
	Intent          string                  `json:"intent"`
	ResponseText    string                  `json:"response_text"`
	Actions         []Action                `json:"actions"`
	NeedsEscalation bool                    `json:"needs_escalation"`
	Confidence      float64                 `json:"confidence"`
	KBMatches       []knowledge.ScoredEntry `json:"kb_matches"`
}

// Message is one utterance in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the inbound payload for a conversation turn.
type ChatRequest struct {
	SessionID string    `json:"session_id,omitempty"`
	UserEmail string    `json:"user_email"`
	Message   string    `json:"message"`
	OrderID   string    `json:"order_id,omitempty"`
	History   []Message `json:"history,omitempty"`
}

// ConversationTurn is one audited exchange: the ordered customer messages,
// the structured response, the actions the assistant suggested, and an
// optional later agent decision.
type ConversationTurn struct {
	ID              int64               `json:"id"`
	SessionID       string              `json:"session_id"`
	UserEmail       string              `json:"user_email"`
	Messages        []Message           `json:"messages"`
	Response        *StructuredResponse `json:"response"`
	ActionSuggested []Action            `json:"action_suggested,omitempty"`
	Provider        string              `json:"provider,omitempty"`
	AgentDecision   string              `json:"agent_decision,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// EscalationStatus is the state of an escalation request.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationApproved EscalationStatus = "approved"
	EscalationRejected EscalationStatus = "rejected"
)

// Escalation is a request for human review of a proposed action.
type Escalation struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	OrderID    string           `json:"order_id,omitempty"`
	UserEmail  string           `json:"user_email"`
	Action     Action           `json:"action"`
	Context    []Message        `json:"context"`
	Status     EscalationStatus `json:"status"`
	Notes      string           `json:"notes,omitempty"`
	Result     string           `json:"result,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}
