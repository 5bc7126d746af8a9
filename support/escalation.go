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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision values accepted by Resolve.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Escalations is the human-approval workflow. A pending escalation holds a
// verbatim snapshot of the conversation and the proposed action; resolution
// executes the action and updates status in one transaction.
type Escalations struct {
	db *sql.DB
}

// NewEscalations creates the workflow over db.
func NewEscalations(db *sql.DB) *Escalations {
	return &Escalations{db: db}
}

// Create persists a pending escalation with its conversation snapshot.
// orderID is optional; when present it ties the escalation to an order for
// the reviewing agent.
func (e *Escalations) Create(ctx context.Context, sessionID, orderID, userEmail string, action Action, snapshot []Message) (*Escalation, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrValidation)
	}

	esc := &Escalation{
		ID:        "ESC-" + uuid.NewString(),
		SessionID: sessionID,
		OrderID:   orderID,
		UserEmail: userEmail,
		Action:    action,
		Context:   snapshot,
		Status:    EscalationPending,
		CreatedAt: time.Now().UTC(),
	}
	if esc.Context == nil {
		esc.Context = []Message{}
	}

	actionJSON, err := json.Marshal(esc.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	contextJSON, err := json.Marshal(esc.Context)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	_, err = e.db.ExecContext(ctx, `
		INSERT INTO escalations (id, session_id, order_id, user_email, action, context, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		esc.ID, esc.SessionID, esc.OrderID, esc.UserEmail, actionJSON, contextJSON, esc.Status, esc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return esc, nil
}

// ListPending returns pending escalations, most recent first.
func (e *Escalations) ListPending(ctx context.Context) ([]*Escalation, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, session_id, order_id, user_email, action, context, status, notes, result, created_at, resolved_at
		FROM escalations
		WHERE status = $1
		ORDER BY created_at DESC`, EscalationPending)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var escalations []*Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return escalations, nil
}

// Resolve approves or rejects a pending escalation exactly once. On approve,
// the action side effect, the status update, and the decision stamp on the
// session's conversation turns commit in a single transaction; any failure
// rolls back all three.
func (e *Escalations) Resolve(ctx context.Context, escalationID, decision, notes string) (*Escalation, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, fmt.Errorf("%w: decision must be %q or %q", ErrValidation, DecisionApprove, DecisionReject)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	esc, err := getEscalationForUpdate(ctx, tx, escalationID)
	if err != nil {
		return nil, err
	}
	if esc.Status != EscalationPending {
		return nil, fmt.Errorf("%w: escalation %s is %s", ErrAlreadyResolved, escalationID, esc.Status)
	}

	status := EscalationRejected
	result := "Escalation rejected by support agent."
	if decision == DecisionApprove {
		status = EscalationApproved
		result, err = executeAction(ctx, tx, esc.Action)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE escalations SET status = $1, notes = $2, result = $3, resolved_at = $4
		WHERE id = $5`,
		status, notes, result, now, escalationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary := fmt.Sprintf("%s: %s", status, result)
	if err := attachDecision(ctx, tx, esc.SessionID, summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	esc.Status = status
	esc.Notes = notes
	esc.Result = result
	esc.ResolvedAt = &now
	return esc, nil
}

// executeAction applies an approved action's side effect and returns the
// human-readable result message.
func executeAction(ctx context.Context, tx *sql.Tx, action Action) (string, error) {
	switch action.Type {
	case ActionCancelOrder:
		if err := transitionStatus(ctx, tx, action.OrderID, OrderCancelled); err != nil {
			return "", err
		}
		return fmt.Sprintf("Order %s has been cancelled", action.OrderID), nil

	case ActionRequestReturn:
		if _, err := createReturn(ctx, tx, action.OrderID, action.Reason, ReturnApproved); err != nil {
			return "", err
		}
		return fmt.Sprintf("Return request approved for order %s", action.OrderID), nil

	case ActionProcessRefund:
		if _, err := getOrderForUpdate(ctx, tx, action.OrderID); err != nil {
			return "", err
		}
		if err := transitionRefund(ctx, tx, action.OrderID, RefundProcessing); err != nil {
			return "", err
		}
		return fmt.Sprintf("Refund processing initiated for order %s", action.OrderID), nil

	default:
		return "No action was required.", nil
	}
}

func getEscalationForUpdate(ctx context.Context, tx *sql.Tx, escalationID string) (*Escalation, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, session_id, order_id, user_email, action, context, status, notes, result, created_at, resolved_at
		FROM escalations WHERE id = $1 FOR UPDATE`, escalationID)
	return scanEscalationRow(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEscalation(rows *sql.Rows) (*Escalation, error) {
	return scanEscalationFrom(rows)
}

func scanEscalationRow(row *sql.Row) (*Escalation, error) {
	esc, err := scanEscalationFrom(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: escalation", ErrNotFound)
	}
	return esc, err
}

func scanEscalationFrom(s rowScanner) (*Escalation, error) {
	var (
		esc        Escalation
		actionRaw  []byte
		contextRaw []byte
		resolvedAt sql.NullTime
	)
	err := s.Scan(&esc.ID, &esc.SessionID, &esc.OrderID, &esc.UserEmail, &actionRaw, &contextRaw,
		&esc.Status, &esc.Notes, &esc.Result, &esc.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := json.Unmarshal(actionRaw, &esc.Action); err != nil {
		return nil, fmt.Errorf("%w: corrupt action for escalation %s: %v", ErrPersistence, esc.ID, err)
	}
	if err := json.Unmarshal(contextRaw, &esc.Context); err != nil {
		return nil, fmt.Errorf("%w: corrupt context for escalation %s: %v", ErrPersistence, esc.ID, err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		esc.ResolvedAt = &t
	}
	return &esc, nil
}
