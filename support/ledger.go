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

// refundRank orders refund states. Transitions must move exactly one rank
// forward, except the explicit none-to-processing hop taken when a refund is
// approved without a prior request.
var refundRank = map[RefundStatus]int{
	RefundNone:       0,
	RefundRequested:  1,
	RefundProcessing: 2,
	RefundCompleted:  3,
}

// Ledger reads and transitions order state.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Get returns the order with decoded items, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, orderID string) (*Order, error) {
	return getOrder(ctx, l.db, orderID)
}

// TransitionStatus moves an order between fulfilment states. The only legal
// transition is placed to cancelled.
func (l *Ledger) TransitionStatus(ctx context.Context, orderID string, target OrderStatus) error {
	return transitionStatus(ctx, l.db, orderID, target)
}

// TransitionRefund advances an order's refund state forward by one step, or
// from none straight to processing.
func (l *Ledger) TransitionRefund(ctx context.Context, orderID string, target RefundStatus) error {
	return transitionRefund(ctx, l.db, orderID, target)
}

// CreateReturn records a return request for an order.
func (l *Ledger) CreateReturn(ctx context.Context, orderID, reason string, status ReturnStatus) (*Return, error) {
	return createReturn(ctx, l.db, orderID, reason, status)
}

// The q-taking variants run against either the pool or an open transaction.
// Escalations.Resolve uses them with a tx so the action side effect commits
// atomically with the status update.

func getOrder(ctx context.Context, q querier, orderID string) (*Order, error) {
	return scanOrder(q.QueryRowContext(ctx, `
		SELECT id, customer_email, status, items, tracking_number, created_at, refund_status
		FROM orders WHERE id = $1`, orderID))
}

// getOrderForUpdate takes a row lock so concurrent resolutions serialize.
func getOrderForUpdate(ctx context.Context, tx *sql.Tx, orderID string) (*Order, error) {
	return scanOrder(tx.QueryRowContext(ctx, `
		SELECT id, customer_email, status, items, tracking_number, created_at, refund_status
		FROM orders WHERE id = $1 FOR UPDATE`, orderID))
}

func scanOrder(row *sql.Row) (*Order, error) {
	var (
		order    Order
		itemsRaw []byte
		tracking sql.NullString
	)
	err := row.Scan(&order.ID, &order.CustomerEmail, &order.Status, &itemsRaw,
		&tracking, &order.CreatedAt, &order.RefundStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := json.Unmarshal(itemsRaw, &order.Items); err != nil {
		return nil, fmt.Errorf("%w: corrupt items for order %s: %v", ErrPersistence, order.ID, err)
	}
	order.TrackingNumber = tracking.String
	return &order, nil
}

func transitionStatus(ctx context.Context, q querier, orderID string, target OrderStatus) error {
	order, err := getOrder(ctx, q, orderID)
	if err != nil {
		return err
	}

	if !(order.Status == OrderPlaced && target == OrderCancelled) {
		return fmt.Errorf("%w: cannot move order %s from %s to %s",
			ErrInvalidState, orderID, order.Status, target)
	}

	_, err = q.ExecContext(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, target, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func transitionRefund(ctx context.Context, q querier, orderID string, target RefundStatus) error {
	order, err := getOrder(ctx, q, orderID)
	if err != nil {
		return err
	}

	from, ok := refundRank[order.RefundStatus]
	if !ok {
		return fmt.Errorf("%w: order %s has unknown refund status %q",
			ErrInvalidState, orderID, order.RefundStatus)
	}
	to, ok := refundRank[target]
	if !ok {
		return fmt.Errorf("%w: unknown refund status %q", ErrValidation, target)
	}

	legal := to == from+1 ||
		(order.RefundStatus == RefundNone && target == RefundProcessing)
	if !legal {
		return fmt.Errorf("%w: cannot move refund for order %s from %s to %s",
			ErrInvalidState, orderID, order.RefundStatus, target)
	}

	_, err = q.ExecContext(ctx, `UPDATE orders SET refund_status = $1 WHERE id = $2`, target, orderID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func createReturn(ctx context.Context, q querier, orderID, reason string, status ReturnStatus) (*Return, error) {
	if _, err := getOrder(ctx, q, orderID); err != nil {
		return nil, err
	}

	ret := &Return{
		ID:        "RET-" + uuid.NewString(),
		OrderID:   orderID,
		Reason:    reason,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO returns (id, order_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ret.ID, ret.OrderID, ret.Reason, ret.Status, ret.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ret, nil
}
