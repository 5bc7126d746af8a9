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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var escalationColumns = []string{
	"id", "session_id", "order_id", "user_email", "action", "context", "status", "notes", "result", "created_at", "resolved_at",
}

func escalationRow(id string, status EscalationStatus, actionJSON string) *sqlmock.Rows {
	return sqlmock.NewRows(escalationColumns).AddRow(
		id, "sess-1", "ORD-1001", "alice@example.com", actionJSON, `[]`, status, "", "", time.Now(), nil,
	)
}

func TestEscalationsCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO escalations")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	escalations := NewEscalations(db)
	esc, err := escalations.Create(context.Background(), "sess-1", "ORD-1001", "alice@example.com",
		Action{Type: ActionCancelOrder, OrderID: "ORD-1001"},
		[]Message{{Role: "user", Content: "please cancel my order"}})
	require.NoError(t, err)
	assert.Equal(t, EscalationPending, esc.Status)
	assert.Equal(t, "ORD-1001", esc.OrderID)
	assert.NotEmpty(t, esc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The order id is optional metadata for the reviewing agent.
func TestEscalationsCreateWithoutOrderID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO escalations")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	escalations := NewEscalations(db)
	esc, err := escalations.Create(context.Background(), "sess-1", "", "alice@example.com",
		Action{Type: ActionNone}, nil)
	require.NoError(t, err)
	assert.Empty(t, esc.OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalationsCreateRejectsUnknownAction(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	escalations := NewEscalations(db)
	_, err = escalations.Create(context.Background(), "sess-1", "", "alice@example.com",
		Action{Type: "delete_everything"}, nil)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestResolveApproveCancelOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-1").
		WillReturnRows(escalationRow("ESC-1", EscalationPending,
			`{"type":"cancel_order","order_id":"ORD-1001"}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("ORD-1001").
		WillReturnRows(orderRow("ORD-1001", OrderPlaced, RefundNone))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).
		WithArgs(OrderCancelled, "ORD-1001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE escalations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET agent_decision")).
		WithArgs("approved: Order ORD-1001 has been cancelled", "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	escalations := NewEscalations(db)
	esc, err := escalations.Resolve(context.Background(), "ESC-1", DecisionApprove, "looks fine")
	require.NoError(t, err)
	assert.Equal(t, EscalationApproved, esc.Status)
	assert.Equal(t, "Order ORD-1001 has been cancelled", esc.Result)
	assert.NotNil(t, esc.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveApproveFailingActionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-1").
		WillReturnRows(escalationRow("ESC-1", EscalationPending,
			`{"type":"cancel_order","order_id":"ORD-1002"}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("ORD-1002").
		WillReturnRows(orderRow("ORD-1002", OrderShipped, RefundNone))
	mock.ExpectRollback()

	escalations := NewEscalations(db)
	_, err = escalations.Resolve(context.Background(), "ESC-1", DecisionApprove, "")
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveReject(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-1").
		WillReturnRows(escalationRow("ESC-1", EscalationPending,
			`{"type":"process_refund","order_id":"ORD-1005"}`))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE escalations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET agent_decision")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	escalations := NewEscalations(db)
	esc, err := escalations.Resolve(context.Background(), "ESC-1", DecisionReject, "not eligible")
	require.NoError(t, err)
	assert.Equal(t, EscalationRejected, esc.Status)
	assert.Equal(t, "not eligible", esc.Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlreadyResolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-1").
		WillReturnRows(escalationRow("ESC-1", EscalationApproved,
			`{"type":"cancel_order","order_id":"ORD-1001"}`))
	mock.ExpectRollback()

	escalations := NewEscalations(db)
	_, err = escalations.Resolve(context.Background(), "ESC-1", DecisionApprove, "")
	assert.True(t, errors.Is(err, ErrAlreadyResolved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-404").
		WillReturnRows(sqlmock.NewRows(escalationColumns))
	mock.ExpectRollback()

	escalations := NewEscalations(db)
	_, err = escalations.Resolve(context.Background(), "ESC-404", DecisionReject, "")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveInvalidDecision(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	escalations := NewEscalations(db)
	_, err = escalations.Resolve(context.Background(), "ESC-1", "maybe", "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestResolveApproveProcessRefundHop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM escalations WHERE id = $1 FOR UPDATE")).
		WithArgs("ESC-2").
		WillReturnRows(escalationRow("ESC-2", EscalationPending,
			`{"type":"process_refund","order_id":"ORD-1003"}`))
	// Lock, then the transition re-reads inside the same tx.
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("ORD-1003").
		WillReturnRows(orderRow("ORD-1003", OrderDelivered, RefundNone))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).
		WithArgs("ORD-1003").
		WillReturnRows(orderRow("ORD-1003", OrderDelivered, RefundNone))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET refund_status")).
		WithArgs(RefundProcessing, "ORD-1003").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE escalations SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET agent_decision")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	escalations := NewEscalations(db)
	esc, err := escalations.Resolve(context.Background(), "ESC-2", DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, "Refund processing initiated for order ORD-1003", esc.Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
