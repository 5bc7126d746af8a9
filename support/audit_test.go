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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"short local", "al@example.com", "a***@example.com"},
		{"single char local", "a@example.com", "a***@example.com"},
		{"long local", "alice@example.com", "a***e@example.com"},
		{"two dots", "john.smith@corp.example.com", "j***h@corp.example.com"},
		{"no at sign", "not-an-email", "not-an-email"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.email))
		})
	}
}

func TestAuditAppendMasksEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	resp := &StructuredResponse{
		Intent:       "order_status",
		ResponseText: "Your order is on its way.",
		Actions:      []Action{{Type: ActionNone}},
		Confidence:   0.9,
	}
	respJSON, _ := json.Marshal(resp)
	messages := []Message{{Role: "user", Content: "where is my order?"}}
	messagesJSON, _ := json.Marshal(messages)
	actionsJSON, _ := json.Marshal(resp.Actions)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs("sess-1", "a***e@example.com", messagesJSON, respJSON, "openai", actionsJSON).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	audit := NewAudit(db)
	turn := &ConversationTurn{
		SessionID:       "sess-1",
		UserEmail:       "alice@example.com",
		Messages:        messages,
		Response:        resp,
		ActionSuggested: resp.Actions,
		Provider:        "openai",
	}
	require.NoError(t, audit.Append(context.Background(), turn))
	assert.Equal(t, int64(7), turn.ID)
	assert.Equal(t, "a***e@example.com", turn.UserEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	respJSON := `{"intent":"faq","response_text":"hi","actions":[{"type":"none"}],"needs_escalation":false,"confidence":0.8}`
	messagesJSON := `[{"role":"user","content":"hello"}]`
	actionsJSON := `[{"type":"none"}]`
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "user_email", "messages", "response", "provider", "action_suggested", "agent_decision", "created_at",
	}).
		AddRow(int64(2), "sess-2", "b***@example.com", messagesJSON, respJSON, "openai", actionsJSON, nil, time.Now()).
		AddRow(int64(1), "sess-1", "a***e@example.com", `[{"role":"user","content":"hi"}]`, respJSON, "", nil, "approved: Order ORD-1001 has been cancelled", time.Now().Add(-time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations")).
		WithArgs(50).
		WillReturnRows(rows)

	audit := NewAudit(db)
	turns, err := audit.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "sess-2", turns[0].SessionID)
	assert.Empty(t, turns[0].AgentDecision)
	assert.Equal(t, "faq", turns[0].Response.Intent)
	require.Len(t, turns[0].Messages, 1)
	assert.Equal(t, "user", turns[0].Messages[0].Role)
	assert.Equal(t, "hello", turns[0].Messages[0].Content)
	require.Len(t, turns[0].ActionSuggested, 1)
	assert.Equal(t, ActionNone, turns[0].ActionSuggested[0].Type)
	assert.Empty(t, turns[1].ActionSuggested)
	assert.Equal(t, "approved: Order ORD-1001 has been cancelled", turns[1].AgentDecision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The ordered message list survives the write and read back intact.
func TestAuditMessagesRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	messages := []Message{
		{Role: "user", Content: "my package never arrived"},
		{Role: "assistant", Content: "Let me check that order for you."},
		{Role: "user", Content: "it was ORD-1003"},
	}
	messagesJSON, _ := json.Marshal(messages)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO conversations")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "user_email", "messages", "response", "provider", "action_suggested", "agent_decision", "created_at",
		}).AddRow(int64(9), "sess-9", "a***e@example.com", messagesJSON, "null", "", nil, nil, time.Now()))

	audit := NewAudit(db)
	turn := &ConversationTurn{SessionID: "sess-9", UserEmail: "alice@example.com", Messages: messages}
	require.NoError(t, audit.Append(context.Background(), turn))

	turns, err := audit.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, messages, turns[0].Messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecentCustomLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("FROM conversations")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "session_id", "user_email", "messages", "response", "provider", "action_suggested", "agent_decision", "created_at",
		}))

	audit := NewAudit(db)
	turns, err := audit.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.NoError(t, mock.ExpectationsWereMet())
}
