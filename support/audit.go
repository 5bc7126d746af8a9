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
	"strings"
)

const defaultAuditLimit = 50

// Audit is the append-only conversation trail. Customer emails are masked
// before storage; the original address never reaches the table.
type Audit struct {
	db *sql.DB
}

// NewAudit creates an audit log over db.
func NewAudit(db *sql.DB) *Audit {
	return &Audit{db: db}
}

// MaskEmail masks the local part of an email address. Locals of one or two
// characters keep only the first character; longer locals keep the first and
// last. Strings without an @ are returned unchanged.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + domain
}

// Append records one conversation turn. The turn's email is masked here,
// irreversibly.
func (a *Audit) Append(ctx context.Context, turn *ConversationTurn) error {
	if turn.Messages == nil {
		turn.Messages = []Message{}
	}
	messagesJSON, err := json.Marshal(turn.Messages)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	respJSON, err := json.Marshal(turn.Response)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	var actionsJSON []byte
	if turn.ActionSuggested != nil {
		actionsJSON, err = json.Marshal(turn.ActionSuggested)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	err = a.db.QueryRowContext(ctx, `
		INSERT INTO conversations (session_id, user_email, messages, response, provider, action_suggested)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		turn.SessionID, MaskEmail(turn.UserEmail), messagesJSON, respJSON, turn.Provider, actionsJSON,
	).Scan(&turn.ID, &turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	turn.UserEmail = MaskEmail(turn.UserEmail)
	return nil
}

// Recent returns the most recent turns, newest first. limit <= 0 uses the
// default of 50.
func (a *Audit) Recent(ctx context.Context, limit int) ([]*ConversationTurn, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, session_id, user_email, messages, response, provider, action_suggested, agent_decision, created_at
		FROM conversations
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*ConversationTurn
	for rows.Next() {
		var (
			turn        ConversationTurn
			messagesRaw []byte
			respRaw     []byte
			actionsRaw  []byte
			decision    sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.UserEmail, &messagesRaw,
			&respRaw, &turn.Provider, &actionsRaw, &decision, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if err := json.Unmarshal(messagesRaw, &turn.Messages); err != nil {
			return nil, fmt.Errorf("%w: corrupt messages for conversation %d: %v", ErrPersistence, turn.ID, err)
		}
		if len(respRaw) > 0 {
			var resp StructuredResponse
			if err := json.Unmarshal(respRaw, &resp); err == nil {
				turn.Response = &resp
			}
		}
		if len(actionsRaw) > 0 {
			if err := json.Unmarshal(actionsRaw, &turn.ActionSuggested); err != nil {
				return nil, fmt.Errorf("%w: corrupt actions for conversation %d: %v", ErrPersistence, turn.ID, err)
			}
		}
		turn.AgentDecision = decision.String
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return turns, nil
}

// attachDecision stamps the agent decision on every turn of a session. Runs
// inside the resolution transaction.
func attachDecision(ctx context.Context, q querier, sessionID, decision string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE conversations SET agent_decision = $1 WHERE session_id = $2`,
		decision, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
