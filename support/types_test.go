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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionValidate(t *testing.T) {
	valid := []ActionType{ActionNone, ActionCancelOrder, ActionRequestReturn, ActionCheckRefund, ActionProcessRefund}
	for _, at := range valid {
		assert.NoError(t, Action{Type: at}.Validate(), string(at))
	}

	err := Action{Type: "ship_order"}.Validate()
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Error(t, Action{}.Validate())
}

func TestActionRequiresApproval(t *testing.T) {
	assert.True(t, Action{Type: ActionCancelOrder}.RequiresApproval())
	assert.True(t, Action{Type: ActionRequestReturn}.RequiresApproval())
	assert.True(t, Action{Type: ActionProcessRefund}.RequiresApproval())
	assert.False(t, Action{Type: ActionNone}.RequiresApproval())
	assert.False(t, Action{Type: ActionCheckRefund}.RequiresApproval())
}

func TestStructuredResponseRoundTrip(t *testing.T) {
	original := StructuredResponse{
		Intent:       "cancel_order",
		ResponseText: "I can help with that, pending agent approval.",
		Actions: []Action{
			{Type: ActionCancelOrder, OrderID: "ORD-1001", Reason: "changed my mind"},
		},
		NeedsEscalation: true,
		Confidence:      0.87,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"response_text"`)
	assert.Contains(t, string(data), `"kb_matches"`)

	var decoded StructuredResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestOrderItemsRoundTrip(t *testing.T) {
	items := []OrderItem{
		{SKU: "TSHIRT-RED", Qty: 1, Price: 29.99},
		{SKU: "MUG-BLUE", Qty: 2, Price: 15.99},
	}

	data, err := json.Marshal(items)
	require.NoError(t, err)

	var decoded []OrderItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, items, decoded)
}
