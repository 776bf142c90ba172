/*
Copyright 2024 Paycore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Webhook envelope statuses reported by the provider. Anything else is a
// non-terminal intermediate status and is ignored.
const (
	WebhookStatusSucceeded = "SUCCEEDED"
	WebhookStatusFailed    = "FAILED"
)

// ErrNoOrderReference is returned when neither envelope location yields a
// parseable order id.
var ErrNoOrderReference = errors.New("no external_id in webhook fields or data")

// WebhookEnvelope is the notification body posted by the payment provider.
// Fields and Data are kept raw: providers have shipped the merchant-defined
// attributes under either key, so the order reference is resolved by
// explicit traversal rather than a fixed struct shape.
type WebhookEnvelope struct {
	ID              string           `json:"id,omitempty"`
	TransactionID   string           `json:"transactionId"`
	Status          string           `json:"status"`
	ResultCode      int              `json:"resultCode,omitempty"`
	Amount          decimal.Decimal  `json:"amount"`
	Net             *decimal.Decimal `json:"net,omitempty"`
	AccountID       string           `json:"accountId,omitempty"`
	Fields          json.RawMessage  `json:"fields,omitempty"`
	Data            json.RawMessage  `json:"data,omitempty"`
	RequestDate     int64            `json:"requestDate,omitempty"`
	TransactionDate int64            `json:"transactionDate,omitempty"`
	TransactionType string           `json:"transactionType,omitempty"`
	ReceiptNumber   string           `json:"receiptNumber,omitempty"`
}

// OrderRef extracts the internal order id from fields.external_id, falling
// back to data.external_id. The value may arrive as a JSON string or number.
func (w *WebhookEnvelope) OrderRef() (int64, error) {
	for _, raw := range []json.RawMessage{w.Fields, w.Data} {
		if len(raw) == 0 {
			continue
		}
		if id, ok := externalID(raw); ok {
			return id, nil
		}
	}
	return 0, ErrNoOrderReference
}

func externalID(raw json.RawMessage) (int64, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, false
	}
	v, ok := obj["external_id"]
	if !ok {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		id, err := strconv.ParseInt(s, 10, 64)
		return id, err == nil
	}
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return n, true
	}
	return 0, false
}
