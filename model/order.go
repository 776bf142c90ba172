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
	"time"

	"github.com/shopspring/decimal"
)

// Order payment statuses. Paid and failed are terminal; the webhook
// processor transitions an order out of pending at most once.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Ledger entry statuses.
const (
	EntryStatusCompleted = "completed"
	EntryStatusFailed    = "failed"
)

// Order is the ledger-side collaborator the payment pipeline settles
// against. Paycore does not own orders; it only looks them up and applies a
// single terminal payment transition.
type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
	PaymentError  string          `json:"payment_error,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Terminal reports whether the order's payment status can no longer change.
func (o *Order) Terminal() bool {
	return o.PaymentStatus == PaymentStatusPaid || o.PaymentStatus == PaymentStatusFailed
}

// LedgerEntry records the financial effect of one settled provider
// transaction. ProviderTxnID carries a uniqueness constraint so redelivered
// webhooks can never credit an order twice.
type LedgerEntry struct {
	ID            int64           `json:"-"`
	EntryID       string          `json:"entry_id"`
	OrderID       int64           `json:"order_id"`
	ProviderTxnID string          `json:"provider_txn_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
