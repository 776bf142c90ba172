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

// Operation kinds recorded against a payment provider.
const (
	OperationCheck         = "check"
	OperationPay           = "pay"
	OperationPaymentCreate = "payment_create"
	OperationWebhook       = "webhook"
)

// Provider transaction statuses.
const (
	TxnStatusPending = "pending"
	TxnStatusSuccess = "success"
	TxnStatusFailed  = "failed"
)

// ProviderTransaction is the audit record for one interaction with a payment
// provider. TxnID is assigned by the provider and is unique per provider; a
// transaction that has IsProcessed set must never be applied to the ledger
// again.
type ProviderTransaction struct {
	ID            int64           `json:"-"`
	TxnID         string          `json:"txn_id"`
	Provider      string          `json:"provider"`
	Operation     string          `json:"operation"`
	Account       string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	TxnDate       string          `json:"txn_date"` // fixed-width yyyymmddhhmmss, provider clock
	Status        string          `json:"status"`
	ResultCode    int             `json:"result_code"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RawRequest    string          `json:"raw_request,omitempty"`
	RawResponse   string          `json:"raw_response,omitempty"`
	ClientIP      string          `json:"client_ip,omitempty"`
	ClientAgent   string          `json:"client_agent,omitempty"`
	IsDuplicate   bool            `json:"is_duplicate"`
	IsProcessed   bool            `json:"is_processed"`
	LedgerEntryID string          `json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// FormatTxnDate slices the fixed-width provider timestamp into the
// dd.mm.yyyy form used by the settlement file. Returns false if the
// timestamp is too short to slice.
func (t *ProviderTransaction) FormatTxnDate() (string, bool) {
	if len(t.TxnDate) < 14 {
		return "", false
	}
	return t.TxnDate[6:8] + "." + t.TxnDate[4:6] + "." + t.TxnDate[0:4], true
}

// FormatTxnTime slices the hh:mm:ss portion of the provider timestamp.
func (t *ProviderTransaction) FormatTxnTime() (string, bool) {
	if len(t.TxnDate) < 14 {
		return "", false
	}
	return t.TxnDate[8:10] + ":" + t.TxnDate[10:12] + ":" + t.TxnDate[12:14], true
}
