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

// Reconciliation report delivery statuses.
const (
	ReportStatusPending = "pending"
	ReportStatusSent    = "sent"
	ReportStatusFailed  = "failed"
)

// ReconciliationReport holds one generated settlement file. There is at most
// one report per calendar date; PaymentCount and TotalAmount must equal the
// aggregation of the lines rendered into Content.
type ReconciliationReport struct {
	ID           int64           `json:"-"`
	ReportID     string          `json:"report_id"`
	ReportDate   time.Time       `json:"report_date"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Content      string          `json:"content,omitempty"`
	PaymentCount int             `json:"payment_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       string          `json:"status"`
	EmailAddress string          `json:"email_address,omitempty"`
	SentAt       *time.Time      `json:"sent_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AttachmentName is the file name the receiving bank's automated matching
// expects for this report's settlement file.
func (r *ReconciliationReport) AttachmentName() string {
	return "reconciliation_" + r.ReportDate.Format("20060102") + ".txt"
}
