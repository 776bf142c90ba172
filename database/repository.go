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

package database

import (
	"context"
	"time"

	"github.com/bgaipov/paycore/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	providerTransaction // Interface for provider transaction audit records
	order               // Interface for order collaborator lookups and transitions
	ledgerEntry         // Interface for idempotent ledger entry operations
	reconciliation      // Interface for reconciliation report operations
}

// providerTransaction defines methods for the provider transaction audit trail.
type providerTransaction interface {
	RecordProviderTransaction(ctx context.Context, txn *model.ProviderTransaction) (*model.ProviderTransaction, error) // Records a new provider transaction
	GetProviderTransaction(ctx context.Context, provider, txnID string) (*model.ProviderTransaction, error)            // Retrieves a provider transaction by provider and provider-assigned id
	MarkProviderTransactionProcessed(ctx context.Context, provider, txnID, ledgerEntryID string) error                 // Flags a transaction processed and links its ledger entry
	MarkProviderTransactionDuplicate(ctx context.Context, provider, txnID string) error                                // Flags a redelivered transaction
	MarkProviderTransactionFailed(ctx context.Context, provider, txnID, reason string) error                           // Records a processing failure on the audit record
	GetSettledTransactionsByDay(ctx context.Context, provider, day string) ([]*model.ProviderTransaction, error)       // Retrieves settled transactions whose txn_date has the given yyyymmdd prefix
}

// order defines methods for the order collaborator.
type order interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)                  // Retrieves an order by id
	MarkOrderPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error)   // Transitions pending → paid; false when the order was already terminal
	MarkOrderFailed(ctx context.Context, id int64, reason string) (bool, error)    // Transitions pending → failed; false when the order was already terminal
	CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error)     // Creates an order (used by tests and fixtures)
}

// ledgerEntry defines methods for idempotent ledger entries.
type ledgerEntry interface {
	UpsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error) // Inserts an entry keyed by provider txn id; returns the surviving row and whether this call created it
	GetLedgerEntryByProviderTxn(ctx context.Context, providerTxnID string) (*model.LedgerEntry, error) // Retrieves the entry for a provider transaction
}

// reconciliation defines methods for settlement report records.
type reconciliation interface {
	CreateReconciliationReport(ctx context.Context, report *model.ReconciliationReport) (*model.ReconciliationReport, bool, error)    // Inserts a report unless one exists for the date; returns the surviving row and whether this call created it
	GetReconciliationReport(ctx context.Context, reportID string) (*model.ReconciliationReport, error)                                // Retrieves a report by id
	GetReconciliationReportByDate(ctx context.Context, date time.Time) (*model.ReconciliationReport, error)                           // Retrieves a report by calendar date
	ListReconciliationReports(ctx context.Context, from, to *time.Time, status string) ([]*model.ReconciliationReport, error)         // Lists reports filtered by date range and delivery status
	UpdateReportDelivery(ctx context.Context, reportID, status, emailAddress string, sentAt *time.Time, errorMessage string) error    // Records the outcome of a delivery attempt
}
