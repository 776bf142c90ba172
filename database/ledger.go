package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bgaipov/paycore/internal/apierror"
	"github.com/bgaipov/paycore/model"
)

// UpsertLedgerEntry inserts a ledger entry keyed by provider transaction id.
// On conflict the insert is a no-op and the existing row is returned, so a
// redelivered webhook can never produce a second entry. The bool result
// reports whether this call created the row.
func (d Datasource) UpsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error) {
	ctx, span := otel.Tracer("LedgerEntry").Start(ctx, "Upserting ledger entry")
	defer span.End()

	if entry.EntryID == "" {
		entry.EntryID = GenerateUUIDWithSuffix("entry")
	}
	entry.CreatedAt = time.Now()

	var id int64
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO ledger_entries(entry_id, order_id, provider_txn_id, amount, status, description, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (provider_txn_id) DO NOTHING
		RETURNING id
	`, entry.EntryID, entry.OrderID, entry.ProviderTxnID, entry.Amount, entry.Status, entry.Description, entry.CreatedAt, entry.CompletedAt).Scan(&id)

	if err == nil {
		entry.ID = id
		return entry, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert ledger entry", err)
	}

	// lost the race or redelivery: the surviving row is authoritative
	existing, err := d.GetLedgerEntryByProviderTxn(ctx, entry.ProviderTxnID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (d Datasource) GetLedgerEntryByProviderTxn(ctx context.Context, providerTxnID string) (*model.LedgerEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, entry_id, order_id, provider_txn_id, amount, status, description, created_at, completed_at
		FROM ledger_entries
		WHERE provider_txn_id = $1
	`, providerTxnID)

	entry := &model.LedgerEntry{}
	var description sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&entry.ID, &entry.EntryID, &entry.OrderID, &entry.ProviderTxnID, &entry.Amount, &entry.Status, &description, &entry.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Ledger entry for provider transaction '%s' not found", providerTxnID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entry", err)
	}

	entry.Description = description.String
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return entry, nil
}
