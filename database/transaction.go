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

func (d Datasource) RecordProviderTransaction(ctx context.Context, txn *model.ProviderTransaction) (*model.ProviderTransaction, error) {
	ctx, span := otel.Tracer("ProviderTransaction").Start(ctx, "Saving provider transaction to db")
	defer span.End()

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	txn.UpdatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx,
		`INSERT INTO provider_transactions(txn_id,provider,operation,account,amount,txn_date,status,result_code,error_message,raw_request,raw_response,client_ip,client_agent,is_duplicate,is_processed,ledger_entry_id,created_at,updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 RETURNING id`,
		txn.TxnID, txn.Provider, txn.Operation, txn.Account, txn.Amount, txn.TxnDate, txn.Status, txn.ResultCode,
		txn.ErrorMessage, txn.RawRequest, txn.RawResponse, txn.ClientIP, txn.ClientAgent,
		txn.IsDuplicate, txn.IsProcessed, txn.LedgerEntryID, txn.CreatedAt, txn.UpdatedAt,
	).Scan(&txn.ID)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record provider transaction", err)
	}

	return txn, nil
}

func (d Datasource) GetProviderTransaction(ctx context.Context, provider, txnID string) (*model.ProviderTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, txn_id, provider, operation, account, amount, txn_date, status, result_code, error_message,
			raw_request, raw_response, client_ip, client_agent, is_duplicate, is_processed, ledger_entry_id,
			created_at, processed_at, updated_at
		FROM provider_transactions
		WHERE provider = $1 AND txn_id = $2
	`, provider, txnID)

	txn := &model.ProviderTransaction{}
	var errorMessage, rawRequest, rawResponse, clientIP, clientAgent, ledgerEntryID sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(&txn.ID, &txn.TxnID, &txn.Provider, &txn.Operation, &txn.Account, &txn.Amount, &txn.TxnDate,
		&txn.Status, &txn.ResultCode, &errorMessage, &rawRequest, &rawResponse, &clientIP, &clientAgent,
		&txn.IsDuplicate, &txn.IsProcessed, &ledgerEntryID, &txn.CreatedAt, &processedAt, &txn.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Provider transaction '%s' not found", txnID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve provider transaction", err)
	}

	txn.ErrorMessage = errorMessage.String
	txn.RawRequest = rawRequest.String
	txn.RawResponse = rawResponse.String
	txn.ClientIP = clientIP.String
	txn.ClientAgent = clientAgent.String
	txn.LedgerEntryID = ledgerEntryID.String
	if processedAt.Valid {
		txn.ProcessedAt = &processedAt.Time
	}

	return txn, nil
}

func (d Datasource) MarkProviderTransactionProcessed(ctx context.Context, provider, txnID, ledgerEntryID string) error {
	ctx, span := otel.Tracer("ProviderTransaction").Start(ctx, "Marking provider transaction processed")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE provider_transactions
		SET status = $4, is_processed = TRUE, ledger_entry_id = $3, processed_at = NOW(), updated_at = NOW()
		WHERE provider = $1 AND txn_id = $2
	`, provider, txnID, ledgerEntryID, model.TxnStatusSuccess)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark provider transaction processed", err)
	}
	return nil
}

func (d Datasource) MarkProviderTransactionDuplicate(ctx context.Context, provider, txnID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE provider_transactions
		SET is_duplicate = TRUE, updated_at = NOW()
		WHERE provider = $1 AND txn_id = $2
	`, provider, txnID)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark provider transaction duplicate", err)
	}
	return nil
}

func (d Datasource) MarkProviderTransactionFailed(ctx context.Context, provider, txnID, reason string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE provider_transactions
		SET status = $3, error_message = $4, updated_at = NOW()
		WHERE provider = $1 AND txn_id = $2
	`, provider, txnID, model.TxnStatusFailed, reason)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark provider transaction failed", err)
	}
	return nil
}

// GetSettledTransactionsByDay selects the transactions that belong in the
// settlement file for one calendar day. Day matching is a raw prefix
// comparison on the fixed-width provider timestamp, as the upstream protocol
// mandates.
func (d Datasource) GetSettledTransactionsByDay(ctx context.Context, provider, day string) ([]*model.ProviderTransaction, error) {
	ctx, span := otel.Tracer("ProviderTransaction").Start(ctx, "Fetching settled transactions by day")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, txn_id, provider, operation, account, amount, txn_date, status, result_code, is_duplicate, is_processed, created_at, updated_at
		FROM provider_transactions
		WHERE provider = $1 AND operation = $2 AND status = $3 AND is_processed = TRUE AND txn_date LIKE $4
		ORDER BY txn_date, created_at
	`, provider, model.OperationPay, model.TxnStatusSuccess, day+"%")
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to query settled transactions", err)
	}
	defer rows.Close()

	var txns []*model.ProviderTransaction
	for rows.Next() {
		txn := &model.ProviderTransaction{}
		err = rows.Scan(&txn.ID, &txn.TxnID, &txn.Provider, &txn.Operation, &txn.Account, &txn.Amount, &txn.TxnDate,
			&txn.Status, &txn.ResultCode, &txn.IsDuplicate, &txn.IsProcessed, &txn.CreatedAt, &txn.UpdatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan settled transaction", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate settled transactions", err)
	}

	return txns, nil
}
