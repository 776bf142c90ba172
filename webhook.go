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

package paycore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/internal/canonical"
	"github.com/bgaipov/paycore/internal/signature"
	"github.com/bgaipov/paycore/model"
)

// Webhook verification failures. The caller must not apply any state change
// when one of these is returned; they map to 401 at the transport layer.
var (
	ErrMissingSignature = errors.New("webhook signature header missing")
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside accepted window")
)

// ErrMalformedEnvelope marks a request whose body cannot be parsed.
var ErrMalformedEnvelope = errors.New("malformed webhook envelope")

// Webhook processing outcomes.
const (
	OutcomeApplied   = "applied"   // ledger credited, order paid
	OutcomeDuplicate = "duplicate" // redelivery of an already-settled notification
	OutcomeIgnored   = "ignored"   // non-terminal status, no state change
	OutcomeFailed    = "failed"    // provider reported failure, order marked failed
)

// WebhookRequest is the raw inbound notification as received on the wire.
// Body must be the exact bytes the provider sent; re-serializing them breaks
// signature verification.
type WebhookRequest struct {
	Method      string
	Path        string
	Headers     map[string]string
	Query       map[string]string
	Body        []byte
	Signature   string
	ClientIP    string
	ClientAgent string
}

// ProcessingResult summarizes what a webhook delivery did to the system.
type ProcessingResult struct {
	Outcome       string `json:"outcome"`
	TransactionID string `json:"transaction_id"`
	OrderID       int64  `json:"order_id,omitempty"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty"`
}

// ProcessWebhook verifies and settles one provider notification. The body is
// parsed first so a malformed payload is reported as such rather than as a
// signature failure; verification still precedes every read and write, so an
// unverified request leaves no trace. After verification the flow is
// exactly-once by construction; every state change either carries a
// uniqueness constraint or is a conditional transition, so redelivery at any
// point converges to the same final state.
func (p *Paycore) ProcessWebhook(ctx context.Context, req *WebhookRequest) (*ProcessingResult, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var envelope model.WebhookEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	if envelope.TransactionID == "" {
		return nil, errors.Wrap(ErrMalformedEnvelope, "missing transactionId")
	}

	if req.Signature == "" {
		logrus.WithField("client_ip", req.ClientIP).Warn("rejected webhook: no signature header")
		return nil, ErrMissingSignature
	}

	if err := checkTimestampSkew(req.Headers, conf.Gateway.TimestampSkewMs); err != nil {
		logrus.WithField("client_ip", req.ClientIP).Warn("rejected webhook: ", err)
		return nil, err
	}

	canonicalString := canonical.BuildRequest(req.Method, req.Path, req.Headers, req.Query, req.Body)
	if !signature.Verify(canonicalString, req.Signature, conf.Gateway.ProviderPublicKey) {
		logrus.WithField("client_ip", req.ClientIP).Warn("rejected webhook: bad signature")
		return nil, ErrSignatureInvalid
	}

	log := logrus.WithFields(logrus.Fields{
		"txn_id": envelope.TransactionID,
		"status": envelope.Status,
	})

	// non-terminal statuses are acknowledged and dropped; the provider will
	// deliver the terminal one later
	if envelope.Status != model.WebhookStatusSucceeded && envelope.Status != model.WebhookStatusFailed {
		log.Info("ignoring non-terminal webhook status")
		return &ProcessingResult{Outcome: OutcomeIgnored, TransactionID: envelope.TransactionID}, nil
	}

	provider := conf.Reconciliation.Provider

	if existing, err := p.datasource.GetProviderTransaction(ctx, provider, envelope.TransactionID); err == nil {
		return p.handleRedelivery(ctx, existing, &envelope, log)
	}

	txn, err := p.recordWebhookTxn(ctx, provider, &envelope, req)
	if err != nil {
		// lost an insert race: the concurrent delivery owns the transaction
		if existing, getErr := p.datasource.GetProviderTransaction(ctx, provider, envelope.TransactionID); getErr == nil {
			return p.handleRedelivery(ctx, existing, &envelope, log)
		}
		return nil, err
	}

	switch envelope.Status {
	case model.WebhookStatusSucceeded:
		return p.applySettlement(ctx, txn, &envelope, log)
	default:
		return p.applyFailure(ctx, txn, &envelope, log)
	}
}

// handleRedelivery resolves a delivery whose transaction is already on
// record. A processed transaction is a pure duplicate; an unprocessed one
// (an earlier attempt crashed mid-flight) is resumed, which is safe because
// every downstream step is idempotent.
func (p *Paycore) handleRedelivery(ctx context.Context, txn *model.ProviderTransaction, envelope *model.WebhookEnvelope, log *logrus.Entry) (*ProcessingResult, error) {
	if txn.IsProcessed || txn.Status == model.TxnStatusFailed {
		if err := p.datasource.MarkProviderTransactionDuplicate(ctx, txn.Provider, txn.TxnID); err != nil {
			log.Error("failed to flag duplicate delivery: ", err)
		}
		log.Info("duplicate webhook delivery, no state change")
		return &ProcessingResult{
			Outcome:       OutcomeDuplicate,
			TransactionID: txn.TxnID,
			LedgerEntryID: txn.LedgerEntryID,
		}, nil
	}

	log.Info("resuming interrupted webhook settlement")
	if envelope.Status == model.WebhookStatusSucceeded {
		return p.applySettlement(ctx, txn, envelope, log)
	}
	return p.applyFailure(ctx, txn, envelope, log)
}

// applySettlement credits the ledger and transitions the order. The ledger
// entry carries the provider txn id uniqueness, so only the first settlement
// for a transaction creates an entry; everyone else adopts the survivor.
func (p *Paycore) applySettlement(ctx context.Context, txn *model.ProviderTransaction, envelope *model.WebhookEnvelope, log *logrus.Entry) (*ProcessingResult, error) {
	orderID, err := envelope.OrderRef()
	if err != nil {
		p.recordTxnError(ctx, txn, err.Error())
		return nil, err
	}

	order, err := p.datasource.GetOrder(ctx, orderID)
	if err != nil {
		p.recordTxnError(ctx, txn, "order not found")
		return nil, err
	}

	// the provider's own transaction timestamp is the settlement moment;
	// the local clock is only a fallback
	paidAt := time.Now()
	if envelope.TransactionDate > 0 {
		paidAt = time.UnixMilli(envelope.TransactionDate)
	}

	entry, created, err := p.datasource.UpsertLedgerEntry(ctx, &model.LedgerEntry{
		OrderID:       order.ID,
		ProviderTxnID: txn.TxnID,
		Amount:        envelope.Amount,
		Status:        model.EntryStatusCompleted,
		CompletedAt:   &paidAt,
	})
	if err != nil {
		return nil, err
	}

	if created {
		transitioned, err := p.datasource.MarkOrderPaid(ctx, order.ID, paidAt)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			log.WithField("order_id", order.ID).Warn("order already terminal, ledger entry kept for reconciliation")
		}
	}

	if err := p.datasource.MarkProviderTransactionProcessed(ctx, txn.Provider, txn.TxnID, entry.EntryID); err != nil {
		return nil, err
	}

	outcome := OutcomeApplied
	if !created {
		outcome = OutcomeDuplicate
	}
	log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"entry_id": entry.EntryID,
		"outcome":  outcome,
	}).Info("webhook settled")

	return &ProcessingResult{
		Outcome:       outcome,
		TransactionID: txn.TxnID,
		OrderID:       order.ID,
		LedgerEntryID: entry.EntryID,
	}, nil
}

// applyFailure records a provider-reported failure. No ledger entry is
// written; the order transition is conditional so a failure arriving after a
// success cannot un-pay the order.
func (p *Paycore) applyFailure(ctx context.Context, txn *model.ProviderTransaction, envelope *model.WebhookEnvelope, log *logrus.Entry) (*ProcessingResult, error) {
	result := &ProcessingResult{Outcome: OutcomeFailed, TransactionID: txn.TxnID}

	reason := "provider reported FAILED"
	if envelope.ResultCode != 0 {
		code := ResultCode(envelope.ResultCode)
		reason = fmt.Sprintf("provider error %d: %s", envelope.ResultCode, code.Description())
		log = log.WithFields(logrus.Fields{"result_code": envelope.ResultCode, "fatal": code.IsFatal()})
	}

	orderID, err := envelope.OrderRef()
	if err == nil {
		result.OrderID = orderID
		transitioned, err := p.datasource.MarkOrderFailed(ctx, orderID, reason)
		if err != nil {
			return nil, err
		}
		if !transitioned {
			log.WithField("order_id", orderID).Warn("failure notification for terminal order, ignored")
		}
	} else {
		log.Warn("failed webhook without order reference: ", err)
	}

	p.recordTxnError(ctx, txn, reason)
	log.Info("webhook failure recorded")
	return result, nil
}

func (p *Paycore) recordWebhookTxn(ctx context.Context, provider string, envelope *model.WebhookEnvelope, req *WebhookRequest) (*model.ProviderTransaction, error) {
	txnDate := time.Now()
	if envelope.TransactionDate > 0 {
		txnDate = time.UnixMilli(envelope.TransactionDate)
	}

	account := envelope.AccountID
	if orderID, err := envelope.OrderRef(); err == nil {
		account = strconv.FormatInt(orderID, 10)
	}

	status := model.TxnStatusPending
	if envelope.Status == model.WebhookStatusFailed {
		status = model.TxnStatusFailed
	}

	return p.datasource.RecordProviderTransaction(ctx, &model.ProviderTransaction{
		TxnID:       envelope.TransactionID,
		Provider:    provider,
		Operation:   model.OperationWebhook,
		Account:     account,
		Amount:      envelope.Amount,
		TxnDate:     txnDate.Format("20060102150405"),
		Status:      status,
		ResultCode:  envelope.ResultCode,
		RawRequest:  string(req.Body),
		ClientIP:    req.ClientIP,
		ClientAgent: req.ClientAgent,
	})
}

func (p *Paycore) recordTxnError(ctx context.Context, txn *model.ProviderTransaction, reason string) {
	if err := p.datasource.MarkProviderTransactionFailed(ctx, txn.Provider, txn.TxnID, reason); err != nil {
		logrus.WithField("txn_id", txn.TxnID).Error("failed to record transaction error: ", err)
	}
}

// checkTimestampSkew rejects notifications whose x-api-timestamp is too far
// from the local clock. Signed-but-stale requests are the replay vector the
// window closes.
func checkTimestampSkew(headers map[string]string, skewMs int64) error {
	if skewMs <= 0 {
		return nil
	}
	raw, ok := headers["x-api-timestamp"]
	if !ok {
		raw = headers["X-Api-Timestamp"]
	}
	if raw == "" {
		return errors.Wrap(ErrStaleTimestamp, "missing x-api-timestamp")
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.Wrap(ErrStaleTimestamp, "unparseable x-api-timestamp")
	}
	drift := time.Now().UnixMilli() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > skewMs {
		return ErrStaleTimestamp
	}
	return nil
}
