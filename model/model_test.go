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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTxnDate(t *testing.T) {
	txn := &ProviderTransaction{TxnDate: "20260801143000"}

	date, ok := txn.FormatTxnDate()
	require.True(t, ok)
	assert.Equal(t, "01.08.2026", date)

	clock, ok := txn.FormatTxnTime()
	require.True(t, ok)
	assert.Equal(t, "14:30:00", clock)
}

func TestFormatTxnDateTooShort(t *testing.T) {
	txn := &ProviderTransaction{TxnDate: "2026"}

	_, ok := txn.FormatTxnDate()
	assert.False(t, ok)
	_, ok = txn.FormatTxnTime()
	assert.False(t, ok)
}

func TestOrderTerminal(t *testing.T) {
	assert.False(t, (&Order{PaymentStatus: PaymentStatusPending}).Terminal())
	assert.True(t, (&Order{PaymentStatus: PaymentStatusPaid}).Terminal())
	assert.True(t, (&Order{PaymentStatus: PaymentStatusFailed}).Terminal())
}

func TestOrderRefFromFields(t *testing.T) {
	var envelope WebhookEnvelope
	err := json.Unmarshal([]byte(`{"transactionId":"t1","status":"SUCCEEDED","fields":{"external_id":"12345"}}`), &envelope)
	require.NoError(t, err)

	id, err := envelope.OrderRef()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), id)
}

func TestOrderRefFromDataAsNumber(t *testing.T) {
	var envelope WebhookEnvelope
	err := json.Unmarshal([]byte(`{"transactionId":"t1","data":{"external_id":777}}`), &envelope)
	require.NoError(t, err)

	id, err := envelope.OrderRef()
	require.NoError(t, err)
	assert.Equal(t, int64(777), id)
}

func TestOrderRefPrefersFields(t *testing.T) {
	var envelope WebhookEnvelope
	err := json.Unmarshal([]byte(`{"fields":{"external_id":"1"},"data":{"external_id":"2"}}`), &envelope)
	require.NoError(t, err)

	id, err := envelope.OrderRef()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestOrderRefMissing(t *testing.T) {
	var envelope WebhookEnvelope
	err := json.Unmarshal([]byte(`{"transactionId":"t1","fields":{"other":"x"}}`), &envelope)
	require.NoError(t, err)

	_, err = envelope.OrderRef()
	assert.ErrorIs(t, err, ErrNoOrderReference)
}

func TestOrderRefUnparseable(t *testing.T) {
	var envelope WebhookEnvelope
	err := json.Unmarshal([]byte(`{"fields":{"external_id":"not-a-number"}}`), &envelope)
	require.NoError(t, err)

	_, err = envelope.OrderRef()
	assert.ErrorIs(t, err, ErrNoOrderReference)
}

func TestReportAttachmentName(t *testing.T) {
	report := &ReconciliationReport{
		ReportDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "reconciliation_20260801.txt", report.AttachmentName())
}
