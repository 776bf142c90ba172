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
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgaipov/paycore/internal/canonical"
	"github.com/bgaipov/paycore/internal/request"
	"github.com/bgaipov/paycore/internal/signature"
)

func fixedGatewayClient(client *http.Client, at time.Time, paymentID string) *GatewayClient {
	g := NewGatewayClient(client)
	g.now = func() time.Time { return at }
	g.newID = func() string { return paymentID }
	return g
}

func TestBuildPaymentRequestSignsExactBody(t *testing.T) {
	keys := mockServiceConfig(t)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := fixedGatewayClient(&http.Client{}, at, "pay-fixed-id")

	req, paymentID, err := g.BuildPaymentRequest(context.Background(), CreatePaymentInput{
		Amount:      decimal.NewFromFloat(150.50),
		Description: "Order #42 payment",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-fixed-id", paymentID)

	sentBody, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	// the signature must verify over the exact bytes on the wire
	headers := map[string]string{
		"host":            "api.gateway.test",
		"x-api-key":       "test-api-key",
		"x-api-timestamp": strconv.FormatInt(at.UnixMilli(), 10),
	}
	canonicalString := canonical.BuildRequest("POST", "/v1/payment", headers, nil, sentBody)
	assert.True(t, signature.Verify(canonicalString, req.Header.Get("signature"), keys.merchantPublic))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(sentBody, &body))
	assert.Equal(t, "FINIK_QR", body["CardType"])
	assert.Equal(t, "pay-fixed-id", body["PaymentId"])
	assert.Equal(t, "https://merchant.test/return", body["RedirectUrl"])

	data, ok := body["Data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acc-123", data["accountId"])
	assert.Equal(t, "Test Merchant", data["name_en"])
	assert.EqualValues(t, at.UnixMilli(), data["startDate"])
	assert.EqualValues(t, at.Add(24*time.Hour).UnixMilli(), data["endDate"])
}

func TestBuildPaymentRequestSignatureBreaksOnBodyChange(t *testing.T) {
	keys := mockServiceConfig(t)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := fixedGatewayClient(&http.Client{}, at, "pay-fixed-id")

	req, _, err := g.BuildPaymentRequest(context.Background(), CreatePaymentInput{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	sentBody, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	tampered := append([]byte{}, sentBody...)
	tampered[len(tampered)-2] ^= 0x01

	headers := map[string]string{
		"host":            "api.gateway.test",
		"x-api-key":       "test-api-key",
		"x-api-timestamp": strconv.FormatInt(at.UnixMilli(), 10),
	}
	canonicalString := canonical.BuildRequest("POST", "/v1/payment", headers, nil, tampered)
	assert.False(t, signature.Verify(canonicalString, req.Header.Get("signature"), keys.merchantPublic))
}

func TestCreatePaymentFollowsRedirect(t *testing.T) {
	mockServiceConfig(t)

	client := request.NoRedirectClient(5 * time.Second)
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/v1/payment",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusFound, "")
			resp.Header.Set("Location", "https://pay.gateway.test/qr/abc123")
			return resp, nil
		})

	g := NewGatewayClient(client)
	created, err := g.CreatePayment(context.Background(), CreatePaymentInput{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.gateway.test/qr/abc123", created.PaymentURL)
	assert.NotEmpty(t, created.PaymentID)
}

func TestCreatePaymentRejected(t *testing.T) {
	mockServiceConfig(t)

	client := request.NoRedirectClient(5 * time.Second)
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/v1/payment",
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"error":"amount too small"}`))

	g := NewGatewayClient(client)
	_, err := g.CreatePayment(context.Background(), CreatePaymentInput{Amount: decimal.NewFromInt(1)})
	require.Error(t, err)

	var rejected ErrGatewayRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.StatusCode)
	assert.Contains(t, rejected.Body, "amount too small")
}

func TestCreatePaymentRedirectWithoutLocation(t *testing.T) {
	mockServiceConfig(t)

	client := request.NoRedirectClient(5 * time.Second)
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/v1/payment",
		httpmock.NewStringResponder(http.StatusFound, ""))

	g := NewGatewayClient(client)
	_, err := g.CreatePayment(context.Background(), CreatePaymentInput{Amount: decimal.NewFromInt(100)})
	assert.Error(t, err)
}
