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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/database"
	"github.com/bgaipov/paycore/internal/canonical"
	"github.com/bgaipov/paycore/internal/signature"
)

// testKeys holds the two key pairs of the integration: ours for outbound
// signing, the provider's for inbound verification.
type testKeys struct {
	merchantPrivate string
	merchantPublic  string
	providerPrivate string
	providerPublic  string
}

func generatePEMKeyPair(t *testing.T) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))
	return privatePEM, publicPEM
}

func mockServiceConfig(t *testing.T) testKeys {
	t.Helper()

	merchantPriv, merchantPub := generatePEMKeyPair(t)
	providerPriv, providerPub := generatePEMKeyPair(t)

	config.MockConfig(&config.Configuration{
		ProjectName: "Paycore Test",
		Gateway: config.GatewayConfig{
			BaseURL:              "https://api.gateway.test",
			APIKey:               "test-api-key",
			AccountID:            "acc-123",
			MerchantCategoryCode: "5999",
			QrName:               "Test Merchant",
			WebhookURL:           "https://merchant.test/webhooks/provider",
			RedirectURL:          "https://merchant.test/return",
			PrivateKey:           merchantPriv,
			ProviderPublicKey:    providerPub,
			TimeoutSeconds:       5,
			TimestampSkewMs:      300000,
		},
		Reconciliation: config.ReconciliationConfig{
			Provider:      "optima_bank",
			DeliveryEmail: "settlement@bank.test",
		},
		Mailer: config.MailerConfig{Enabled: false},
	})

	return testKeys{
		merchantPrivate: merchantPriv,
		merchantPublic:  merchantPub,
		providerPrivate: providerPriv,
		providerPublic:  providerPub,
	}
}

func newTestService(t *testing.T) (*Paycore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	service, err := NewPaycore(database.Datasource{Conn: db})
	require.NoError(t, err)
	return service, mock
}

// signedWebhookRequest builds an inbound notification signed the way the
// provider signs: over the canonical form of the exact wire bytes.
func signedWebhookRequest(t *testing.T, keys testKeys, body []byte) *WebhookRequest {
	t.Helper()
	return signedWebhookRequestAt(t, keys, body, strconv.FormatInt(time.Now().UnixMilli(), 10))
}

func signedWebhookRequestAt(t *testing.T, keys testKeys, body []byte, timestamp string) *WebhookRequest {
	t.Helper()

	headers := map[string]string{
		"host":            "merchant.test",
		"x-api-timestamp": timestamp,
	}

	canonicalString := canonical.BuildRequest("POST", "/webhooks/provider", headers, nil, body)
	sig, err := signature.Sign(canonicalString, keys.providerPrivate)
	require.NoError(t, err)

	return &WebhookRequest{
		Method:    "POST",
		Path:      "/webhooks/provider",
		Headers:   headers,
		Body:      body,
		Signature: sig,
		ClientIP:  "203.0.113.7",
	}
}
