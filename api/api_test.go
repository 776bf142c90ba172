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

package api

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgaipov/paycore"
	model2 "github.com/bgaipov/paycore/api/model"
	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/database"
	"github.com/bgaipov/paycore/internal/canonical"
	"github.com/bgaipov/paycore/internal/signature"
	"github.com/bgaipov/paycore/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

type providerKeys struct {
	private string
	public  string
}

func generateKeys(t *testing.T) providerKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	private := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	public := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}))
	return providerKeys{private: private, public: public}
}

func setupRouter(t *testing.T, secure bool) (*gin.Engine, sqlmock.Sqlmock, providerKeys) {
	t.Helper()

	keys := generateKeys(t)
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{Secure: secure, SecretKey: "test-secret"},
		Gateway: config.GatewayConfig{
			BaseURL:           "https://api.gateway.test",
			APIKey:            "test-api-key",
			PrivateKey:        keys.private,
			ProviderPublicKey: keys.public,
			TimeoutSeconds:    5,
			TimestampSkewMs:   300000,
		},
		Reconciliation: config.ReconciliationConfig{
			Provider:      "optima_bank",
			DeliveryEmail: "settlement@bank.test",
		},
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	service, err := paycore.NewPaycore(database.Datasource{Conn: db})
	require.NoError(t, err)

	return NewAPI(service).Router(), mock, keys
}

// signedHeaders produces a signature over the canonical form of the request
// as the test server will see it: httptest sets Host to example.com.
func signedHeaders(t *testing.T, keys providerKeys, body []byte) map[string]string {
	t.Helper()

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	canonicalString := canonical.BuildRequest("POST", "/webhooks/provider", map[string]string{
		"host":            "example.com",
		"x-api-timestamp": timestamp,
	}, nil, body)

	sig, err := signature.Sign(canonicalString, keys.private)
	require.NoError(t, err)

	return map[string]string{
		"x-api-timestamp": timestamp,
		"signature":       sig,
	}
}

func TestProviderWebhookApplied(t *testing.T) {
	router, mock, keys := setupRouter(t, false)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM provider_transactions").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO provider_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "payment_status", "payment_error", "paid_at", "created_at", "updated_at"}).
			AddRow(42, 7, "150.50", model.PaymentStatusPending, nil, nil, now, now))
	mock.ExpectQuery("INSERT INTO ledger_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE provider_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := []byte(`{"transactionId":"txn-100","status":"SUCCEEDED","amount":150.50,"fields":{"external_id":"42"}}`)
	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   signedHeaders(t, keys, body),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "applied", response["outcome"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderWebhookBadSignature(t *testing.T) {
	router, mock, keys := setupRouter(t, false)

	body := []byte(`{"transactionId":"txn-100","status":"SUCCEEDED","amount":150.50,"fields":{"external_id":"42"}}`)
	headers := signedHeaders(t, keys, body)
	headers["signature"] = "bm90LWEtcmVhbC1zaWduYXR1cmU="

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   headers,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderWebhookMalformedBody(t *testing.T) {
	router, mock, keys := setupRouter(t, false)

	body := []byte(`{"broken`)
	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   signedHeaders(t, keys, body),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderWebhookMalformedBodyBadSignature(t *testing.T) {
	router, mock, keys := setupRouter(t, false)

	// a broken payload is a client error even when the signature is garbage
	body := []byte(`{"broken`)
	headers := signedHeaders(t, keys, body)
	headers["signature"] = "bm90LWEtcmVhbC1zaWduYXR1cmU="

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   headers,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderWebhookUnsigned(t *testing.T) {
	router, mock, keys := setupRouter(t, false)

	body := []byte(`{"transactionId":"txn-100","status":"SUCCEEDED","amount":150.50,"fields":{"external_id":"42"}}`)
	headers := signedHeaders(t, keys, body)
	delete(headers, "signature")

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   headers,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentValidation(t *testing.T) {
	router, _, _ := setupRouter(t, false)

	tests := []struct {
		name         string
		payload      model2.CreatePayment
		expectedCode int
	}{
		{
			name:         "Missing Order ID",
			payload:      model2.CreatePayment{},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Bad Redirect URL",
			payload: model2.CreatePayment{
				OrderID:     42,
				RedirectURL: "not a url",
			},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			var response map[string]interface{}
			resp, err := SetUpTestRequest(TestRequest{
				Payload:  bytes.NewReader(payload),
				Router:   router,
				Response: &response,
				Method:   http.MethodPost,
				Route:    "/payments",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestRunReconciliationEndpoint(t *testing.T) {
	router, mock, _ := setupRouter(t, false)

	mock.ExpectQuery("SELECT (.+) FROM provider_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "txn_id", "provider", "operation", "account", "amount", "txn_date", "status", "result_code", "is_duplicate", "is_processed", "created_at", "updated_at"}))
	mock.ExpectQuery("INSERT INTO reconciliation_reports").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	payload, err := json.Marshal(model2.RunReconciliation{Date: "2026-08-01"})
	require.NoError(t, err)

	var response model.ReconciliationReport
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reconciliation/run",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "settlement@bank.test\n\nTotal:\t0\t0.00\n", response.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunReconciliationEndpointBadDate(t *testing.T) {
	router, _, _ := setupRouter(t, false)

	payload, err := json.Marshal(model2.RunReconciliation{Date: "01.08.2026"})
	require.NoError(t, err)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reconciliation/run",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetReportNotFound(t *testing.T) {
	router, mock, _ := setupRouter(t, false)

	mock.ExpectQuery("SELECT (.+) FROM reconciliation_reports").
		WillReturnError(sql.ErrNoRows)

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(nil),
		Router:   router,
		Response: &response,
		Method:   http.MethodGet,
		Route:    "/reconciliation/reports/report_missing",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSendReportEndpoint(t *testing.T) {
	router, mock, _ := setupRouter(t, false)
	now := time.Now()
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM reconciliation_reports").
		WillReturnRows(sqlmock.NewRows([]string{"id", "report_id", "report_date", "generated_at", "content", "payment_count", "total_amount", "status", "email_address", "sent_at", "error_message", "created_at", "updated_at"}).
			AddRow(3, "report_1", date, now, "content", 1, "150.00", model.ReportStatusPending, "settlement@bank.test", nil, nil, now, now))
	mock.ExpectExec("UPDATE reconciliation_reports").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var response model.ReconciliationReport
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(nil),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/reconciliation/reports/report_1/send",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.ReportStatusSent, response.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecretKeyMiddleware(t *testing.T) {
	router, _, _ := setupRouter(t, true)

	payload, err := json.Marshal(model2.CreatePayment{OrderID: 42})
	require.NoError(t, err)

	// merchant routes need the key
	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/payments",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/payments",
		Header:   map[string]string{"X-Paycore-Key": "wrong-secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSecretKeyMiddlewareExemptsWebhooks(t *testing.T) {
	router, mock, keys := setupRouter(t, true)

	// the provider authenticates with its signature; a bad one gets 401 from
	// verification, not from the key check
	body := []byte(`{"transactionId":"txn-100","status":"SUCCEEDED","amount":1}`)
	headers := signedHeaders(t, keys, body)

	mock.ExpectQuery("SELECT (.+) FROM provider_transactions").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO provider_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE provider_transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewReader(body),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/webhooks/provider",
		Header:   headers,
	})
	require.NoError(t, err)

	// reached the webhook handler without X-Paycore-Key; the envelope has no
	// order reference so settlement fails with 404
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
