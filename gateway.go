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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/internal/canonical"
	"github.com/bgaipov/paycore/internal/signature"
	"github.com/bgaipov/paycore/model"
)

// CardType identifying a QR-based charge, fixed by the gateway contract.
const cardTypeQR = "FINIK_QR"

// paymentPath is the gateway's payment creation endpoint.
const paymentPath = "/v1/payment"

// paymentValidity is the window between startDate and endDate on the
// outbound request.
const paymentValidity = 24 * time.Hour

// ErrGatewayRejected is returned when the gateway answers a payment
// creation with anything but a redirect. The body is diagnostic text only.
type ErrGatewayRejected struct {
	StatusCode int
	Body       string
}

func (e ErrGatewayRejected) Error() string {
	return fmt.Sprintf("gateway rejected payment creation: status %d: %s", e.StatusCode, e.Body)
}

// ErrGatewayTimeout distinguishes a timed-out call so the caller's retry
// policy can treat it separately from a rejection.
var ErrGatewayTimeout = errors.New("gateway request timed out")

// CreatePaymentInput is what the caller supplies; everything else comes
// from configuration.
type CreatePaymentInput struct {
	Amount      decimal.Decimal
	Description string
	RedirectURL string // optional, falls back to the configured default
}

// CreatedPayment is the success result of a payment creation: the id we
// generated and the URL the payer must be redirected to.
type CreatedPayment struct {
	PaymentID  string
	PaymentURL string
}

type paymentBody struct {
	Amount      decimal.Decimal `json:"Amount"`
	CardType    string          `json:"CardType"`
	PaymentID   string          `json:"PaymentId"`
	RedirectURL string          `json:"RedirectUrl"`
	Data        paymentData     `json:"Data"`
}

type paymentData struct {
	AccountID            string `json:"accountId"`
	MerchantCategoryCode string `json:"merchantCategoryCode"`
	NameEn               string `json:"name_en"`
	WebhookURL           string `json:"webhookUrl,omitempty"`
	Description          string `json:"description,omitempty"`
	StartDate            int64  `json:"startDate"`
	EndDate              int64  `json:"endDate"`
}

// GatewayClient creates payments against the acquiring gateway. A single
// attempt moves Built → Signed → Sent → Redirected or Rejected; nothing is
// persisted here, so an abandoned attempt has no side effects.
type GatewayClient struct {
	client *http.Client
	now    func() time.Time
	newID  func() string
}

func NewGatewayClient(client *http.Client) *GatewayClient {
	return &GatewayClient{
		client: client,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// BuildPaymentRequest assembles, serializes and signs a payment creation
// request. The returned *http.Request carries the exact bytes that were
// signed: the body is serialized once and reused, because signing a
// different serialization than what is sent is unverifiable on the other
// side.
func (g *GatewayClient) BuildPaymentRequest(ctx context.Context, input CreatePaymentInput) (*http.Request, string, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, "", err
	}

	paymentID := g.newID()
	now := g.now()

	redirectURL := input.RedirectURL
	if redirectURL == "" {
		redirectURL = conf.Gateway.RedirectURL
	}

	body := paymentBody{
		Amount:      input.Amount,
		CardType:    cardTypeQR,
		PaymentID:   paymentID,
		RedirectURL: redirectURL,
		Data: paymentData{
			AccountID:            conf.Gateway.AccountID,
			MerchantCategoryCode: conf.Gateway.MerchantCategoryCode,
			NameEn:               conf.Gateway.QrName,
			WebhookURL:           conf.Gateway.WebhookURL,
			Description:          input.Description,
			StartDate:            now.UnixMilli(),
			EndDate:              now.Add(paymentValidity).UnixMilli(),
		},
	}

	// serialize once; these bytes are both signed and transmitted
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshaling payment body")
	}

	base, err := url.Parse(conf.Gateway.BaseURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "parsing gateway base url")
	}

	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	headers := map[string]string{
		"host":            base.Host,
		"x-api-key":       conf.Gateway.APIKey,
		"x-api-timestamp": timestamp,
	}

	canonicalString := canonical.BuildRequest(http.MethodPost, paymentPath, headers, nil, payload)
	sig, err := signature.Sign(canonicalString, conf.Gateway.PrivateKey)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath(paymentPath).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", conf.Gateway.APIKey)
	req.Header.Set("x-api-timestamp", timestamp)
	req.Header.Set("signature", sig)

	return req, paymentID, nil
}

// CreatePayment sends a signed payment creation request. The gateway's
// success answer is a 3xx whose Location header is the payment URL. Any
// other status is a rejection carrying the provider's diagnostics. Nothing
// is retried here; retry policy belongs to the caller.
func (g *GatewayClient) CreatePayment(ctx context.Context, input CreatePaymentInput) (*CreatedPayment, error) {
	req, paymentID, err := g.BuildPaymentRequest(ctx, input)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"amount":     input.Amount.String(),
	}).Info("creating gateway payment")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrGatewayTimeout
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, ErrGatewayTimeout
		}
		return nil, errors.Wrap(err, "sending payment creation")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, errors.New("gateway redirect without Location header")
		}
		logrus.WithFields(logrus.Fields{
			"payment_id": paymentID,
			"status":     resp.StatusCode,
		}).Info("gateway payment created")
		return &CreatedPayment{PaymentID: paymentID, PaymentURL: location}, nil
	}

	diagnostic, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	logrus.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"status":     resp.StatusCode,
	}).Error("gateway rejected payment creation")
	return nil, ErrGatewayRejected{StatusCode: resp.StatusCode, Body: string(diagnostic)}
}

// CreatePayment is the service-level entry point: it creates the payment at
// the gateway and records the audit transaction. Persistence failures after
// a successful gateway call are reported but do not undo the creation.
func (p *Paycore) CreatePayment(ctx context.Context, orderID int64, input CreatePaymentInput) (*CreatedPayment, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	order, err := p.datasource.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if input.Amount.IsZero() {
		input.Amount = order.Amount
	}
	if input.Description == "" {
		input.Description = fmt.Sprintf("Order #%d payment", orderID)
	}

	created, err := p.gateway.CreatePayment(ctx, input)
	if err != nil {
		return nil, err
	}

	txn := &model.ProviderTransaction{
		TxnID:     created.PaymentID,
		Provider:  conf.Reconciliation.Provider,
		Operation: model.OperationPaymentCreate,
		Account:   strconv.FormatInt(order.ID, 10),
		Amount:    input.Amount,
		TxnDate:   p.gateway.now().Format("20060102150405"),
		Status:    model.TxnStatusPending,
	}
	if _, err := p.datasource.RecordProviderTransaction(ctx, txn); err != nil {
		logrus.WithField("payment_id", created.PaymentID).Error("failed to record payment creation audit: ", err)
	}

	return created, nil
}
