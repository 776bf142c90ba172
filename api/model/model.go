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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// CreatePayment is the merchant-facing request to start a payment at the
// gateway. Amount is optional; an empty amount charges the order's amount.
type CreatePayment struct {
	OrderID     int64           `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	RedirectURL string          `json:"redirect_url"`
}

func (p *CreatePayment) ValidateCreatePayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.OrderID, validation.Required, validation.Min(1)),
		validation.Field(&p.Amount, validation.By(nonNegativeAmount(p.Amount))),
		validation.Field(&p.RedirectURL, validation.When(p.RedirectURL != "", is.URL)),
	)
}

func nonNegativeAmount(amount decimal.Decimal) validation.RuleFunc {
	return func(value interface{}) error {
		if amount.IsNegative() {
			return errors.New("amount cannot be negative")
		}
		return nil
	}
}

// RunReconciliation triggers settlement report generation for one date.
type RunReconciliation struct {
	Date string `json:"date"`
}

func (r *RunReconciliation) ValidateRunReconciliation() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Date, validation.Required, validation.By(func(value interface{}) error {
			dateStr, ok := value.(string)
			if !ok {
				return errors.New("invalid type for date")
			}
			if _, err := time.Parse("2006-01-02", dateStr); err != nil {
				return errors.New("please format the date as 'YYYY-MM-DD' (e.g., 2026-08-01)")
			}
			return nil
		})),
	)
}

// ParsedDate returns the validated date.
func (r *RunReconciliation) ParsedDate() time.Time {
	d, _ := time.Parse("2006-01-02", r.Date)
	return d
}

// SendReport requests delivery of a stored report, optionally to an address
// other than the configured one.
type SendReport struct {
	Email string `json:"email"`
}

func (s *SendReport) ValidateSendReport() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Email, validation.When(s.Email != "", is.Email)),
	)
}
