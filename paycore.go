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
	"time"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/database"
	"github.com/bgaipov/paycore/internal/mailer"
	"github.com/bgaipov/paycore/internal/request"
)

// Paycore is the payment pipeline service: outbound signed payment
// creation, inbound webhook verification and settlement, and daily
// reconciliation against the acquiring bank.
type Paycore struct {
	datasource database.IDataSource
	mail       mailer.Mailer
	gateway    *GatewayClient
}

// NewPaycore initializes the service from the loaded configuration.
func NewPaycore(db database.IDataSource) (*Paycore, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	client := NewGatewayClient(request.NoRedirectClient(time.Duration(configuration.Gateway.TimeoutSeconds) * time.Second))
	return &Paycore{
		datasource: db,
		mail:       mailer.NewHTTPMailer(),
		gateway:    client,
	}, nil
}

// WithMailer swaps the mail transport. Used by tests and by callers that
// deliver reports through something other than the HTTP mail API.
func (p *Paycore) WithMailer(m mailer.Mailer) *Paycore {
	p.mail = m
	return p
}
