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

// Package mailer delivers settlement reports over an HTTP mail API.
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/internal/request"
)

// Message is one outbound email. AttachmentContent travels base64-encoded
// on the wire; callers pass it as plain text.
type Message struct {
	To                string
	Subject           string
	Body              string
	AttachmentName    string
	AttachmentContent string
}

// Mailer sends messages. The HTTP implementation is swapped for a fake in
// delivery tests.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// HTTPMailer posts messages to a SendGrid-compatible mail API. When the
// mailer is disabled in config, sends are logged and reported successful so
// non-production environments do not need mail credentials.
type HTTPMailer struct {
	client *http.Client
}

func NewHTTPMailer() *HTTPMailer {
	return &HTTPMailer{client: &http.Client{}}
}

type mailAddress struct {
	Email string `json:"email"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type mailPayload struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
	Attachments      []mailAttachment      `json:"attachments,omitempty"`
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if !conf.Mailer.Enabled || conf.Mailer.APIKey == "" {
		logrus.WithFields(logrus.Fields{
			"to":         msg.To,
			"subject":    msg.Subject,
			"attachment": msg.AttachmentName,
		}).Info("mailer disabled, skipping send")
		return nil
	}

	payload := mailPayload{
		Personalizations: []mailPersonalization{{To: []mailAddress{{Email: msg.To}}}},
		From:             mailAddress{Email: conf.Mailer.FromEmail},
		Subject:          msg.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: msg.Body}},
	}
	if msg.AttachmentContent != "" {
		payload.Attachments = []mailAttachment{{
			Content:     base64.StdEncoding.EncodeToString([]byte(msg.AttachmentContent)),
			Filename:    msg.AttachmentName,
			Type:        "text/plain",
			Disposition: "attachment",
		}}
	}

	body, err := request.ToJsonReq(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Mailer.APIURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conf.Mailer.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending mail")
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diagnostic, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, string(diagnostic))
	}
	return nil
}
