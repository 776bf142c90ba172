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
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore/internal/mailer"
	"github.com/bgaipov/paycore/model"
)

// ErrReportEmptyContent marks a report with no rendered settlement file.
// Sending it would deliver an empty attachment and flag the report sent.
var ErrReportEmptyContent = errors.New("report has no rendered content")

// SendReport delivers a generated report by email. The stored content is
// attached verbatim, so a retry after a failed delivery sends the exact
// bytes the first attempt would have. An already-sent report is a no-op
// unless a different recipient is given.
func (p *Paycore) SendReport(ctx context.Context, reportID, overrideEmail string) (*model.ReconciliationReport, error) {
	report, err := p.datasource.GetReconciliationReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Content == "" {
		return nil, errors.Wrap(ErrReportEmptyContent, reportID)
	}

	email := report.EmailAddress
	if overrideEmail != "" {
		email = overrideEmail
	}

	if report.Status == model.ReportStatusSent && email == report.EmailAddress {
		logrus.WithField("report_id", reportID).Info("report already delivered, skipping")
		return report, nil
	}

	msg := mailer.Message{
		To:                email,
		Subject:           fmt.Sprintf("Settlement reconciliation %s", report.ReportDate.Format("02.01.2006")),
		Body:              fmt.Sprintf("Daily settlement file attached. Payments: %d, total: %s.", report.PaymentCount, report.TotalAmount.StringFixed(2)),
		AttachmentName:    report.AttachmentName(),
		AttachmentContent: report.Content,
	}

	if err := p.mail.Send(ctx, msg); err != nil {
		logrus.WithField("report_id", reportID).Error("report delivery failed: ", err)
		if updateErr := p.datasource.UpdateReportDelivery(ctx, reportID, model.ReportStatusFailed, email, nil, err.Error()); updateErr != nil {
			logrus.Error("failed to record delivery failure: ", updateErr)
		}
		return nil, err
	}

	now := time.Now()
	if err := p.datasource.UpdateReportDelivery(ctx, reportID, model.ReportStatusSent, email, &now, ""); err != nil {
		return nil, err
	}

	report.Status = model.ReportStatusSent
	report.EmailAddress = email
	report.SentAt = &now
	report.ErrorMessage = ""

	logrus.WithFields(logrus.Fields{
		"report_id": reportID,
		"to":        email,
	}).Info("report delivered")
	return report, nil
}

// SendReportWithRetry wraps SendReport in exponential backoff for transient
// mail API failures. Safe to repeat: a delivery that eventually lands makes
// the remaining attempts no-ops.
func (p *Paycore) SendReportWithRetry(ctx context.Context, reportID, overrideEmail string, maxElapsed time.Duration) (*model.ReconciliationReport, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	var report *model.ReconciliationReport
	operation := func() error {
		var err error
		report, err = p.SendReport(ctx, reportID, overrideEmail)
		if errors.Is(err, ErrReportEmptyContent) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return report, nil
}

// RunDailyReconciliation generates and delivers the report for the previous
// calendar day. This is the scheduled entry point; generation and delivery
// stay separately idempotent so a crashed run can be retried whole.
func (p *Paycore) RunDailyReconciliation(ctx context.Context) (*model.ReconciliationReport, error) {
	yesterday := time.Now().AddDate(0, 0, -1)

	report, _, err := p.GenerateReport(ctx, yesterday)
	if err != nil {
		return nil, err
	}
	return p.SendReportWithRetry(ctx, report.ReportID, "", 2*time.Minute)
}
