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
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/model"
)

// GenerateReport builds the settlement file for one calendar day and stores
// it. At most one report exists per date: a second generation call for the
// same date returns the stored report untouched, never a re-render. The
// returned bool reports whether this call generated the report.
func (p *Paycore) GenerateReport(ctx context.Context, date time.Time) (*model.ReconciliationReport, bool, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, false, err
	}

	day := date.Format("20060102")
	txns, err := p.datasource.GetSettledTransactionsByDay(ctx, conf.Reconciliation.Provider, day)
	if err != nil {
		return nil, false, err
	}

	content, count, total := renderSettlementFile(conf.Reconciliation.DeliveryEmail, txns)

	report, created, err := p.datasource.CreateReconciliationReport(ctx, &model.ReconciliationReport{
		ReportDate:   truncateToDate(date),
		GeneratedAt:  time.Now(),
		Content:      content,
		PaymentCount: count,
		TotalAmount:  total,
		EmailAddress: conf.Reconciliation.DeliveryEmail,
	})
	if err != nil {
		return nil, false, err
	}

	logrus.WithFields(logrus.Fields{
		"report_id": report.ReportID,
		"date":      day,
		"payments":  report.PaymentCount,
		"total":     report.TotalAmount.StringFixed(2),
		"generated": created,
	}).Info("reconciliation report ready")

	return report, created, nil
}

// renderSettlementFile produces the bank's fixed text format: the delivery
// address, a blank line, one tab-separated row per settled transaction, and
// a trailer whose count and sum are computed from exactly the rows emitted.
func renderSettlementFile(email string, txns []*model.ProviderTransaction) (string, int, decimal.Decimal) {
	var b strings.Builder
	b.WriteString(email)
	b.WriteString("\n\n")

	count := 0
	total := decimal.Zero
	for _, txn := range txns {
		date, ok := txn.FormatTxnDate()
		if !ok {
			logrus.WithField("txn_id", txn.TxnID).Warn("skipping transaction with malformed timestamp")
			continue
		}
		clock, _ := txn.FormatTxnTime()

		b.WriteString(txn.TxnID)
		b.WriteString("\t")
		b.WriteString(date)
		b.WriteString("\t")
		b.WriteString(clock)
		b.WriteString("\t")
		b.WriteString(txn.Account)
		b.WriteString("\t")
		b.WriteString(txn.Amount.StringFixed(2))
		b.WriteString("\n")

		count++
		total = total.Add(txn.Amount)
	}

	b.WriteString("Total:\t")
	b.WriteString(strconv.Itoa(count))
	b.WriteString("\t")
	b.WriteString(total.StringFixed(2))
	b.WriteString("\n")

	return b.String(), count, total
}

// GetReport returns a stored report by id.
func (p *Paycore) GetReport(ctx context.Context, reportID string) (*model.ReconciliationReport, error) {
	return p.datasource.GetReconciliationReport(ctx, reportID)
}

// ListReports returns stored reports filtered by date range and delivery
// status. Nil bounds and an empty status leave the filter open.
func (p *Paycore) ListReports(ctx context.Context, from, to *time.Time, status string) ([]*model.ReconciliationReport, error) {
	return p.datasource.ListReconciliationReports(ctx, from, to, status)
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
