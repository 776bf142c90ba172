package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bgaipov/paycore/internal/apierror"
	"github.com/bgaipov/paycore/model"
)

const reportColumns = `id, report_id, report_date, generated_at, content, payment_count, total_amount, status, email_address, sent_at, error_message, created_at, updated_at`

// CreateReconciliationReport inserts a report unless one already exists for
// the date. The unique report_date constraint makes the check-then-insert
// atomic: when two scheduler triggers race, one insert is a no-op and both
// callers get the same surviving row. The bool result reports whether this
// call created the row.
func (d Datasource) CreateReconciliationReport(ctx context.Context, report *model.ReconciliationReport) (*model.ReconciliationReport, bool, error) {
	ctx, span := otel.Tracer("ReconciliationReport").Start(ctx, "Saving reconciliation report to db")
	defer span.End()

	if report.ReportID == "" {
		report.ReportID = GenerateUUIDWithSuffix("report")
	}
	if report.Status == "" {
		report.Status = model.ReportStatusPending
	}
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt

	var id int64
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO reconciliation_reports(report_id, report_date, generated_at, content, payment_count, total_amount, status, email_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (report_date) DO NOTHING
		RETURNING id
	`, report.ReportID, report.ReportDate, report.GeneratedAt, report.Content, report.PaymentCount,
		report.TotalAmount, report.Status, report.EmailAddress, report.CreatedAt, report.UpdatedAt).Scan(&id)

	if err == nil {
		report.ID = id
		return report, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record reconciliation report", err)
	}

	existing, err := d.GetReconciliationReportByDate(ctx, report.ReportDate)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (d Datasource) GetReconciliationReport(ctx context.Context, reportID string) (*model.ReconciliationReport, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reconciliation_reports
		WHERE report_id = $1
	`, reportID)

	report, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Reconciliation report '%s' not found", reportID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reconciliation report", err)
	}
	return report, nil
}

func (d Datasource) GetReconciliationReportByDate(ctx context.Context, date time.Time) (*model.ReconciliationReport, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reconciliation_reports
		WHERE report_date = $1
	`, date)

	report, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Reconciliation report for date '%s' not found", date.Format("2006-01-02")), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reconciliation report", err)
	}
	return report, nil
}

func (d Datasource) ListReconciliationReports(ctx context.Context, from, to *time.Time, status string) ([]*model.ReconciliationReport, error) {
	ctx, span := otel.Tracer("ReconciliationReport").Start(ctx, "Listing reconciliation reports")
	defer span.End()

	query := `SELECT ` + reportColumns + ` FROM reconciliation_reports WHERE 1=1`
	var args []interface{}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND report_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND report_date <= $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY report_date DESC, generated_at DESC"

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list reconciliation reports", err)
	}
	defer rows.Close()

	var reports []*model.ReconciliationReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconciliation report", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate reconciliation reports", err)
	}
	return reports, nil
}

// UpdateReportDelivery records the outcome of a delivery attempt. Only
// delivery bookkeeping changes; the rendered content is never touched after
// generation, which is what makes send retries safe.
func (d Datasource) UpdateReportDelivery(ctx context.Context, reportID, status, emailAddress string, sentAt *time.Time, errorMessage string) error {
	ctx, span := otel.Tracer("ReconciliationReport").Start(ctx, "Updating report delivery status")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE reconciliation_reports
		SET status = $2, email_address = $3, sent_at = $4, error_message = $5, updated_at = NOW()
		WHERE report_id = $1
	`, reportID, status, emailAddress, sentAt, errorMessage)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update report delivery", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*model.ReconciliationReport, error) {
	report := &model.ReconciliationReport{}
	var content, emailAddress, errorMessage sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(&report.ID, &report.ReportID, &report.ReportDate, &report.GeneratedAt, &content,
		&report.PaymentCount, &report.TotalAmount, &report.Status, &emailAddress, &sentAt, &errorMessage,
		&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return nil, err
	}
	report.Content = content.String
	report.EmailAddress = emailAddress.String
	report.ErrorMessage = errorMessage.String
	if sentAt.Valid {
		report.SentAt = &sentAt.Time
	}
	return report, nil
}
