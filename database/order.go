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

func (d Datasource) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Saving order to db")
	defer span.End()

	if order.PaymentStatus == "" {
		order.PaymentStatus = model.PaymentStatusPending
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	err := d.Conn.QueryRowContext(ctx,
		`INSERT INTO orders(user_id, amount, payment_status, created_at, updated_at) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		order.UserID, order.Amount, order.PaymentStatus, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record order", err)
	}
	return order, nil
}

func (d Datasource) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, user_id, amount, payment_status, payment_error, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	order := &model.Order{}
	var paymentError sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&order.ID, &order.UserID, &order.Amount, &order.PaymentStatus, &paymentError, &paidAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%d' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order", err)
	}

	order.PaymentError = paymentError.String
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return order, nil
}

// MarkOrderPaid transitions a pending order to paid. The WHERE clause keeps
// the transition single-shot: a second call, or a concurrent one, matches
// zero rows and reports false.
func (d Datasource) MarkOrderPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Marking order paid")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $4
	`, id, model.PaymentStatusPaid, paidAt, model.PaymentStatusPending)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark order paid", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read rows affected", err)
	}
	return affected > 0, nil
}

func (d Datasource) MarkOrderFailed(ctx context.Context, id int64, reason string) (bool, error) {
	ctx, span := otel.Tracer("Order").Start(ctx, "Marking order failed")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, payment_error = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $4
	`, id, model.PaymentStatusFailed, reason, model.PaymentStatusPending)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark order failed", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read rows affected", err)
	}
	return affected > 0, nil
}
