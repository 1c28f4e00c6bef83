package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, split_index, method, amount, tendered, change_amount, status, processed_by, processed_at, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var i Payment
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.SplitIndex,
		&i.Method,
		&i.Amount,
		&i.Tendered,
		&i.ChangeAmount,
		&i.Status,
		&i.ProcessedBy,
		&i.ProcessedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createPayment = `-- name: CreatePayment :one
INSERT INTO payments (order_id, split_index, method, amount, tendered, change_amount, status, processed_by, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CASE WHEN $7 = 'COMPLETED' THEN now() END)
RETURNING ` + paymentColumns + `
`

type CreatePaymentParams struct {
	OrderID      uuid.UUID      `json:"order_id"`
	SplitIndex   pgtype.Int4    `json:"split_index"`
	Method       pgtype.Text    `json:"method"`
	Amount       pgtype.Numeric `json:"amount"`
	Tendered     pgtype.Numeric `json:"tendered"`
	ChangeAmount pgtype.Numeric `json:"change_amount"`
	Status       string         `json:"status"`
	ProcessedBy  pgtype.UUID    `json:"processed_by"`
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.SplitIndex,
		arg.Method,
		arg.Amount,
		arg.Tendered,
		arg.ChangeAmount,
		arg.Status,
		arg.ProcessedBy,
	))
}

const listPaymentsByOrder = `-- name: ListPaymentsByOrder :many
SELECT ` + paymentColumns + ` FROM payments
WHERE order_id = $1
ORDER BY split_index NULLS FIRST, created_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Payment{}
	for rows.Next() {
		i, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const completePayment = `-- name: CompletePayment :one
UPDATE payments
SET method = $1, tendered = $2, change_amount = $3, processed_by = $4,
    status = 'COMPLETED', processed_at = now()
WHERE id = $5 AND order_id = $6 AND status = 'PENDING'
RETURNING ` + paymentColumns + `
`

type CompletePaymentParams struct {
	Method       pgtype.Text    `json:"method"`
	Tendered     pgtype.Numeric `json:"tendered"`
	ChangeAmount pgtype.Numeric `json:"change_amount"`
	ProcessedBy  pgtype.UUID    `json:"processed_by"`
	ID           uuid.UUID      `json:"id"`
	OrderID      uuid.UUID      `json:"order_id"`
}

func (q *Queries) CompletePayment(ctx context.Context, arg CompletePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, completePayment,
		arg.Method,
		arg.Tendered,
		arg.ChangeAmount,
		arg.ProcessedBy,
		arg.ID,
		arg.OrderID,
	))
}

const deletePendingPayments = `-- name: DeletePendingPayments :exec
DELETE FROM payments WHERE order_id = $1 AND status = 'PENDING'
`

func (q *Queries) DeletePendingPayments(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deletePendingPayments, orderID)
	return err
}
