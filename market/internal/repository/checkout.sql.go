package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const findCheckoutsBySession = `-- name: FindCheckoutsBySession :many
SELECT id, session_id, storefront, provider, reference, total, currency, status, failure_reason, created_at, updated_at
FROM checkouts
WHERE session_id = $1 AND storefront = $2
ORDER BY created_at DESC
`

type FindCheckoutsBySessionParams struct {
	SessionID  string `json:"session_id"`
	Storefront string `json:"storefront"`
}

func (q *Queries) FindCheckoutsBySession(c context.Context, arg FindCheckoutsBySessionParams) ([]Checkout, error) {
	rows, err := q.db.Query(c, findCheckoutsBySession, arg.SessionID, arg.Storefront)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Checkout{}
	for rows.Next() {
		var i Checkout
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Storefront,
			&i.Provider,
			&i.Reference,
			&i.Total,
			&i.Currency,
			&i.Status,
			&i.FailureReason,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertCheckout = `-- name: InsertCheckout :one
INSERT INTO checkouts (id, session_id, storefront, provider, reference, total, currency, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, session_id, storefront, provider, reference, total, currency, status, failure_reason, created_at, updated_at
`

type InsertCheckoutParams struct {
	ID         uuid.UUID      `json:"id"`
	SessionID  string         `json:"session_id"`
	Storefront string         `json:"storefront"`
	Provider   string         `json:"provider"`
	Reference  string         `json:"reference"`
	Total      pgtype.Numeric `json:"total"`
	Currency   string         `json:"currency"`
	Status     CheckoutStatus `json:"status"`
}

func (q *Queries) InsertCheckout(c context.Context, arg InsertCheckoutParams) (Checkout, error) {
	row := q.db.QueryRow(c, insertCheckout,
		arg.ID,
		arg.SessionID,
		arg.Storefront,
		arg.Provider,
		arg.Reference,
		arg.Total,
		arg.Currency,
		arg.Status,
	)
	var i Checkout
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Storefront,
		&i.Provider,
		&i.Reference,
		&i.Total,
		&i.Currency,
		&i.Status,
		&i.FailureReason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateLatestCheckoutStatus = `-- name: UpdateLatestCheckoutStatus :execrows
UPDATE checkouts
SET status = $4, failure_reason = $5, updated_at = NOW()
WHERE id = (
    SELECT id FROM checkouts
    WHERE session_id = $1 AND storefront = $2 AND provider = $3 AND status = 'pending'
    ORDER BY created_at DESC
    LIMIT 1
)
`

type UpdateLatestCheckoutStatusParams struct {
	SessionID     string         `json:"session_id"`
	Storefront    string         `json:"storefront"`
	Provider      string         `json:"provider"`
	Status        CheckoutStatus `json:"status"`
	FailureReason pgtype.Text    `json:"failure_reason"`
}

func (q *Queries) UpdateLatestCheckoutStatus(c context.Context, arg UpdateLatestCheckoutStatusParams) (int64, error) {
	result, err := q.db.Exec(c, updateLatestCheckoutStatus,
		arg.SessionID,
		arg.Storefront,
		arg.Provider,
		arg.Status,
		arg.FailureReason,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
