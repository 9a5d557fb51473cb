package repository

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusCompleted CheckoutStatus = "completed"
	CheckoutStatusFailed    CheckoutStatus = "failed"
)

func (e *CheckoutStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = CheckoutStatus(s)
	case string:
		*e = CheckoutStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for CheckoutStatus: %T", src)
	}
	return nil
}

func (e CheckoutStatus) Value() (driver.Value, error) {
	return string(e), nil
}

type Checkout struct {
	ID            uuid.UUID          `json:"id"`
	SessionID     string             `json:"session_id"`
	Storefront    string             `json:"storefront"`
	Provider      string             `json:"provider"`
	Reference     string             `json:"reference"`
	Total         pgtype.Numeric     `json:"total"`
	Currency      string             `json:"currency"`
	Status        CheckoutStatus     `json:"status"`
	FailureReason pgtype.Text        `json:"failure_reason"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
}
