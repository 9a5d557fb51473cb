package response

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateTransaction struct {
	OrderID     string `json:"orderId,omitempty"`
	Token       string `json:"token,omitempty"`
	URL         string `json:"url,omitempty"`
	InitPoint   string `json:"init_point,omitempty"`
	ApprovalURL string `json:"approval_url,omitempty"`
}

type ValidateTransaction struct {
	Status  string          `json:"status"`
	Order   json.RawMessage `json:"order,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Checkout struct {
	ID            uuid.UUID       `json:"id"`
	Storefront    string          `json:"storefront"`
	Provider      string          `json:"provider"`
	Reference     string          `json:"reference"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
