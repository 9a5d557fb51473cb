package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/Alturino/fitclub/market/pkg/response"
)

func (c Checkout) Response() response.Checkout {
	return response.Checkout{
		ID:            c.ID,
		Storefront:    c.Storefront,
		Provider:      c.Provider,
		Reference:     c.Reference,
		Total:         decimal.NewFromBigInt(c.Total.Int, c.Total.Exp),
		Currency:      c.Currency,
		Status:        string(c.Status),
		FailureReason: c.FailureReason.String,
		CreatedAt:     c.CreatedAt.Time,
		UpdatedAt:     c.UpdatedAt.Time,
	}
}

func Numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              d.Coefficient(),
		Exp:              d.Exponent(),
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
