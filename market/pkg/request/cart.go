package request

import "github.com/shopspring/decimal"

type Product struct {
	ID     string                     `validate:"required"       json:"id"`
	Name   string                     `validate:"required"       json:"name"`
	Prices map[string]decimal.Decimal `validate:"required,min=1" json:"prices"`
}

type AddCartItem struct {
	Product  Product `validate:"required"                 json:"product"`
	Quantity int     `validate:"required,gte=1,lte=99"    json:"quantity"`
	Currency string  `validate:"omitempty,len=3,alpha"    json:"currency"`
}

// UpdateCartItem sets the quantity of an item; zero or less removes it.
type UpdateCartItem struct {
	Quantity int `validate:"lte=99" json:"quantity"`
}

type SetCurrency struct {
	Currency string `validate:"required,len=3,alpha" json:"currency"`
}
