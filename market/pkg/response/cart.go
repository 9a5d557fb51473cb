package response

import "github.com/shopspring/decimal"

type Price struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type CartItem struct {
	ProductID     string                     `json:"productId"`
	Name          string                     `json:"name"`
	Prices        map[string]decimal.Decimal `json:"prices"`
	Quantity      int                        `json:"quantity"`
	SelectedPrice Price                      `json:"selectedPrice"`
	Subtotal      decimal.Decimal            `json:"subtotal"`
}

type Cart struct {
	Storefront string          `json:"storefront"`
	Currency   string          `json:"currency"`
	Items      []CartItem      `json:"items"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}
