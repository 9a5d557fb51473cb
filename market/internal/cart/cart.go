package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Alturino/fitclub/market/pkg/request"
)

var (
	ErrUnknownStorefront = errors.New("unknown storefront")
	ErrPriceNotFound     = errors.New("product has no price in currency")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and 99")
)

// MaxQuantity caps the units of a single product in a cart.
const MaxQuantity = 99

type Storefront string

const (
	StorefrontGabriel Storefront = "gabriel"
	StorefrontJose    Storefront = "jose"
)

func ParseStorefront(s string) (Storefront, error) {
	switch sf := Storefront(strings.ToLower(s)); sf {
	case StorefrontGabriel, StorefrontJose:
		return sf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStorefront, s)
	}
}

type Product struct {
	ID     string                     `json:"id"`
	Name   string                     `json:"name"`
	Prices map[string]decimal.Decimal `json:"prices"`
}

func (p Product) PriceIn(currency string) (Price, error) {
	amount, ok := p.Prices[currency]
	if !ok {
		return Price{}, fmt.Errorf("%w: product=%s currency=%s", ErrPriceNotFound, p.ID, currency)
	}
	return Price{Currency: currency, Amount: amount}, nil
}

type Price struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type Item struct {
	Product       Product `json:"product"`
	Quantity      int     `json:"quantity"`
	SelectedPrice Price   `json:"selectedPrice"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.SelectedPrice.Amount.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	Storefront Storefront `json:"storefront"`
	Currency   string     `json:"currency"`
	Items      []Item     `json:"items"`
}

func New(storefront Storefront, currency string) Cart {
	return Cart{Storefront: storefront, Currency: currency, Items: []Item{}}
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

func (c Cart) Count() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// LineItems is the provider-agnostic list sent when creating a transaction.
func (c Cart) LineItems() []request.LineItem {
	items := make([]request.LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, request.LineItem{ProductID: item.Product.ID, Quantity: item.Quantity})
	}
	return items
}

func (c Cart) MarshalZerologObject(e *zerolog.Event) {
	e.Str("storefront", string(c.Storefront)).
		Str("currency", c.Currency).
		Int("items", len(c.Items)).
		Str("total", c.Total().String())
}

func (c Cart) index(productID string) int {
	for i, item := range c.Items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) add(product Product, quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i := c.index(product.ID); i >= 0 {
		if quantity > MaxQuantity-c.Items[i].Quantity {
			return ErrInvalidQuantity
		}
		c.Items[i].Quantity += quantity
		return nil
	}
	price, err := product.PriceIn(c.Currency)
	if err != nil {
		return err
	}
	c.Items = append(c.Items, Item{Product: product, Quantity: quantity, SelectedPrice: price})
	return nil
}

func (c *Cart) update(productID string, quantity int) error {
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%w: product=%s", ErrItemNotFound, productID)
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}
	if quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	c.Items[i].Quantity = quantity
	return nil
}

func (c *Cart) remove(productID string) error {
	return c.update(productID, 0)
}

// setCurrency reprices every item, leaving the cart untouched when any product
// lacks the currency.
func (c *Cart) setCurrency(currency string) error {
	prices := make([]Price, len(c.Items))
	for i, item := range c.Items {
		price, err := item.Product.PriceIn(currency)
		if err != nil {
			return err
		}
		prices[i] = price
	}
	for i := range c.Items {
		c.Items[i].SelectedPrice = prices[i]
	}
	c.Currency = currency
	return nil
}
