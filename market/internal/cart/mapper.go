package cart

import (
	"github.com/Alturino/fitclub/market/pkg/request"
	"github.com/Alturino/fitclub/market/pkg/response"
)

func (c Cart) Response() response.Cart {
	items := make([]response.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, response.CartItem{
			ProductID: item.Product.ID,
			Name:      item.Product.Name,
			Prices:    item.Product.Prices,
			Quantity:  item.Quantity,
			SelectedPrice: response.Price{
				Currency: item.SelectedPrice.Currency,
				Amount:   item.SelectedPrice.Amount,
			},
			Subtotal: item.Subtotal(),
		})
	}
	return response.Cart{
		Storefront: string(c.Storefront),
		Currency:   c.Currency,
		Items:      items,
		Count:      c.Count(),
		Total:      c.Total(),
	}
}

func ProductFromRequest(p request.Product) Product {
	return Product{ID: p.ID, Name: p.Name, Prices: p.Prices}
}
