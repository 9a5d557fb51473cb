package request

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

type Checkout struct {
	Method string    `validate:"required,oneof=webpay mercadopago paypal" json:"method"`
	Guest  GuestData `                                                    json:"guest"`
}

type GuestData struct {
	Name           string `validate:"omitempty,max=120"   json:"name"`
	Email          string `validate:"omitempty,email"     json:"email"`
	Password       string `validate:"omitempty,min=6"     json:"password,omitempty"`
	Phone          string `validate:"omitempty,min=8,max=20" json:"phone,omitempty"`
	ShouldRegister bool   `                               json:"shouldRegister"`
}

func (g GuestData) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", g.Name).
		Str("email", g.Email).
		Bool("hasPassword", g.Password != "").
		Bool("hasPhone", g.Phone != "").
		Bool("shouldRegister", g.ShouldRegister)
}

func (g GuestData) MarshalJSON() ([]byte, error) {
	if g.Password != "" {
		g.Password = "***"
	}
	type G GuestData
	return json.Marshal(G(g))
}

// CanRegister reports whether the guest asked for an account and supplied
// everything registration needs.
func (g GuestData) CanRegister() bool {
	return g.ShouldRegister && g.Password != "" && g.Phone != ""
}

func (g GuestData) Details() *GuestDetails {
	if g.Name == "" && g.Email == "" {
		return nil
	}
	return &GuestDetails{Name: g.Name, Email: g.Email}
}

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type GuestDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreateTransaction struct {
	Items        []LineItem    `json:"items"`
	GuestDetails *GuestDetails `json:"guestDetails,omitempty"`
}
