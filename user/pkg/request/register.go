package request

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

type Register struct {
	Name     string `validate:"required"       json:"name"`
	Email    string `validate:"required,email" json:"email"`
	Password string `validate:"required,min=6" json:"password"`
	Phone    string `validate:"required"       json:"phone"`
}

func (r Register) MarshalZerologObject(e *zerolog.Event) {
	e.Str("email", r.Email).Str("name", r.Name)
}

func (r Register) MarshalJSON() ([]byte, error) {
	r.Password = "***"
	type R Register
	return json.Marshal(R(r))
}

func (r Register) Body() any {
	type R Register
	return R(r)
}

func (r Register) Login() Login {
	return Login{Email: r.Email, Password: r.Password}
}
