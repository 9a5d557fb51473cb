package checkout

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	inErrors "github.com/Alturino/fitclub/internal/errors"
	"github.com/Alturino/fitclub/market/pkg/response"
)

type Provider string

const (
	ProviderWebpay      Provider = "webpay"
	ProviderMercadoPago Provider = "mercadopago"
	ProviderPayPal      Provider = "paypal"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderWebpay, ProviderMercadoPago, ProviderPayPal:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", inErrors.ErrUnknownProvider, s)
	}
}

type HandoffKind string

const (
	HandoffFormPost HandoffKind = "form_post"
	HandoffRedirect HandoffKind = "redirect"
)

// Handoff is where control leaves the gateway for the payment provider.
type Handoff struct {
	Kind   HandoffKind       `json:"kind"`
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields,omitempty"`
}

var formPage = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html lang="es">
<head><meta charset="utf-8"><title>Redirigiendo al pago</title></head>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.URL}}">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}">
{{- end}}
<noscript><button type="submit">Continuar al pago</button></noscript>
</form>
</body>
</html>
`))

// HTML renders a page that submits the hand-off form as soon as it loads.
func (h Handoff) HTML() ([]byte, error) {
	buf := bytes.Buffer{}
	if err := formPage.Execute(&buf, h); err != nil {
		return nil, fmt.Errorf("failed rendering hand-off form with error=%w", err)
	}
	return buf.Bytes(), nil
}

// Strategy is what each provider does differently: how the buyer is handed
// off and which callback parameters prove the payment.
type Strategy interface {
	Handoff(res response.CreateTransaction) (Handoff, error)
	CallbackParams(query url.Values) (map[string]string, error)
}

var strategies = map[Provider]Strategy{
	ProviderWebpay:      webpay{},
	ProviderMercadoPago: mercadoPago{},
	ProviderPayPal:      payPal{},
}

func (p Provider) Strategy() Strategy {
	return strategies[p]
}

// webpay needs a form POST of token_ws, a GET navigation is rejected by the
// provider.
type webpay struct{}

func (webpay) Handoff(res response.CreateTransaction) (Handoff, error) {
	if res.URL == "" || res.Token == "" {
		return Handoff{}, fmt.Errorf("%w: webpay requires url and token", ErrInvalidHandoff)
	}
	return Handoff{
		Kind:   HandoffFormPost,
		URL:    res.URL,
		Fields: map[string]string{"token_ws": res.Token},
	}, nil
}

func (webpay) CallbackParams(query url.Values) (map[string]string, error) {
	token := query.Get("token_ws")
	switch {
	case token != "":
		return map[string]string{"token_ws": token}, nil
	case query.Has("TBK_TOKEN"):
		return nil, ErrTransactionCancelled
	case query.Has("TBK_ORDEN_COMPRA"):
		return nil, ErrTransactionExpired
	default:
		return nil, fmt.Errorf("%w: token_ws", ErrMissingParameters)
	}
}

type mercadoPago struct{}

func (mercadoPago) Handoff(res response.CreateTransaction) (Handoff, error) {
	target := res.InitPoint
	if target == "" {
		target = res.URL
	}
	if target == "" {
		return Handoff{}, fmt.Errorf("%w: mercadopago requires init_point", ErrInvalidHandoff)
	}
	return Handoff{Kind: HandoffRedirect, URL: target}, nil
}

func (mercadoPago) CallbackParams(query url.Values) (map[string]string, error) {
	paymentID, status := query.Get("payment_id"), query.Get("status")
	if paymentID == "" || status == "" {
		return nil, fmt.Errorf("%w: payment_id and status", ErrMissingParameters)
	}
	params := map[string]string{"payment_id": paymentID, "status": status}
	if ref := query.Get("external_reference"); ref != "" {
		params["external_reference"] = ref
	}
	return params, nil
}

type payPal struct{}

func (payPal) Handoff(res response.CreateTransaction) (Handoff, error) {
	target := res.ApprovalURL
	if target == "" {
		target = res.URL
	}
	if target == "" {
		return Handoff{}, fmt.Errorf("%w: paypal requires approval_url", ErrInvalidHandoff)
	}
	return Handoff{Kind: HandoffRedirect, URL: target}, nil
}

func (payPal) CallbackParams(query url.Values) (map[string]string, error) {
	token := query.Get("token")
	if token == "" {
		return nil, fmt.Errorf("%w: token", ErrMissingParameters)
	}
	return map[string]string{"token": token}, nil
}
