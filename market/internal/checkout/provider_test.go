package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/fitclub/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Provider
		expectedErr error
	}{
		{name: "given webpay should parse", input: "webpay", expected: ProviderWebpay},
		{name: "given mixed case mercadopago should parse", input: "MercadoPago", expected: ProviderMercadoPago},
		{name: "given paypal should parse", input: "paypal", expected: ProviderPayPal},
		{name: "given unknown provider should fail", input: "stripe", expectedErr: inErrors.ErrUnknownProvider},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			actual, err := ParseProvider(test.input)
			assert.ErrorIs(t, err, test.expectedErr)
			assert.Equal(t, test.expected, actual)
		})
	}
}

func TestHandoffHTML(t *testing.T) {
	handoff := Handoff{
		Kind:   HandoffFormPost,
		URL:    "https://webpay.test/init?a=1&b=2",
		Fields: map[string]string{"token_ws": `tk"><script>`},
	}

	page, err := handoff.HTML()

	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, `method="POST"`)
	assert.Contains(t, html, `action="https://webpay.test/init?a=1&amp;b=2"`)
	assert.Contains(t, html, `name="token_ws"`)
	assert.NotContains(t, html, `tk"><script>`)
	assert.Contains(t, html, "document.forms[0].submit()")
}
