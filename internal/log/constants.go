package log

const (
	KeyAppName            = "app"
	KeyRequestID          = "requestId"
	KeySessionID          = "sessionId"
	KeyProcess            = "process"
	KeyTag                = "tag"
	KeyEmail              = "email"
	KeyConfig             = "config"
	KeyRequest            = "request"
	KeyRequestBody        = "requestBody"
	KeyRequestHeader      = "requestHeader"
	KeyRequestHost        = "host"
	KeyRequestIp          = "requesterIP"
	KeyRequestMethod      = "requestMethod"
	KeyRequestURI         = "requestURI"
	KeyRequestURL         = "requestURL"
	KeyResponseStatusCode = "responseStatusCode"
	KeyTraceID            = "traceId"
	KeySpanID             = "spanId"
	KeyCacheKey           = "cacheKey"
	KeySessionState       = "sessionState"
	KeyTokenExpiresAt     = "tokenExpiresAt"
	KeyStorefront         = "storefront"
	KeyProvider           = "provider"
	KeyProductID          = "productId"
	KeyQuantity           = "quantity"
	KeyCurrency           = "currency"
	KeyCart               = "cart"
	KeyCartTotal          = "cartTotal"
	KeyCartItemsCount     = "cartItemsCount"
	KeyLineItems          = "lineItems"
	KeyGuest              = "guest"
	KeyHandoff            = "handoff"
	KeyCallbackParams     = "callbackParams"
	KeyOutcome            = "outcome"
	KeyCheckoutID         = "checkoutId"
	KeyDbURL              = "dbUrl"
	KeyEndpoint           = "endpoint"
	KeyChannelID          = "channelId"
)
