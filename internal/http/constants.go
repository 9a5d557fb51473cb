package http

const (
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderRequestID     = "X-Request-Id"
	HeaderAuthorize     = "Authorization"
	HeaderValueJson     = "application/json"
	HeaderValueHtml     = "text/html; charset=utf-8"
	HeaderValueForm     = "application/x-www-form-urlencoded"
	StatusSuccess       = "success"
	StatusFailed        = "failed"
	AuthorizationBearer = "Bearer "
)
