package constants

const (
	APP_FITCLUB         = "fitclub"
	APP_GATEWAY         = "fitclub-gateway"
	APP_MIGRATION       = "fitclub-migration"
	APP_SESSION_MANAGER = "session-manager"
	APP_BACKEND_CLIENT  = "backend-client"
	APP_MARKET          = "market"
	APP_CLUB            = "club"
	APP_USER            = "user"
)

const (
	LOGIN_PATH = "/login"
)

const (
	// ROUTE_PAYMENT_CALLBACK names the route payment providers send the buyer
	// back to.
	ROUTE_PAYMENT_CALLBACK = "payment-callback"
)
