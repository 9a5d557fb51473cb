package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/constants"
	"github.com/Alturino/fitclub/internal/log"
	"github.com/Alturino/fitclub/internal/session"
)

// Session binds every request to an opaque browser session id kept in a
// cookie, minting one on the first visit. Tokens never leave the server.
//
// Payment callbacks arrive as cross-site navigations that may omit the cookie;
// there a missing cookie is left alone instead of being replaced.
func Session(cfg config.Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := r.Context()

			sessionID := ""
			if cookie, err := r.Cookie(cfg.CookieName); err == nil {
				if _, err := uuid.Parse(cookie.Value); err == nil {
					sessionID = cookie.Value
				}
			}
			if sessionID == "" && paymentCallback(r) {
				next.ServeHTTP(w, r)
				return
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			logger := zerolog.Ctx(c).With().Str(log.KeySessionID, sessionID).Logger()
			c = session.WithID(logger.WithContext(c), sessionID)
			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}

func paymentCallback(r *http.Request) bool {
	route := mux.CurrentRoute(r)
	return route != nil && route.GetName() == constants.ROUTE_PAYMENT_CALLBACK
}
