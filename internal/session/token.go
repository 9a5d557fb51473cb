package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"  validate:"required"`
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (t TokenPair) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

func (t TokenPair) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("hasAccessToken", t.AccessToken != "").
		Bool("hasRefreshToken", t.RefreshToken != "")
}

// AccessExpiry reads the exp claim of the access token without verifying the
// signature. The backend owns the signing key; this is informational only.
func AccessExpiry(pair TokenPair) (time.Time, bool) {
	if pair.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(pair.AccessToken, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
