package response

import "time"

type Session struct {
	Authenticated bool       `json:"authenticated"`
	State         string     `json:"state"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}
