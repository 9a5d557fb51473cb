package session

import "context"

type sessionID struct{}

func WithID(c context.Context, id string) context.Context {
	return context.WithValue(c, sessionID{}, id)
}

func IDFromContext(c context.Context) (string, bool) {
	id, ok := c.Value(sessionID{}).(string)
	return id, ok && id != ""
}
