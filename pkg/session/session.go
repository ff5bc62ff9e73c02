// Package session carries the authenticated caller into the service layer.
// Handlers extract it from the request context and pass it explicitly so
// every service signature shows whose authority an operation runs under.
package session

import (
	"context"
	"errors"
)

var ErrNoSession = errors.New("no session in context")

type Session struct {
	UserID string
	Email  string
}

type contextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(contextKey{}).(Session)
	if !ok || s.UserID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (s Session) Is(userID string) bool {
	return s.UserID != "" && s.UserID == userID
}
