package middleware

import (
	"errors"
	"net/http"
	"strings"

	"rideshare/pkg/logger"
	"rideshare/pkg/session"

	"github.com/golang-jwt/jwt/v5"
)

const AccessTokenQueryParam = "access_token"

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

var ErrMissingSubject = errors.New("token has no subject")

// Verify parses an HS256 token and returns the session it names.
func (v *TokenVerifier) Verify(raw string) (session.Session, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return session.Session{}, err
	}
	if claims.Subject == "" {
		return session.Session{}, ErrMissingSubject
	}
	return session.Session{UserID: claims.Subject, Email: claims.Email}, nil
}

// Auth requires a bearer token on every request. When allowQuery is set the
// token may also arrive as ?access_token=, which browsers need for websocket
// upgrades.
func Auth(verifier *TokenVerifier, log *logger.Logger, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" && allowQuery {
				raw = r.URL.Query().Get(AccessTokenQueryParam)
			}
			if raw == "" {
				writeJSONError(w, http.StatusUnauthorized, `{"error":"Missing bearer token","code":"UNAUTHORIZED"}`)
				return
			}

			s, err := verifier.Verify(raw)
			if err != nil {
				log.Warn("Rejected access token",
					"request_id", RequestIDFrom(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, `{"error":"Invalid or expired token","code":"UNAUTHORIZED"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
