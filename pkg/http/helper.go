package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"rideshare/pkg/config"
	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/session"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

// ExtractTime parses an optional RFC3339 query parameter.
func ExtractTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid %s format, must be RFC3339", name))
	}
	return &parsed, nil
}

// DecodeJSON decodes the body into dst. An empty body is accepted when
// allowEmpty is set, leaving dst untouched.
func DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return nil
		}
		return apperrors.InvalidInput("Request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return apperrors.InvalidInput("Invalid request body")
	}
	return nil
}

func RequireSession(r *http.Request) (session.Session, error) {
	s, err := session.FromContext(r.Context())
	if err != nil {
		return session.Session{}, apperrors.Unauthorized("Authentication required")
	}
	return s, nil
}
