package apiutil

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	ownerIDQueryKey = "owner_id"
	maxListLimit    = 100
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

// ParseIntField parses an optional integer; an empty value yields fallback.
func ParseIntField(raw string, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, FieldError{Field: field, Reason: "must be an integer"}
	}
	return value, nil
}

func OwnerIDFromQuery(r *http.Request) (int64, error) {
	return ParsePositiveInt64Field(r.URL.Query().Get(ownerIDQueryKey), ownerIDQueryKey)
}

// PathID parses the {id} path value as a positive integer.
func PathID(r *http.Request, field string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue("id"), field)
}

// LimitFromQuery reads ?limit=, defaulting to fallback and capped at 100.
func LimitFromQuery(r *http.Request, fallback int) (int, error) {
	limit, err := ParseIntField(r.URL.Query().Get("limit"), "limit", fallback)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, FieldError{Field: "limit", Reason: "must be greater than 0"}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
