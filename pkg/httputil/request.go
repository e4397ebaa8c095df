package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// ParamError reports a path or query parameter that could not be used.
// Handlers pass its message straight to WriteBadRequest.
type ParamError struct {
	Name   string
	Value  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("%s: %s (got %q)", e.Name, e.Reason, e.Value)
}

// ParsePathInt64 reads a numeric route variable such as a user id
func ParsePathInt64(r *http.Request, name string) (int64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok || raw == "" {
		return 0, &ParamError{Name: name, Reason: "missing path parameter"}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &ParamError{Name: name, Value: raw, Reason: "not an integer"}
	}
	return n, nil
}

// ParseQueryInt returns fallback when the parameter is absent
func ParseQueryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Name: name, Value: raw, Reason: "not an integer"}
	}
	return n, nil
}

// ParseQueryBool accepts anything strconv.ParseBool does
func ParseQueryBool(r *http.Request, name string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ParamError{Name: name, Value: raw, Reason: "not a boolean"}
	}
	return b, nil
}
