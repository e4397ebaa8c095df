package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/subscriptions/pkg/storage"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON sets the JSON content type, writes status and encodes body
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteErrorMessage replies with {"error": message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteInternalError replies 500 without leaking any detail
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// StatusForError maps storage errors onto HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrInvalidReference),
		errors.Is(err, storage.ErrInvalid),
		errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteStoreError writes err with the status StatusForError picks
func WriteStoreError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status == http.StatusInternalServerError {
		WriteInternalError(w)
		return
	}
	WriteErrorMessage(w, status, err.Error())
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

func WriteCreated(w http.ResponseWriter, body interface{}) error {
	return WriteJSON(w, http.StatusCreated, body)
}

func WriteSuccess(w http.ResponseWriter, body interface{}) error {
	return WriteJSON(w, http.StatusOK, body)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
