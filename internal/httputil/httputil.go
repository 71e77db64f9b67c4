// Package httputil holds the JSON helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fragenkreuzen/backend/internal/models"
)

var validate = validator.New()

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindAlreadyFinished, models.KindSRDisabled:
		return http.StatusConflict
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError responds with the status and kind of err. Internal errors are
// logged and replaced by msg so driver details never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	kind := models.KindOf(err)
	if kind == models.KindInternal {
		slog.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
		WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: msg, Kind: kind})
		return
	}
	WriteJSON(w, StatusOf(kind), models.ErrorResponse{Error: err.Error(), Kind: kind})
}

func Unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required", Kind: models.KindUnauthorized})
}

// Decode reads a JSON body into v and runs its validate tags. Both failures
// wrap models.ErrInvalidInput.
func Decode(r *http.Request, v interface{}) error {
	if err := DecodeBody(r, v); err != nil {
		return err
	}
	return Validate(v)
}

// DecodeBody reads a JSON body into v without validating it, for handlers
// that normalize fields first.
func DecodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(models.ErrInvalidInput, "invalid request body")
	}
	return nil
}

func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return errors.Wrap(models.ErrInvalidInput, err.Error())
	}
	return nil
}

// PathID parses a positive integer route variable.
func PathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(models.ErrInvalidInput, "invalid %s", key)
	}
	return id, nil
}

func IntQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
