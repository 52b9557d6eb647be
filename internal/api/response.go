// Package api exposes the mail store over HTTP: a JSON API for mailbox,
// message, label, search and quota operations, plus the internal delivery
// endpoint the MTA edge calls.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mailhaven/mailstore/internal/mailerr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encode response failed", slog.String("error", err.Error()))
		}
	}
}

// writeError maps the error taxonomy to HTTP status codes. Unrecognized
// errors become opaque 500s; their detail stays in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, mailerr.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, mailerr.ErrAlreadyExists):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, mailerr.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, mailerr.ErrQuotaExceeded),
		errors.Is(err, mailerr.ErrSendLimitExceeded):
		status, message = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, mailerr.ErrAttachmentTooLarge):
		status, message = http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, mailerr.ErrUnknownRecipient):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, mailerr.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, mailerr.ErrConfiguration):
		slog.Error("system mailbox missing", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	default:
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "field " + f.Field() + " failed on " + f.Tag(),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, validate *validator.Validate) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	if validate != nil {
		if err := validate.Struct(v); err != nil {
			writeValidationError(w, err)
			return false
		}
	}
	return true
}
