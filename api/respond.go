package api

import (
	"chat-live/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponder writes {"message": ...} with the status mapped from err.
// Internal errors are logged and never exposed.
func errorResponder(log *slog.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := errors.MapToHTTPStatus(err)
		msg := publicMessage(err)
		if status == http.StatusInternalServerError {
			log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			msg = http.StatusText(status)
		} else {
			log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
		}
		writeJSON(w, status, messageBody{Message: msg})
	}
}

// publicMessage keeps the innermost detail of a wrapped error.
func publicMessage(err error) string {
	s := err.Error()
	if idx := strings.LastIndex(s, ": "); idx >= 0 && idx+2 < len(s) {
		return s[idx+2:]
	}
	return s
}

// decode reads a JSON body into v and runs its validation tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body", errors.ErrValidation)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrValidation, fieldErrors(err))
	}
	return nil
}

func fieldErrors(err error) string {
	var fields validator.ValidationErrors
	if !stderrors.As(err, &fields) {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s is %s", f.Field(), f.Tag()))
	}
	return strings.Join(parts, ", ")
}
