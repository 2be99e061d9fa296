package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/connection"
	"clawfinance/internal/infrastructure/flinks"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details"`
}

type invalidStateResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

type providerErrorResponse struct {
	Error        string `json:"error"`
	ProviderCode string `json:"provider_code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	details := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	writeJSON(w, http.StatusBadRequest, validationResponse{Error: "Validation failed", Details: details})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}

// decodeAndValidate reads a JSON body into T and validates it. On failure it
// writes the response and returns false.
func decodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var input T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if err := validate.Struct(input); err != nil {
		writeValidationError(w, err)
		return nil, false
	}
	return &input, true
}

type pathID struct {
	ID string `json:"id" validate:"required,uuid"`
}

// pathUUID returns the {id} path value when it is a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := pathID{ID: r.PathValue("id")}
	if err := validate.Struct(p); err != nil {
		writeValidationError(w, err)
		return "", false
	}
	return p.ID, true
}

// writeDomainError maps service errors to status codes. Anything unexpected
// is logged and reported as a 500 without detail.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var stateErr *connection.InvalidStateError
	if errors.As(err, &stateErr) {
		writeJSON(w, http.StatusBadRequest, invalidStateResponse{
			Error:  stateErr.Error(),
			Status: string(stateErr.Status),
		})
		return
	}

	if pe, ok := flinks.AsProviderError(err); ok {
		status := pe.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		logger.Warn("provider error", "status", pe.Status, "code", pe.Code, "error", err)
		writeJSON(w, status, providerErrorResponse{Error: pe.Message, ProviderCode: pe.Code})
		return
	}

	switch {
	case errors.Is(err, connection.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, connection.ErrNoStoredLogin):
		writeError(w, http.StatusBadRequest, "Connection has no stored login; re-authorize first")
	case errors.Is(err, connection.ErrNotFound):
		writeError(w, http.StatusNotFound, "Connection not found")
	// Another user's account looks the same as a missing one.
	case errors.Is(err, account.ErrAccountNotFound), errors.Is(err, account.ErrForbidden):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
