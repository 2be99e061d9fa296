package flinks

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a non-success answer from the provider. Status is the
// provider's HTTP status and Code its FlinksCode, when one was sent.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("flinks: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("flinks: %s (status %d)", e.Message, e.Status)
}

// AsProviderError unwraps err to a *ProviderError if it holds one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func newProviderError(status int, er errorResponse) *ProviderError {
	msg := er.Message
	if msg == "" {
		msg = er.FlinksCode
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	if msg == "" {
		msg = "Flinks API error"
	}
	return &ProviderError{Status: status, Code: er.FlinksCode, Message: msg}
}
