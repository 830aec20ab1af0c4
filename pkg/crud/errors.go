package crud

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"

	"github.com/cesarabad/muffinmanager/pkg/codec"
)

// GenericMessage is reported when a failed response carries no readable message.
const GenericMessage = "unexpected server response"

// NetworkMessage is reported when the server could not be reached.
const NetworkMessage = "could not reach the server"

// TransportError is returned for any non-2xx response or network failure.
// Message is safe to show to the user.
type TransportError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the server answered 404.
func (e *TransportError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Unauthorized reports whether the server rejected the credential.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// MessageOf returns the user-facing message of err, GenericMessage if err
// is not a TransportError.
func MessageOf(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return GenericMessage
}

// errorMessage extracts the message field of an error body.
func errorMessage(body []byte, c codec.Codec) string {
	if len(body) == 0 {
		return GenericMessage
	}
	if msg, err := jsonparser.GetString(body, "message"); err == nil && msg != "" {
		return msg
	}
	var structured struct {
		Message string `json:"message"`
	}
	if err := c.Unmarshal(body, &structured); err == nil && structured.Message != "" {
		return structured.Message
	}
	return GenericMessage
}
