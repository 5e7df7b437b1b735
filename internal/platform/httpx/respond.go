package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// Envelope is the uniform API response wrapper.
type Envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Data      any                 `json:"data,omitempty"`
	Errors    []shared.FieldError `json:"errors,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

// Fail writes a failure envelope, optionally listing field errors.
func Fail(w http.ResponseWriter, status int, message string, fields []shared.FieldError) {
	write(w, status, failure(message, fields))
}

func failure(message string, fields []shared.FieldError) Envelope {
	return Envelope{Success: false, Message: message, Errors: fields, Timestamp: time.Now().UTC()}
}

func write(w http.ResponseWriter, status int, env Envelope) {
	JSON(w, status, env)
}

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes the JSON request body into target.
func DecodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return shared.Errorf(shared.ErrBadRequest, "%s", ErrEmptyBody.Error())
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Errorf(shared.ErrBadRequest, "%s", ErrEmptyBody.Error())
		}
		return shared.Errorf(shared.ErrBadRequest, "invalid JSON payload")
	}
	return nil
}

// IsMultipart reports whether the request carries multipart form data.
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}
