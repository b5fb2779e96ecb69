// Package httpx holds the JSON request and response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes caps request bodies; auth payloads are small.
const maxBodyBytes = 64 << 10

// ErrBadRequest wraps every body decoding failure.
var ErrBadRequest = errors.New("invalid request body")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes {"error": msg, "code": code} with the given status.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// DecodeJSON decodes a single JSON object from r into v, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	return decode(r, v, true)
}

// DecodeJSONLenient is DecodeJSON for public forms whose clients may send extra
// fields. Unknown fields are dropped; they never reach v.
func DecodeJSONLenient(r *http.Request, v any) error {
	return decode(r, v, false)
}

func decode(r *http.Request, v any, strict bool) error {
	if r.Body == nil {
		return ErrBadRequest
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrBadRequest)
	}
	return nil
}
