// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized matches any *APIError with status 401
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport wraps failures that never produced an HTTP response
	ErrTransport = errors.New("backend unreachable")
	// ErrNotAuthenticated is returned before any request when no session exists
	ErrNotAuthenticated = errors.New("not logged in, run `deploymate auth login`")
)

const maxRawMessage = 400

// Payload is the useful part of an error body
type Payload struct {
	Message        string `json:"message"`
	Code           string `json:"code,omitempty"`
	MissingCompose bool   `json:"missingCompose,omitempty"`
	Service        string `json:"service,omitempty"`
}

// APIError is a non-2xx response, or a 2xx response whose body says success=false
type APIError struct {
	Status  int
	Payload Payload
}

func (e *APIError) Error() string {
	if e.Payload.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Payload.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) see through the status code
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == 401
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parsePayload reads the message from a JSON body's `message` (or `error`)
// field, falling back to the raw text truncated to 400 characters.
func parsePayload(body []byte) Payload {
	var fields struct {
		Message        *string `json:"message"`
		Error          *string `json:"error"`
		Code           string  `json:"code"`
		MissingCompose bool    `json:"missingCompose"`
		Service        string  `json:"service"`
	}
	if err := json.Unmarshal(body, &fields); err == nil {
		p := Payload{Code: fields.Code, MissingCompose: fields.MissingCompose, Service: fields.Service}
		switch {
		case fields.Message != nil && *fields.Message != "":
			p.Message = *fields.Message
		case fields.Error != nil && *fields.Error != "":
			p.Message = *fields.Error
		}
		if p.Message != "" || p.Code != "" || p.MissingCompose {
			return p
		}
	}

	raw := strings.TrimSpace(string(body))
	if r := []rune(raw); len(r) > maxRawMessage {
		raw = string(r[:maxRawMessage])
	}
	return Payload{Message: raw}
}
