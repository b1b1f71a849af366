package schema

import (
	"encoding/json"
	"net/http"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Envelope wraps every JSON response as {code, message, data}
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// RawEnvelope defers decoding of the data field until the code is known
type RawEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Ok reports whether the envelope code is a success code. Transport
// status is not considered.
func (e Envelope[T]) Ok() bool {
	return isSuccess(e.Code)
}

// Ok reports whether the envelope code is a success code
func (e RawEnvelope) Ok() bool {
	return isSuccess(e.Code)
}

// Err returns the structured error carried by a failed envelope, or nil
// if the envelope code is a success code
func (e RawEnvelope) Err() error {
	if e.Ok() {
		return nil
	}
	result := &Error{Message: e.Message}
	if e.hasData() {
		_ = json.Unmarshal(e.Data, result)
	}
	if result.Kind == "" {
		result.Kind = kindForStatus(e.Code)
	}
	return result
}

// Decode unmarshals the data field of a successful envelope into v
func (e RawEnvelope) Decode(v any) error {
	if err := e.Err(); err != nil {
		return err
	}
	if !e.hasData() {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func isSuccess(code int) bool {
	return code >= http.StatusOK && code <= http.StatusCreated
}

func (e RawEnvelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusNotFound:
		return NotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Unauthorized
	case code == http.StatusConflict:
		return MergeInProgress
	case code >= 400 && code < 500:
		return MalformedRequest
	default:
		return StorageWriteFailure
	}
}
