package api

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNullBody = errors.New("response body is null")

// Decode parses a response body into T. It is all-or-nothing: on any failure,
// including one bad element of a list or a bare null, the zero T is returned
// with an *Error of kind ErrDecode. Which field failed is kept in the wrapped
// error for logs only.
func Decode[T any](op Operation, data []byte) (T, error) {
	var value T
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return value, &Error{Op: op, Kind: ErrDecode, Err: errNullBody}
	}
	if err := json.Unmarshal(data, &value); err != nil {
		var zero T
		return zero, &Error{Op: op, Kind: ErrDecode, Err: err}
	}
	return value, nil
}
