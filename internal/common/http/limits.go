package http

import (
	"errors"
	"net/http"
)

// MsgBodyTooLarge is the error text for requests over the body cap
const MsgBodyTooLarge = "request body too large"

// IsBodyTooLarge reports whether err came from reading past an
// http.MaxBytesReader limit.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
