package service

import (
	"errors"
	"fmt"
)

// Code is the machine-readable category of a LinkError.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeUnprocessableEntity Code = "unprocessable_entity"
	CodeForbidden           Code = "forbidden"
	CodeConflict            Code = "conflict"
	CodeNotFound            Code = "not_found"
)

var (
	// ErrKeyspaceExhausted is wrapped by the conflict returned when no free
	// random key was found within the configured number of attempts.
	ErrKeyspaceExhausted = errors.New("no available random key")
	// ErrProjectionSync is returned together with the committed link when
	// the canonical write succeeded but the projection write did not.
	ErrProjectionSync = errors.New("projection store out of sync")
)

// Messages shared by several gates.
const (
	msgDuplicateKey = "Duplicate key: This short link already exists."
	msgInvalidKey   = "Invalid key."
	msgLinkNotFound = "Link not found."
)

// LinkError is a validation or policy failure. It carries the payload the
// caller submitted so it can be returned to the client unchanged.
type LinkError struct {
	Code    Code         `json:"code"`
	Message string       `json:"message"`
	Payload *LinkPayload `json:"payload,omitempty"`
	Err     error        `json:"-"`
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func newLinkError(code Code, message string, payload *LinkPayload) *LinkError {
	return &LinkError{Code: code, Message: message, Payload: payload}
}

// AsLinkError extracts a *LinkError from err.
func AsLinkError(err error) (*LinkError, bool) {
	var le *LinkError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsCode reports whether err is a LinkError with the given code.
func IsCode(err error, code Code) bool {
	le, ok := AsLinkError(err)
	return ok && le.Code == code
}
