package iap

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	// EInvalidToken represents a missing client token.
	EInvalidToken ErrCode = "invalid_token"
	// EMalformedToken represents a client token that cannot be decoded.
	EMalformedToken ErrCode = "malformed_token"
	// EBadSignature represents a client token with a signature mismatch.
	EBadSignature ErrCode = "bad_signature"
	// EBadRequest represents a bad JSON request body.
	EBadRequest ErrCode = "bad_request"
	// EValidation represents a request with invalid fields.
	EValidation ErrCode = "validation_failed"
	// ENotFound represents a non existent entity.
	ENotFound ErrCode = "not_found"
	// EAlreadyExists represents a unique constraint conflict in a repository.
	EAlreadyExists ErrCode = "already_exists"
	// EReceiptRejected represents a receipt the storefront refused.
	EReceiptRejected ErrCode = "receipt_rejected"
	// EStorefront represents a failure to reach the storefront.
	EStorefront ErrCode = "storefront_unavailable"
	// EThrottle represents a rate limited request.
	EThrottle ErrCode = "throttled"
	// EInternal represents an internal error outside of our domain.
	EInternal ErrCode = "internal"
)

// Error represents an error within the iap domain.
type Error interface {
	Error() string
	Code() ErrCode
	// Message is a client safe description of the error.
	Message() string
}

// ErrCode is a machine readable code representing
// an error within the iap domain.
type ErrCode string

// ErrInvalidToken represents a request without a client token.
type ErrInvalidToken string

func (e ErrInvalidToken) Code() ErrCode   { return EInvalidToken }
func (e ErrInvalidToken) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrInvalidToken) Message() string { return string(e) }

// ErrMalformedToken represents a client token that is not in the
// expected payload.signature format.
type ErrMalformedToken string

func (e ErrMalformedToken) Code() ErrCode   { return EMalformedToken }
func (e ErrMalformedToken) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrMalformedToken) Message() string { return string(e) }

// ErrBadSignature represents a client token whose signature does
// not match its payload.
type ErrBadSignature string

func (e ErrBadSignature) Code() ErrCode   { return EBadSignature }
func (e ErrBadSignature) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrBadSignature) Message() string { return string(e) }

// ErrBadRequest represents a request that cannot be processed.
type ErrBadRequest string

func (e ErrBadRequest) Code() ErrCode   { return EBadRequest }
func (e ErrBadRequest) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrBadRequest) Message() string { return string(e) }

// ErrValidation represents a request with one or more invalid fields.
type ErrValidation struct {
	Fields []string
}

func (e ErrValidation) Code() ErrCode { return EValidation }
func (e ErrValidation) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code(), strings.Join(e.Fields, "; "))
}
func (e ErrValidation) Message() string { return "Validation failed." }

// ErrNotFound represents an entity that does not exist.
type ErrNotFound string

func (e ErrNotFound) Code() ErrCode   { return ENotFound }
func (e ErrNotFound) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrNotFound) Message() string { return string(e) }

// ErrAlreadyExists represents an entity violating a unique constraint.
type ErrAlreadyExists string

func (e ErrAlreadyExists) Code() ErrCode   { return EAlreadyExists }
func (e ErrAlreadyExists) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrAlreadyExists) Message() string { return string(e) }

// ErrReceiptRejected represents a receipt the storefront did not accept.
type ErrReceiptRejected string

func (e ErrReceiptRejected) Code() ErrCode   { return EReceiptRejected }
func (e ErrReceiptRejected) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrReceiptRejected) Message() string { return string(e) }

// ErrStorefront represents a transport or protocol failure while
// talking to the storefront.
type ErrStorefront string

func (e ErrStorefront) Code() ErrCode   { return EStorefront }
func (e ErrStorefront) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrStorefront) Message() string { return string(e) }

// ErrThrottle represents a rate limited request.
type ErrThrottle string

func (e ErrThrottle) Code() ErrCode   { return EThrottle }
func (e ErrThrottle) Error() string   { return fmt.Sprintf("[%s] %s", e.Code(), string(e)) }
func (e ErrThrottle) Message() string { return string(e) }

// DomainError returns a domain error if available.
func DomainError(err error) Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(Error); ok {
		return e
	}

	if e, ok := errors.Cause(err).(Error); ok {
		return e
	}

	var e Error
	if errors.As(err, &e) {
		return e
	}

	return nil
}

// ErrorCode returns the code associated with a domain error.
// If an error is not part of the iap domain, it
// returns Internal.
func ErrorCode(err error) ErrCode {
	if err == nil {
		return ErrCode("")
	}

	e := DomainError(err)
	if e == nil {
		return EInternal
	}

	return e.Code()
}
