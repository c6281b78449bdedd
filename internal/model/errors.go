package model

import (
	"errors"
	"fmt"
)

// Kind classifies crawl failures.
type Kind int

const (
	// KindLoadFailure: the page would not open.
	KindLoadFailure Kind = iota + 1
	// KindFormNotFound: no POST login form on the login page.
	KindFormNotFound
	// KindLoginTimeout: login did not reach Done in time.
	KindLoginTimeout
	// KindNavigationTimeout: page load did not finish in time.
	KindNavigationTimeout
	// KindCapture: DOM evaluation or rendering failed after load.
	KindCapture
)

func (k Kind) String() string {
	switch k {
	case KindLoadFailure:
		return "load failure"
	case KindFormNotFound:
		return "form not found"
	case KindLoginTimeout:
		return "login timeout"
	case KindNavigationTimeout:
		return "navigation timeout"
	case KindCapture:
		return "capture exception"
	default:
		return "unknown"
	}
}

// Error is a crawl failure tagged with its kind and the offending address.
type Error struct {
	Kind    Kind
	Address string
	Err     error
}

// NewError builds an Error. err may be nil.
func NewError(kind Kind, address string, err error) *Error {
	return &Error{Kind: kind, Address: address, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s on address '%s'", e.Kind, e.Address)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err or any error in its chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// AddressOf returns the address carried by the first *Error in the chain.
func AddressOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Address
	}
	return ""
}
