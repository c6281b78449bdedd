// Package page defines the host page primitives the crawler drives: load,
// busy state, DOM access, form submission and rendering.
package page

import (
	"context"
	"errors"
)

// ErrFormNotFound is returned by FillForm and SubmitForm when the page has no
// POST form matching the selector.
var ErrFormNotFound = errors.New("login form not found")

// Page is a single browser tab. Calls are blocking and honour ctx: a
// cancelled context aborts the call in flight.
type Page interface {
	// Open loads address and returns once the load event fired.
	Open(ctx context.Context, address string) error
	// Busy reports whether a navigation is in progress.
	Busy() bool
	// URL returns the address of the current document.
	URL() string
	// HTML returns the serialized current document.
	HTML(ctx context.Context) (string, error)
	FillForm(ctx context.Context, form Form) error
	SubmitForm(ctx context.Context, form Form) error
	// SetBackground paints the body background before a capture.
	SetBackground(ctx context.Context, color string) error
	// Render writes a full-page PNG screenshot to path.
	Render(ctx context.Context, path string) error
}

// Form locates a login form and the values to type into it.
type Form struct {
	Selector      string
	UsernameField string
	PasswordField string
	Username      string
	Password      string
}
