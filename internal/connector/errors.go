package connector

import "errors"

// Request-fatal conditions. Callers tell them apart with errors.Is; the
// wrapped message is safe to show to the client.
var (
	// ErrInvalidRoot means the configured root is empty, missing or not a
	// directory.
	ErrInvalidRoot = errors.New(`invalid backend configuration: "root" option has bad value`)

	// ErrAccessDenied means the policy refused access to a path the
	// command needs, such as the root itself.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnknownCommand means no handler is registered under the requested name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrBadRequest means a parameter is malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound means an identifier matched nothing under the search root.
	ErrNotFound = errors.New("not found")
)
