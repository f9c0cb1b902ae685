package par

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned whenever a request URI cannot be resolved for a
// client: unknown, expired, or owned by a different client. The three
// cases are deliberately indistinguishable so that a non-owning client
// learns nothing about the existence of a record.
var ErrNotFound = errors.New("par: request not found")

// ErrConflict is returned by a store when the request URI is already
// taken. Collisions are practically impossible with 48 bytes of entropy;
// the service still retries with a fresh URI.
var ErrConflict = errors.New("par: request_uri already exists")

type ErrorKind int

const (
	KindClientNotAuthorized ErrorKind = iota
	KindUnsupportedResponseType
	KindInvalidRedirectURI
	KindInvalidScope
	KindInvalidPKCERequest
	KindInvalidTarget
)

// Error is a rejected push. These are deterministic input errors and are
// reported to the client verbatim; no retry makes them succeed.
type Error struct {
	Kind        ErrorKind
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code(), e.Description)
}

// Code maps the kind to the OAuth2 error code of RFC 6749, RFC 9126 and
// RFC 8707.
func (e *Error) Code() string {
	switch e.Kind {
	case KindClientNotAuthorized:
		return "unauthorized_client"
	case KindUnsupportedResponseType:
		return "unsupported_response_type"
	case KindInvalidScope:
		return "invalid_scope"
	case KindInvalidTarget:
		return "invalid_target"
	default:
		return "invalid_request"
	}
}
