package par

import "context"

// Store persists pushed authorization requests. Implementations must be
// safe for concurrent use and must make Consume atomic: of two concurrent
// calls for the same request URI, at most one returns the record. A read
// followed by a separate delete is not an acceptable implementation.
//
// Lookups check ownership and expiry; an expired record is removed as a
// side effect and reported as ErrNotFound.
type Store interface {
	// Insert stores a new record. ErrConflict if the request URI exists.
	Insert(ctx context.Context, req *Request) error

	// Peek returns the record without consuming it.
	Peek(ctx context.Context, requestURI, clientID string) (*Request, error)

	// Consume returns the record and deletes it in the same atomic step.
	Consume(ctx context.Context, requestURI, clientID string) (*Request, error)
}
