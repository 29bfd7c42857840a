package sessions

import "context"

// Store defines session storage. Implementations must be safe for concurrent use.
// Get and Delete return errors.ErrSessionNotFound for unknown ids.
type Store interface {
	// Upsert creates or replaces a session
	Upsert(ctx context.Context, session *UpstreamSession) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*UpstreamSession, error)

	// Delete removes a session by ID
	Delete(ctx context.Context, sessionID string) error

	// List returns every stored session, used by the sweep
	List(ctx context.Context) ([]*UpstreamSession, error)
}
