// Package registry tracks the clients currently connected to a server.
// A ClientRegistry is informed when sessions open and close, so external
// tooling can observe the live client population. Implementations cover
// in-process use (memory) and shared visibility across processes (Redis).
package registry

import "context"

// ClientRegistry records connected clients by their unique client identifier.
// Registry failures must never be fatal to a session; callers log and move on.
type ClientRegistry interface {
	// Add records a newly connected client.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - clientID: The session's globally-unique client identifier
	//   - remoteAddr: The remote address of the connection
	//
	// Returns:
	//   - An error if the registry backend rejected the operation
	Add(ctx context.Context, clientID string, remoteAddr string) error

	// Remove deletes a client record. Removing an unknown client is a no-op.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - clientID: The client identifier to remove
	//
	// Returns:
	//   - An error if the registry backend rejected the operation
	Remove(ctx context.Context, clientID string) error

	// Count returns the number of currently registered clients.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//
	// Returns:
	//   - The number of registered clients
	//   - An error if the registry backend rejected the operation
	Count(ctx context.Context) (int, error)
}
