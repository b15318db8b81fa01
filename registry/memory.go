package registry

import (
	"context"

	"github.com/cyberinferno/wsbridge/safemap"
)

// MemoryRegistry is an in-process implementation of ClientRegistry backed by
// a concurrent map. It is the default registry for single-process deployments.
type MemoryRegistry struct {
	clients *safemap.SafeMap[string, string]
}

// NewMemoryRegistry creates an empty in-memory client registry.
//
// Returns:
//   - A new MemoryRegistry instance
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		clients: safemap.NewSafeMap[string, string](),
	}
}

// Add implements ClientRegistry.
func (r *MemoryRegistry) Add(ctx context.Context, clientID string, remoteAddr string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.clients.Store(clientID, remoteAddr)
	return nil
}

// Remove implements ClientRegistry.
func (r *MemoryRegistry) Remove(ctx context.Context, clientID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.clients.Delete(clientID)
	return nil
}

// Count implements ClientRegistry.
func (r *MemoryRegistry) Count(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	return r.clients.Len(), nil
}

// RemoteAddr returns the remote address recorded for the given client.
//
// Parameters:
//   - clientID: The client identifier to look up
//
// Returns:
//   - The recorded remote address and true if the client is registered
func (r *MemoryRegistry) RemoteAddr(clientID string) (string, bool) {
	return r.clients.Load(clientID)
}
