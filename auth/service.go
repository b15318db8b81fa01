package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// serviceRequest is the JSON body sent to the authentication service.
type serviceRequest struct {
	ClientID   string            `json:"client_id"`
	RemoteAddr string            `json:"remote_addr"`
	Fields     map[string]string `json:"fields"`
}

// serviceResponse is the JSON body expected from the authentication service.
type serviceResponse struct {
	Authenticated bool `json:"authenticated"`
}

// ServiceAuthenticator authenticates sessions by calling an external HTTP
// authentication service. The request carries the client identifier, the
// remote address, and the handshake fields; the service answers with
// {"authenticated": true|false}. The caller enforces the timeout through
// the context passed to Authenticate.
type ServiceAuthenticator struct {
	url    string
	client *http.Client
}

// NewServiceAuthenticator creates a ServiceAuthenticator that POSTs
// authentication requests to the given URL. The supplied client may be nil,
// in which case http.DefaultClient is used; timeouts are expected to come
// from the per-call context, not the client.
//
// Parameters:
//   - serviceURL: The authentication service endpoint
//   - client: Optional HTTP client; nil for http.DefaultClient
//
// Returns:
//   - A new ServiceAuthenticator instance
func NewServiceAuthenticator(serviceURL string, client *http.Client) *ServiceAuthenticator {
	if client == nil {
		client = http.DefaultClient
	}

	return &ServiceAuthenticator{
		url:    serviceURL,
		client: client,
	}
}

// Authenticate implements Authenticator. It returns false with a nil error
// on explicit rejection and a non-nil error when the service could not be
// reached, answered with a non-200 status, timed out, or returned a body
// that does not decode.
func (a *ServiceAuthenticator) Authenticate(ctx context.Context, req Request) (bool, error) {
	fields := req.Fields
	if fields == nil {
		fields = map[string]string{}
	}

	body, err := json.Marshal(serviceRequest{
		ClientID:   req.ClientID,
		RemoteAddr: req.RemoteAddr,
		Fields:     fields,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode authentication request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build authentication request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("authentication service call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("authentication service returned status %d", resp.StatusCode)
	}

	var decoded serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("failed to decode authentication response: %w", err)
	}

	return decoded.Authenticated, nil
}
