package bridge

import (
	"errors"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrTransportClosed indicates a write was attempted on a connection that is
// already closed or closing. It is not fatal to the process; the caller
// learns delivery did not happen and must not retry.
var ErrTransportClosed = errors.New("transport closed")

// NormalizeWriteError collapses the transport's inconsistent closed-write
// signals into a single outcome. The websocket library reports a write
// against a dead connection in several shapes: an explicit close-sent error,
// a closed-socket error from the net layer, or a benign close-handshake
// error surfaced mid-write even though the close itself succeeded. The first
// two become ErrTransportClosed; the benign handshake case is swallowed and
// reported as success. Anything else passes through unchanged.
//
// Parameters:
//   - err: The raw error returned by the connection write
//
// Returns:
//   - nil on success or for the benign close-handshake case,
//     ErrTransportClosed for closed-connection writes, err otherwise
func NormalizeWriteError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrTransportClosed
	}

	if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
		return ErrTransportClosed
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}

	return err
}
