package transport

import (
	"context"
	"net"

	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// --------------------------------------------------------------------------
// Interface Definitions for dependency injection
// --------------------------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations.
// The connection pool only ever dials through a connector, so tests can replace the
// socket layer with in-memory pipes.
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint. It must give up once
	// ctx is done. Failures are reported as errs.ErrConnectFailed with a reason.
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// IServerConnector creates listeners for a transport type
type IServerConnector interface {
	// Listen binds the endpoint and returns a listener for it
	Listen(endpoint string) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string
}
