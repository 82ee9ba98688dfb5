package unix

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/unix")

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct {
	dialer net.Dialer
}

// NewClientConnector creates a connector that dials Unix domain sockets
func NewClientConnector() transport.IClientConnector {
	return &clientConnector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	if endpoint == "" {
		return nil, errs.Newf(errs.KindInvalidInput, "empty socket path")
	}

	conn, err := c.dialer.DialContext(ctx, "unix", endpoint)
	if err != nil {
		reason := ClassifyDialError(err)
		Logger.Debugf("Dial %s failed (%s): %v", endpoint, reason, err)
		return nil, errs.ConnectFailed(reason, endpoint, err)
	}
	return conn, nil
}

// UpgradeConnection applies the configured socket buffer sizes to a Unix connection
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil // Not a Unix connection, nothing to upgrade
	}

	// Set socket write buffer size if configured
	if config.Socket.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.Socket.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if config.Socket.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.Socket.ReadBufferSize); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ClassifyDialError maps the errno behind a failed dial to a connect reason
func ClassifyDialError(err error) errs.ConnectReason {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENOTDIR):
		return errs.ReasonNotFound
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return errs.ReasonPermissionDenied
	case errors.Is(err, syscall.ECONNREFUSED):
		return errs.ReasonConnectionRefused
	default:
		return errs.ReasonOther
	}
}
