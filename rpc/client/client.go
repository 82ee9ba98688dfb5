package client

import (
	"context"
	"io"

	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport"
	"github.com/ValentinKolb/unixhttp/rpc/transport/base"
	"github.com/ValentinKolb/unixhttp/rpc/transport/unix"
)

// Client sends HTTP requests over Unix domain sockets. It owns a connection pool
// and is safe for concurrent use. Close it to release idle connections.
type Client struct {
	pool *base.ConnectionPool
}

// NewClient creates a client that dials Unix domain sockets
func NewClient(config common.ClientConfig) *Client {
	return NewClientWithConnector(unix.NewClientConnector(), config)
}

// NewClientWithConnector creates a client that dials through connector
func NewClientWithConnector(connector transport.IClientConnector, config common.ClientConfig) *Client {
	return &Client{pool: base.NewConnectionPool(connector, config)}
}

// --------------------------------------------------------------------------
// Exchange
// --------------------------------------------------------------------------

// Execute sends req and returns the response once its head has been read. The body
// streams from the connection; the connection returns to the pool when the body has
// been read to its end, and is closed if the body is closed early.
//
// A non-nil error never comes with a partial response. Nothing is retried.
func (c *Client) Execute(ctx context.Context, req *common.Request) (*common.Response, error) {
	if req == nil {
		return nil, errs.Newf(errs.KindInvalidInput, "nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return newExchange(ctx, c.pool, req).run()
}

// Execute performs a single exchange with a pool of its own, which is closed once the
// response body is done
func Execute(ctx context.Context, req *common.Request, config common.ClientConfig) (*common.Response, error) {
	if req == nil {
		return nil, errs.Newf(errs.KindInvalidInput, "nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	config.SweepInterval = 0
	c := NewClient(config)

	ex := newExchange(ctx, c.pool, req)
	ex.onDone = func() { c.Close() }
	return ex.run()
}

// --------------------------------------------------------------------------
// Verb shortcuts (identifiers as produced by address.Encode)
// --------------------------------------------------------------------------

// Get issues a GET to the resource named by identifier
func (c *Client) Get(ctx context.Context, identifier string) (*common.Response, error) {
	return c.do(ctx, common.MethodGet, identifier, "", nil)
}

// Head issues a HEAD to the resource named by identifier
func (c *Client) Head(ctx context.Context, identifier string) (*common.Response, error) {
	return c.do(ctx, common.MethodHead, identifier, "", nil)
}

// Delete issues a DELETE to the resource named by identifier
func (c *Client) Delete(ctx context.Context, identifier string) (*common.Response, error) {
	return c.do(ctx, common.MethodDelete, identifier, "", nil)
}

// Post sends body with the given content type (empty to omit the header)
func (c *Client) Post(ctx context.Context, identifier, contentType string, body io.Reader) (*common.Response, error) {
	return c.do(ctx, common.MethodPost, identifier, contentType, body)
}

// Put sends body with the given content type (empty to omit the header)
func (c *Client) Put(ctx context.Context, identifier, contentType string, body io.Reader) (*common.Response, error) {
	return c.do(ctx, common.MethodPut, identifier, contentType, body)
}

// Patch sends body with the given content type (empty to omit the header)
func (c *Client) Patch(ctx context.Context, identifier, contentType string, body io.Reader) (*common.Response, error) {
	return c.do(ctx, common.MethodPatch, identifier, contentType, body)
}

// Get performs a one-shot GET with the default configuration
func Get(ctx context.Context, identifier string) (*common.Response, error) {
	req, err := newRequest(common.MethodGet, identifier, "", nil)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, req, common.DefaultClientConfig())
}

// --------------------------------------------------------------------------
// Pool access
// --------------------------------------------------------------------------

// Stats returns the counters of the connection pool
func (c *Client) Stats() base.Stats {
	return c.pool.Stats()
}

// Config returns the normalized configuration the client runs with
func (c *Client) Config() common.ClientConfig {
	return c.pool.Config()
}

// Close closes idle connections. Responses still being read keep working; their
// connections are closed when they finish.
func (c *Client) Close() error {
	return c.pool.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, identifier, contentType string, body io.Reader) (*common.Response, error) {
	req, err := newRequest(method, identifier, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.Execute(ctx, req)
}

func newRequest(method, identifier, contentType string, body io.Reader) (*common.Request, error) {
	target, err := address.Decode(identifier)
	if err != nil {
		return nil, err
	}
	var header common.Header
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return common.NewRequest(method, target, header, body)
}
