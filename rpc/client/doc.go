// Package client implements HTTP/1.1 exchanges over Unix domain sockets. It ties the
// address codec, the connection pool and the wire codec together into a client that
// behaves like a plain HTTP client, except that every target names a socket path.
//
// The package focuses on:
//   - Running one request/response exchange per leased connection
//   - Returning connections to the pool only when the exchange ended cleanly
//   - Honoring context cancellation and the request timeout during all I/O
//
// Key Components:
//
//   - Client: Owns a base.ConnectionPool. Execute runs an exchange for a
//     common.Request; Get, Head, Delete, Post, Put and Patch build the request from a
//     "unix://" identifier first.
//
//   - Execute (package level): A one-shot exchange on a pool of its own that is closed
//     when the response body is done.
//
//   - exchange: The state machine Start, Acquiring, Writing, ReadingHeaders,
//     ReadingBody and Done, with Aborted reachable from every state. Interim 1xx
//     responses other than 101 are skipped.
//
// Connection reuse:
//
//	A connection goes back to the pool if the response body was read to its end, the
//	body was self-delimited (Content-Length or chunked) and neither the request nor the
//	response asked to close. Any error, a body closed early, a cancellation or a body
//	that ran until the server closed the stream discards it.
//
// Usage Example:
//
//	c := client.NewClient(common.DefaultClientConfig())
//	defer c.Close()
//
//	id, _ := address.Encode("/run/app.sock", "/health", "")
//	resp, err := c.Get(ctx, id)
//	if err != nil {
//	  return err
//	}
//	text, err := resp.Text() // reads the body and releases the connection
//
// Thread Safety:
//
//	Client is safe for concurrent use. A Response body must be read by one goroutine,
//	but may be closed from another one to abort the exchange.
package client
