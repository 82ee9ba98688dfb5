// Package rpc provides the HTTP/1.1 client stack for services listening on Unix
// domain sockets.
//
// The package is organized into several subpackages:
//
//   - common: Request and response types, the header list, client configuration
//     and logging.
//
//   - transport: The connector abstraction and its Unix socket implementation,
//     the HTTP/1.1 wire codec (http1) and the per-socket connection pool (base).
//
//   - client: The request exchange that ties a pooled connection, the codec and
//     cancellation together, plus verb shortcuts for identifiers.
package rpc
