// Package common provides the core data structures shared by the transport,
// pool and client packages of the unix socket HTTP client. It defines the
// request and response model, header handling, the client configuration and
// the logging setup.
//
// The package focuses on:
//   - The HTTP/1.1 request and response model used across all layers
//   - An ordered, case-insensitive header list that keeps duplicates
//   - Configuration of the connection pool, timeouts and codec limits
//   - Custom logging implementation integrated with Dragonboat's logger facade
//
// Key Components:
//
//   - Request: A validated HTTP request addressed to an address.Target. Built
//     with NewRequest, which checks the method token, the header fields and the
//     declared Content-Length against the known body size.
//
//   - Response: Status line, headers and a streaming body. Bytes and Text
//     consume the body and return the connection to the pool; ErrorForStatus
//     turns 4xx and 5xx statuses into a StatusError.
//
//   - Header: Insertion ordered list of header fields. Lookups are
//     case-insensitive and repeated names are preserved in order.
//
//   - ClientConfig: Per-socket connection limits, idle timeout, connect, pool
//     wait and request timeouts, header size limit and log level. Normalize
//     fills in defaults, String renders the settings for display.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
