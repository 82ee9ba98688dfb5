// Package cmd implements the command-line interface of unixhttp, an HTTP/1.1
// client for services listening on unix domain sockets.
//
// The package is organized into several subpackages:
//
//   - request: One command per HTTP method (get, head, delete, post, put, patch) and a generic request command
//   - perf: A load generator that reports latency percentiles and pool statistics
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All client settings can be given as flags or as UNIXHTTP_<FLAG> environment
// variables (dashes replaced by underscores), also read from .env and .env.local.
//
// See unixhttp -help for a list of all commands.
package cmd
