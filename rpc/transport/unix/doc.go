// Package unix implements the connectors for Unix domain sockets. It provides
// optimized communication for processes running on the same machine.
//
// Key Components:
//
//   - clientConnector: Dials a socket path with the context deadline of the caller.
//     Failed dials are classified by errno: a missing path is ReasonNotFound, missing
//     permissions are ReasonPermissionDenied and a socket nobody listens on is
//     ReasonConnectionRefused.
//
//   - serverConnector: Creates Unix socket listeners, replacing stale socket files
//
// Socket paths are passed to the kernel unchanged. Relative paths resolve against
// the working directory of the process.
package unix
