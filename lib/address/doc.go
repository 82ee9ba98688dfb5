// Package address encodes a unix socket path and an HTTP request target into a
// single canonical identifier and decodes it back.
//
// The identifier uses the private "unix" scheme. The socket path takes the place of
// the URI authority and is percent-encoded, so that slashes and any other byte of
// the filesystem path survive. The request path and query follow literally:
//
//	socket /tmp/my.socket, path /health  ->  unix://%2Ftmp%2Fmy.socket/health
//	socket /run/d.sock, path /v1/x, q=1  ->  unix://%2Frun%2Fd.sock/v1/x?q=1
//
// For every valid input Decode(Encode(s, p, q)) yields {s, p, q} again.
package address
