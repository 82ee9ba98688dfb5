// Package http1 implements the HTTP/1.1 wire format spoken over a single stream:
// request serialization, response head parsing and the three body framings.
// The package is stateless; every function operates on the bufio reader or writer
// of one connection and never touches the connection itself.
//
// Key Components:
//
//   - WriteRequest: Serializes a common.Request. Header names and values, the method
//     and the target are validated before anything is written, so an injection attempt
//     never reaches the stream. Bodies of known length are sent with Content-Length,
//     others with chunked transfer coding.
//
//   - ReadResponseHead: Parses the status line and headers under a byte budget and
//     derives the framing of the body as well as whether the connection may be reused.
//
//   - NewBodyReader: Returns a Body for the response. The framing precedence is
//     chunked, then Content-Length, then read until close. Responses to HEAD and
//     1xx, 204 and 304 responses have no body.
//
//   - NewChunkedWriter: Chunked transfer coding for request bodies of unknown length.
//
// Errors:
//
//	All failures are *errs.Error values. Framing violations of the peer are reported
//	as ErrMalformedStatusLine, ErrMalformedHeader, ErrMalformedChunk or ErrTruncatedBody.
//	A connection that produced one of them must not be reused.
package http1
