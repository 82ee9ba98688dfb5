package common

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/lib/errs"
)

// Common methods
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
)

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// Request is one HTTP request addressed to a unix socket.
// A Request must not be modified once it has been handed to an exchange.
type Request struct {
	Method string
	Target address.Target
	Header Header

	// Body is the optional request body. It is read once, up to ContentLength
	// bytes if that is known.
	Body io.Reader

	// ContentLength is the body length in bytes. -1 means unknown and selects
	// chunked transfer encoding. 0 with a non-nil Body is treated as unknown.
	ContentLength int64

	// Close asks the server to close the connection after the response
	Close bool
}

// NewRequest validates its arguments and builds a Request. The body length is
// detected for *bytes.Reader, *bytes.Buffer and *strings.Reader bodies, or taken
// from a Content-Length header. Any other body is sent chunked.
func NewRequest(method string, target address.Target, header Header, body io.Reader) (*Request, error) {
	if !ValidToken(method) {
		return nil, errs.Newf(errs.KindInvalidInput, "invalid method %q", method)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	for _, f := range header {
		if !ValidToken(f.Name) {
			return nil, errs.Newf(errs.KindInvalidHeader, "invalid header name %q", f.Name)
		}
		if !ValidHeaderValue(f.Value) {
			return nil, errs.Newf(errs.KindInvalidHeader, "invalid value for header %q", f.Name)
		}
	}

	req := &Request{
		Method:        method,
		Target:        target,
		Header:        header.Clone(),
		Body:          body,
		ContentLength: bodyLength(body),
		Close:         header.HasToken("Connection", "close"),
	}

	declared, ok, err := DeclaredContentLength(req.Header)
	if err != nil {
		return nil, err
	}
	if ok {
		switch {
		case req.ContentLength < 0:
			req.ContentLength = declared
		case declared != req.ContentLength:
			return nil, errs.Newf(errs.KindInvalidInput, "content-length %d does not match body length %d", declared, req.ContentLength)
		}
	}

	// an empty body of known length is no body at all
	if req.ContentLength == 0 {
		req.Body = nil
	}

	return req, nil
}

// DeclaredContentLength parses the Content-Length fields of h. ok is false if there
// is none; differing or invalid values are an error.
func DeclaredContentLength(h Header) (n int64, ok bool, err error) {
	values := h.Values("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}
	n = -1
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			parsed, perr := parseContentLength(part)
			if perr != nil {
				return 0, false, errs.Newf(errs.KindInvalidInput, "invalid content-length %q", v)
			}
			if n >= 0 && parsed != n {
				return 0, false, errs.Newf(errs.KindInvalidInput, "conflicting content-length values %v", values)
			}
			n = parsed
		}
	}
	return n, true, nil
}

// IsIdempotent reports whether the method is idempotent per RFC 9110
func (r *Request) IsIdempotent() bool {
	switch r.Method {
	case MethodGet, MethodHead, MethodPut, MethodDelete, MethodOptions, "TRACE":
		return true
	}
	return false
}

// String returns "METHOD identifier"
func (r *Request) String() string {
	return r.Method + " " + r.Target.String()
}

// --------------------------------------------------------------------------
// Response
// --------------------------------------------------------------------------

// Response is the parsed head of an HTTP response plus its lazily read body.
// The body must be drained or closed, otherwise the connection it streams from
// stays leased.
type Response struct {
	Status int
	Reason string
	Proto  string
	Header Header

	// Body streams the response body. Reading past the end returns 0, io.EOF.
	// A framing violation surfaces as an errs.ErrTruncatedBody or
	// errs.ErrMalformedChunk error from Read.
	Body io.ReadCloser

	// ContentLength is the declared body length, -1 if unknown
	ContentLength int64

	// Close reports whether the connection is not reused after this response
	Close bool

	// Request is the request that produced this response
	Request *Request
}

// Bytes reads the whole body and closes it
func (r *Response) Bytes() ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// Text reads the whole body as a string and closes it
func (r *Response) Text() (string, error) {
	b, err := r.Bytes()
	return string(b), err
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// StatusText returns the reason phrase sent by the server, or the standard one
func (r *Response) StatusText() string {
	if r.Reason != "" {
		return r.Reason
	}
	return http.StatusText(r.Status)
}

// ErrorForStatus returns a *StatusError for 4xx and 5xx responses and nil otherwise.
// The body is left untouched.
func (r *Response) ErrorForStatus() error {
	if r.Status >= 400 && r.Status <= 599 {
		return &StatusError{Status: r.Status, Reason: r.StatusText()}
	}
	return nil
}

// StatusError reports a 4xx or 5xx response
type StatusError struct {
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	prefix := "HTTP status server error"
	if e.Status < 500 {
		prefix = "HTTP status client error"
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s (%d)", prefix, e.Status)
	}
	return fmt.Sprintf("%s (%d %s)", prefix, e.Status, e.Reason)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func bodyLength(body io.Reader) int64 {
	switch b := body.(type) {
	case nil:
		return 0
	case *bytes.Reader:
		return int64(b.Len())
	case *bytes.Buffer:
		return int64(b.Len())
	case *strings.Reader:
		return int64(b.Len())
	default:
		return -1
	}
}

func parseContentLength(s string) (int64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
