package http1

import (
	"bufio"
	"errors"
	"io"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// Body is a response body reader that knows how it ended. Once Read returned an error
// every later call returns the same error, io.EOF included.
type Body interface {
	io.Reader
	// Complete reports that the body was read to its end without error
	Complete() bool
	// Delimited reports that the end of the body is known without the peer closing
	// the stream, so the connection can carry another exchange
	Delimited() bool
}

// NewBodyReader selects the body framing for a response to method. Responses to HEAD
// and 1xx, 204 and 304 responses never have a body, whatever their headers say.
// Otherwise chunked transfer coding wins over Content-Length, and without either the
// body runs until the peer closes the stream.
func NewBodyReader(br *bufio.Reader, head *ResponseHead, method string) Body {
	switch {
	case !hasBody(head.Status, method):
		return &noBody{}
	case head.Chunked:
		return newChunkedReader(br)
	case head.ContentLength == 0:
		return &noBody{}
	case head.ContentLength > 0:
		return &contentLengthBody{br: br, remaining: head.ContentLength}
	default:
		return &eofBody{br: br}
	}
}

// HasBody reports whether a response with this head carries body bytes at all
func HasBody(head *ResponseHead, method string) bool {
	if !hasBody(head.Status, method) {
		return false
	}
	return head.Chunked || head.ContentLength != 0
}

func hasBody(status int, method string) bool {
	if method == common.MethodHead {
		return false
	}
	return !(status >= 100 && status < 200) && status != 204 && status != 304
}

// --------------------------------------------------------------------------
// Empty body
// --------------------------------------------------------------------------

type noBody struct{}

func (b *noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (b *noBody) Complete() bool           { return true }
func (b *noBody) Delimited() bool          { return true }

// --------------------------------------------------------------------------
// Content-Length body
// --------------------------------------------------------------------------

// contentLengthBody delivers exactly the declared number of bytes
type contentLengthBody struct {
	br        *bufio.Reader
	remaining int64
	err       error
}

func (b *contentLengthBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.remaining == 0 {
		b.err = io.EOF
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}

	n, err := b.br.Read(p)
	b.remaining -= int64(n)
	switch {
	case err != nil && errors.Is(err, io.EOF):
		b.err = errs.Newf(errs.KindTruncatedBody, "stream closed with %d bytes of the body missing", b.remaining)
	case err != nil:
		b.err = errs.New(errs.KindReadFailed, "read body", err)
	case b.remaining == 0:
		b.err = io.EOF
	}
	return n, b.err
}

func (b *contentLengthBody) Complete() bool  { return b.err == io.EOF }
func (b *contentLengthBody) Delimited() bool { return true }

// --------------------------------------------------------------------------
// Read until close
// --------------------------------------------------------------------------

// eofBody delivers everything until the peer closes the stream
type eofBody struct {
	br  *bufio.Reader
	err error
}

func (b *eofBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.br.Read(p)
	switch {
	case err != nil && errors.Is(err, io.EOF):
		b.err = io.EOF
	case err != nil:
		b.err = errs.New(errs.KindReadFailed, "read body", err)
	}
	return n, b.err
}

func (b *eofBody) Complete() bool  { return b.err == io.EOF }
func (b *eofBody) Delimited() bool { return false }
