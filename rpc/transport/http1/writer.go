package http1

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// DefaultHost is sent when the request carries no Host header. A Unix socket has no
// authority, but HTTP/1.1 servers reject requests without one.
const DefaultHost = "localhost"

// --------------------------------------------------------------------------
// Request serialization
// --------------------------------------------------------------------------

// WriteRequest serializes req to bw and flushes it. Everything that could corrupt the
// framing is checked before the first byte is buffered, so a rejected request leaves
// the stream untouched.
//
// Framing: a known body length is sent with Content-Length, an unknown one chunked.
// POST, PUT and PATCH without a body carry "Content-Length: 0".
func WriteRequest(bw *bufio.Writer, req *common.Request) error {
	length, chunked, err := checkRequest(req)
	if err != nil {
		return err
	}

	// request line
	bw.WriteString(req.Method)
	bw.WriteByte(' ')
	bw.WriteString(req.Target.RequestURI())
	bw.WriteString(" HTTP/1.1\r\n")

	// caller headers in insertion order
	for _, f := range req.Header {
		writeField(bw, f.Name, f.Value)
	}

	// defaults and framing
	if !req.Header.Has("Host") {
		writeField(bw, "Host", DefaultHost)
	}
	if req.Close && !req.Header.HasToken("Connection", "close") {
		writeField(bw, "Connection", "close")
	}
	switch {
	case chunked:
		if !req.Header.Has("Transfer-Encoding") {
			writeField(bw, "Transfer-Encoding", "chunked")
		}
	case length > 0 || sendsZeroLength(req.Method):
		if !req.Header.Has("Content-Length") {
			writeField(bw, "Content-Length", strconv.FormatInt(length, 10))
		}
	}
	bw.WriteString("\r\n")

	// body
	if err := writeBody(bw, req.Body, length, chunked); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return errs.New(errs.KindWriteFailed, "flush request", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// checkRequest validates req and resolves its framing. length is -1 for chunked bodies.
func checkRequest(req *common.Request) (length int64, chunked bool, err error) {
	if req == nil {
		return 0, false, errs.Newf(errs.KindInvalidInput, "nil request")
	}
	if !common.ValidToken(req.Method) {
		return 0, false, errs.Newf(errs.KindInvalidInput, "invalid method %q", req.Method)
	}
	if err := req.Target.Validate(); err != nil {
		return 0, false, err
	}
	for _, f := range req.Header {
		if !common.ValidToken(f.Name) {
			return 0, false, errs.Newf(errs.KindInvalidHeader, "invalid header name %q", f.Name)
		}
		if !common.ValidHeaderValue(f.Value) {
			return 0, false, errs.Newf(errs.KindInvalidHeader, "invalid value for header %q", f.Name)
		}
	}

	if req.Close && req.Header.HasToken("Connection", "keep-alive") {
		return 0, false, errs.Newf(errs.KindInvalidInput, "connection close requested with a keep-alive connection header")
	}

	// resolve the body length, 0 with a body means unknown
	length = req.ContentLength
	switch {
	case req.Body == nil:
		length = 0
	case length == 0:
		length = -1
	}

	declared, ok, err := common.DeclaredContentLength(req.Header)
	if err != nil {
		return 0, false, err
	}
	if ok {
		switch {
		case length < 0:
			length = declared
		case declared != length:
			return 0, false, errs.Newf(errs.KindInvalidInput, "content-length %d does not match body length %d", declared, length)
		}
	}

	if req.Header.Has("Transfer-Encoding") {
		if ok {
			return 0, false, errs.Newf(errs.KindInvalidInput, "both content-length and transfer-encoding set")
		}
		if !isChunkedOnly(req.Header.Values("Transfer-Encoding")) {
			return 0, false, errs.Newf(errs.KindInvalidInput, "unsupported transfer-encoding %v", req.Header.Values("Transfer-Encoding"))
		}
		// a chunked header without a body still needs the terminating chunk
		return -1, true, nil
	}

	return length, length < 0, nil
}

func writeField(bw *bufio.Writer, name, value string) {
	bw.WriteString(name)
	bw.WriteString(": ")
	bw.WriteString(value)
	bw.WriteString("\r\n")
}

func writeBody(bw *bufio.Writer, body io.Reader, length int64, chunked bool) error {
	if chunked {
		cw := NewChunkedWriter(bw)
		if body != nil {
			if _, err := io.Copy(cw, body); err != nil {
				return errs.New(errs.KindWriteFailed, "write chunked body", err)
			}
		}
		if err := cw.Close(); err != nil {
			return errs.New(errs.KindWriteFailed, "write last chunk", err)
		}
		return nil
	}

	if length == 0 {
		return nil
	}
	n, err := io.CopyN(bw, body, length)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errs.New(errs.KindWriteFailed, "body shorter than content-length "+strconv.FormatInt(length, 10)+", got "+strconv.FormatInt(n, 10), io.ErrUnexpectedEOF)
		}
		return errs.New(errs.KindWriteFailed, "write body", err)
	}
	return nil
}

func sendsZeroLength(method string) bool {
	switch method {
	case common.MethodPost, common.MethodPut, common.MethodPatch:
		return true
	}
	return false
}

// isChunkedOnly reports whether the transfer codings are exactly "chunked"
func isChunkedOnly(values []string) bool {
	codings := splitTokens(values)
	return len(codings) == 1 && codings[0] == "chunked"
}
