package http1

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// ResponseHead is a parsed status line plus header block
type ResponseHead struct {
	Proto  string // "HTTP/1.0" or "HTTP/1.1"
	Minor  int
	Status int
	Reason string
	Header common.Header

	// ContentLength is the declared length, -1 if absent or overridden by chunking
	ContentLength int64
	// Chunked is set if the final transfer coding is chunked
	Chunked bool
	// Close reports that the connection must not be reused after this response
	Close bool
}

// IsInterim reports a 1xx response that is followed by the final one. 101 ends the
// HTTP exchange and is therefore final.
func (h *ResponseHead) IsInterim() bool {
	return h.Status >= 100 && h.Status < 200 && h.Status != 101
}

// --------------------------------------------------------------------------
// Response head parsing
// --------------------------------------------------------------------------

// ReadResponseHead reads one status line and header block from br. The head may use at
// most maxHeaderBytes bytes including line endings (0 means no limit).
//
// A stream that ends before the first byte yields ErrReadFailed wrapping io.EOF, which
// is what a server closing an idle keep-alive connection looks like.
func ReadResponseHead(br *bufio.Reader, maxHeaderBytes int) (*ResponseHead, error) {
	lr := &lineReader{br: br, remaining: maxHeaderBytes, limited: maxHeaderBytes > 0}

	line, err := lr.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) && lr.consumed == 0 {
			return nil, errs.New(errs.KindReadFailed, "connection closed before response", io.EOF)
		}
		return nil, headError(err)
	}

	head, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, headError(err)
		}
		if len(line) == 0 {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, errs.Newf(errs.KindMalformedHeader, "obsolete line folding")
		}
		i := bytes.IndexByte(line, ':')
		if i <= 0 {
			return nil, errs.Newf(errs.KindMalformedHeader, "header line without colon %q", truncate(line))
		}
		name := string(line[:i])
		if !common.ValidToken(name) {
			return nil, errs.Newf(errs.KindMalformedHeader, "invalid header name %q", name)
		}
		value := strings.Trim(string(line[i+1:]), " \t")
		if !common.ValidHeaderValue(value) {
			return nil, errs.Newf(errs.KindMalformedHeader, "invalid value for header %q", name)
		}
		head.Header.Add(name, value)
	}

	if err := head.resolveFraming(); err != nil {
		return nil, err
	}
	return head, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseStatusLine(line []byte) (*ResponseHead, error) {
	s := string(line)
	proto, rest, _ := strings.Cut(s, " ")

	head := &ResponseHead{Proto: proto, ContentLength: -1}
	switch proto {
	case "HTTP/1.1":
		head.Minor = 1
	case "HTTP/1.0":
		head.Minor = 0
	default:
		return nil, errs.Newf(errs.KindMalformedStatusLine, "unsupported protocol in %q", truncate(line))
	}

	code, reason, _ := strings.Cut(rest, " ")
	if len(code) != 3 || !isDigit(code[0]) || !isDigit(code[1]) || !isDigit(code[2]) {
		return nil, errs.Newf(errs.KindMalformedStatusLine, "invalid status code in %q", truncate(line))
	}
	head.Status = int(code[0]-'0')*100 + int(code[1]-'0')*10 + int(code[2]-'0')
	if head.Status < 100 || head.Status > 599 {
		return nil, errs.Newf(errs.KindMalformedStatusLine, "status code %d out of range", head.Status)
	}
	if !common.ValidHeaderValue(reason) {
		return nil, errs.Newf(errs.KindMalformedStatusLine, "invalid reason phrase")
	}
	head.Reason = reason
	return head, nil
}

// resolveFraming derives ContentLength, Chunked and Close from the header block
func (h *ResponseHead) resolveFraming() error {
	h.Close = h.Header.HasToken("Connection", "close") ||
		(h.Minor == 0 && !h.Header.HasToken("Connection", "keep-alive"))

	declared, hasLength, err := common.DeclaredContentLength(h.Header)
	if err != nil {
		return errs.Newf(errs.KindMalformedHeader, "invalid content-length %v", h.Header.Values("Content-Length"))
	}

	if h.Header.Has("Transfer-Encoding") {
		codings := splitTokens(h.Header.Values("Transfer-Encoding"))
		h.Chunked = len(codings) > 0 && codings[len(codings)-1] == "chunked"
		if !h.Chunked || hasLength {
			// read until close, or chunked with a smuggled length: never reuse
			h.Close = true
		}
		return nil
	}

	if hasLength {
		h.ContentLength = declared
	}
	return nil
}

// headError classifies a failure in the middle of a head
func headError(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.New(errs.KindMalformedHeader, "response head truncated", io.ErrUnexpectedEOF)
	}
	return errs.New(errs.KindReadFailed, "read response head", err)
}

// lineReader reads CRLF (or bare LF) terminated lines under a shared byte budget
type lineReader struct {
	br        *bufio.Reader
	remaining int
	limited   bool
	consumed  int
	buf       []byte
	crlf      bool // the last line ended with CRLF
}

// readLine returns the next line without its line ending. The result is only valid
// until the next call.
func (r *lineReader) readLine() ([]byte, error) {
	r.buf = r.buf[:0]
	for {
		frag, err := r.br.ReadSlice('\n')
		r.consumed += len(frag)
		if r.limited {
			r.remaining -= len(frag)
			if r.remaining < 0 {
				return nil, errs.Newf(errs.KindMalformedHeader, "response head too large")
			}
		}
		r.buf = append(r.buf, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && r.consumed > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	line := r.buf[:len(r.buf)-1]
	r.crlf = false
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
		r.crlf = true
	}
	return line, nil
}

func splitTokens(values []string) []string {
	var tokens []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func truncate(line []byte) string {
	const limit = 64
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}
