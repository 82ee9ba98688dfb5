package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// maxChunkLine bounds a chunk size line and each trailer line
const maxChunkLine = 4096

// maxTrailerBytes bounds the whole trailer section
const maxTrailerBytes = 64 * 1024

// --------------------------------------------------------------------------
// Chunked writer
// --------------------------------------------------------------------------

type chunkedWriter struct {
	w      io.Writer
	closed bool
}

// NewChunkedWriter returns a writer that encodes every Write as one chunk. Close
// writes the last chunk and an empty trailer but does not close w. Empty writes are
// dropped, since a zero sized chunk would end the body.
func NewChunkedWriter(w io.Writer) io.WriteCloser {
	return &chunkedWriter{w: w}
}

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if c.closed {
		return 0, errors.New("http1: write to closed chunked writer")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

func (c *chunkedWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}

// --------------------------------------------------------------------------
// Chunked reader
// --------------------------------------------------------------------------

// chunkedReader decodes a chunked body and discards its trailers
type chunkedReader struct {
	br     *bufio.Reader
	lr     lineReader
	remain int64 // bytes left in the current chunk, -1 before the next size line
	err    error
}

func newChunkedReader(br *bufio.Reader) *chunkedReader {
	return &chunkedReader{br: br, lr: lineReader{br: br}, remain: -1}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.remain <= 0 {
		size, err := c.readChunkSize()
		if err != nil {
			c.err = err
			return 0, err
		}
		if size == 0 {
			if err := c.readTrailers(); err != nil {
				c.err = err
				return 0, err
			}
			c.err = io.EOF
			return 0, io.EOF
		}
		c.remain = size
	}
	if len(p) == 0 {
		return 0, nil
	}

	if int64(len(p)) > c.remain {
		p = p[:c.remain]
	}
	n, err := c.br.Read(p)
	c.remain -= int64(n)
	if err != nil {
		c.err = chunkReadError(err)
		return n, c.err
	}

	// the chunk data is followed by CRLF
	if c.remain == 0 {
		if err := c.expectCRLF(); err != nil {
			c.err = err
			return n, err
		}
		c.remain = -1
	}
	return n, nil
}

func (c *chunkedReader) Complete() bool  { return c.err == io.EOF }
func (c *chunkedReader) Delimited() bool { return true }

// readChunkSize parses "<hex>[;ext]"
func (c *chunkedReader) readChunkSize() (int64, error) {
	line, err := c.readLimitedLine()
	if err != nil {
		return 0, err
	}
	for i, b := range line {
		if b == ';' {
			line = line[:i]
			break
		}
	}
	// bad whitespace before the extension
	for len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
		line = line[:len(line)-1]
	}
	if len(line) == 0 {
		return 0, errs.Newf(errs.KindMalformedChunk, "empty chunk size")
	}
	if len(line) > 15 {
		return 0, errs.Newf(errs.KindMalformedChunk, "chunk size %q too large", truncate(line))
	}

	var size int64
	for _, b := range line {
		v, ok := unhex(b)
		if !ok {
			return 0, errs.Newf(errs.KindMalformedChunk, "invalid chunk size %q", truncate(line))
		}
		size = size<<4 | int64(v)
	}
	return size, nil
}

func (c *chunkedReader) readTrailers() error {
	total := 0
	for {
		line, err := c.readLimitedLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		total += len(line)
		if total > maxTrailerBytes {
			return errs.Newf(errs.KindMalformedChunk, "trailer section too large")
		}
		if err := checkTrailer(line); err != nil {
			return err
		}
	}
}

// checkTrailer validates a "name: value" trailer field
func checkTrailer(line []byte) error {
	name, value, ok := strings.Cut(string(line), ":")
	if !ok || !common.ValidToken(name) {
		return errs.Newf(errs.KindMalformedChunk, "invalid trailer %q", truncate(line))
	}
	if !common.ValidHeaderValue(strings.Trim(value, " \t")) {
		return errs.Newf(errs.KindMalformedChunk, "invalid value for trailer %q", name)
	}
	return nil
}

func (c *chunkedReader) expectCRLF() error {
	var crlf [2]byte
	if _, err := io.ReadFull(c.br, crlf[:]); err != nil {
		return chunkReadError(err)
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return errs.Newf(errs.KindMalformedChunk, "expected CRLF after chunk data, got %q", crlf[:])
	}
	return nil
}

func (c *chunkedReader) readLimitedLine() ([]byte, error) {
	c.lr.remaining = maxChunkLine
	c.lr.limited = true
	c.lr.consumed = 0
	line, err := c.lr.readLine()
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, errs.Newf(errs.KindMalformedChunk, "chunk line too long")
		}
		return nil, chunkReadError(err)
	}
	if !c.lr.crlf {
		return nil, errs.Newf(errs.KindMalformedChunk, "chunk line %q not terminated by CRLF", truncate(line))
	}
	return line, nil
}

func chunkReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.New(errs.KindTruncatedBody, "stream closed inside chunked body", io.ErrUnexpectedEOF)
	}
	return errs.New(errs.KindReadFailed, "read chunked body", err)
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
