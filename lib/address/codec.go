package address

import (
	"strings"

	"github.com/ValentinKolb/unixhttp/lib/errs"
)

const (
	// Scheme is the private scheme marker of an identifier
	Scheme = "unix"

	schemePrefix = Scheme + "://"
	upperHex     = "0123456789ABCDEF"
)

// Target addresses one HTTP resource behind a unix domain socket
type Target struct {
	// SocketPath is the filesystem path of the socket. It is never normalized.
	SocketPath string
	// Path is the request path, always starting with "/"
	Path string
	// Query is the raw query without the leading "?" (empty means no query)
	Query string
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Encode builds the canonical identifier for the given socket path, request path and query
func Encode(socketPath, path, query string) (string, error) {
	if err := validate(socketPath, path, query); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(len(schemePrefix) + 3*len(socketPath) + len(path) + len(query) + 1)
	sb.WriteString(schemePrefix)
	escapeSocketPath(&sb, socketPath)
	sb.WriteString(path)
	if query != "" {
		sb.WriteByte('?')
		sb.WriteString(query)
	}
	return sb.String(), nil
}

// Decode parses an identifier produced by Encode
func Decode(identifier string) (Target, error) {
	if len(identifier) < len(schemePrefix) || !strings.EqualFold(identifier[:len(schemePrefix)], schemePrefix) {
		return Target{}, errs.Newf(errs.KindMalformedIdentifier, "%q lacks the %s scheme", identifier, schemePrefix)
	}
	rest := identifier[len(schemePrefix):]

	// the fragment is never sent to the server
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}

	// the encoded socket path contains no raw '/' or '?'
	end := strings.IndexAny(rest, "/?")
	if end < 0 {
		end = len(rest)
	}
	encoded, pathAndQuery := rest[:end], rest[end:]

	socketPath, err := unescapeSocketPath(encoded)
	if err != nil {
		return Target{}, errs.New(errs.KindMalformedIdentifier, "invalid socket path encoding", err)
	}
	if socketPath == "" {
		return Target{}, errs.Newf(errs.KindMalformedIdentifier, "%q has an empty socket path", identifier)
	}

	path, query := splitQuery(pathAndQuery)
	if path == "" {
		path = "/"
	}
	if err := validatePathAndQuery(path, query); err != nil {
		return Target{}, errs.New(errs.KindMalformedIdentifier, "invalid request target", err)
	}

	return Target{SocketPath: socketPath, Path: path, Query: query}, nil
}

// ParseTarget builds a Target from a socket path and a raw request target such as
// "v1/status?debug=true". A missing leading slash is added.
func ParseTarget(socketPath, rawPath string) (Target, error) {
	if i := strings.IndexByte(rawPath, '#'); i >= 0 {
		rawPath = rawPath[:i]
	}
	path, query := splitQuery(rawPath)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	t := Target{SocketPath: socketPath, Path: path, Query: query}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Target methods
// --------------------------------------------------------------------------

// Validate checks the Target invariants
func (t Target) Validate() error {
	return validate(t.SocketPath, t.Path, t.Query)
}

// String returns the canonical identifier, or an empty string for an invalid Target
func (t Target) String() string {
	s, err := Encode(t.SocketPath, t.Path, t.Query)
	if err != nil {
		return ""
	}
	return s
}

// RequestURI returns the request-line form "path[?query]"
func (t Target) RequestURI() string {
	if t.Query == "" {
		return t.Path
	}
	return t.Path + "?" + t.Query
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func validate(socketPath, path, query string) error {
	if socketPath == "" {
		return errs.Newf(errs.KindInvalidInput, "socket path must not be empty")
	}
	if strings.IndexByte(socketPath, 0) >= 0 {
		return errs.Newf(errs.KindInvalidInput, "socket path must not contain NUL")
	}
	return validatePathAndQuery(path, query)
}

func validatePathAndQuery(path, query string) error {
	if !strings.HasPrefix(path, "/") {
		return errs.Newf(errs.KindInvalidInput, "path %q must start with '/'", path)
	}
	if strings.IndexByte(path, '?') >= 0 {
		return errs.Newf(errs.KindInvalidInput, "path %q must not contain '?', pass the query separately", path)
	}
	if i := invalidTargetByte(path); i >= 0 {
		return errs.Newf(errs.KindInvalidInput, "path contains illegal byte 0x%02x at %d", path[i], i)
	}
	if i := invalidTargetByte(query); i >= 0 {
		return errs.Newf(errs.KindInvalidInput, "query contains illegal byte 0x%02x at %d", query[i], i)
	}
	return nil
}

// invalidTargetByte returns the index of the first byte that may not appear in a request line
func invalidTargetByte(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f || c == '#' {
			return i
		}
	}
	return -1
}

func splitQuery(s string) (string, string) {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func escapeSocketPath(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperHex[c>>4])
		sb.WriteByte(upperHex[c&0x0f])
	}
}

func unescapeSocketPath(s string) (string, error) {
	if strings.IndexByte(s, '%') < 0 {
		return s, nil
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			buf = append(buf, s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", errs.Newf(errs.KindMalformedIdentifier, "truncated escape at %d", i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", errs.Newf(errs.KindMalformedIdentifier, "invalid escape %q", s[i:i+3])
		}
		buf = append(buf, hi<<4|lo)
		i += 2
	}
	return string(buf), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
