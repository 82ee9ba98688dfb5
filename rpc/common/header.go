package common

import (
	"strings"
)

// HeaderField is a single header line
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Duplicates are preserved and the
// order of the slice is the order on the wire. Name lookups are case-insensitive.
type Header []HeaderField

// Add appends a field
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces all fields with the given name by a single one, kept at the position
// of the first occurrence (or appended if there is none)
func (h *Header) Set(name, value string) {
	out := (*h)[:0]
	replaced := false
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, HeaderField{Name: name, Value: value})
			replaced = true
		}
	}
	if !replaced {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Del removes all fields with the given name
func (h *Header) Del(name string) {
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the value of the first field with the given name
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns all values of the given name in wire order
func (h Header) Values(name string) []string {
	var values []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

// Has reports whether a field with the given name exists
func (h Header) Has(name string) bool {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// HasToken reports whether any of the comma-separated values of the given
// field equals token (case-insensitive), e.g. HasToken("Connection", "close")
func (h Header) HasToken(name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Clone returns a copy that shares no memory with h
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// --------------------------------------------------------------------------
// Validation (RFC 9110 token and field-value rules)
// --------------------------------------------------------------------------

// ValidToken reports whether s is a non-empty RFC 9110 token, as used for
// header names and methods
func ValidToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

// ValidHeaderValue reports whether v can be written as a field value without
// breaking the framing: no CR, LF, NUL or other control bytes except HTAB
func ValidHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x7f || (c < 0x20 && c != '\t') {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
