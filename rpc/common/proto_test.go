package common

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/lib/errs"
)

var testTarget = address.Target{SocketPath: "/tmp/test.sock", Path: "/health"}

func TestNewRequestBodyLength(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		body    io.Reader
		wantLen int64
		wantNil bool
	}{
		{"no body", nil, nil, 0, true},
		{"bytes reader", nil, bytes.NewReader([]byte("hello")), 5, false},
		{"strings reader", nil, strings.NewReader("abc"), 3, false},
		{"bytes buffer", nil, bytes.NewBufferString("abcd"), 4, false},
		{"empty reader", nil, strings.NewReader(""), 0, true},
		{"unknown reader", nil, io.MultiReader(strings.NewReader("x")), -1, false},
		{"declared length", Header{{Name: "Content-Length", Value: "1"}}, io.MultiReader(strings.NewReader("x")), 1, false},
		{"declared zero", Header{{Name: "Content-Length", Value: "0"}}, io.MultiReader(), 0, true},
		{"repeated equal values", Header{{Name: "Content-Length", Value: "3, 3"}}, strings.NewReader("abc"), 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(MethodPost, testTarget, tt.header, tt.body)
			if err != nil {
				t.Fatalf("NewRequest failed: %v", err)
			}
			if req.ContentLength != tt.wantLen {
				t.Errorf("ContentLength = %d, want %d", req.ContentLength, tt.wantLen)
			}
			if (req.Body == nil) != tt.wantNil {
				t.Errorf("Body nil = %v, want %v", req.Body == nil, tt.wantNil)
			}
		})
	}
}

func TestNewRequestRejects(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target address.Target
		header Header
		body   io.Reader
		want   error
	}{
		{"empty method", "", testTarget, nil, nil, errs.ErrInvalidInput},
		{"method with space", "GE T", testTarget, nil, nil, errs.ErrInvalidInput},
		{"empty socket", MethodGet, address.Target{Path: "/"}, nil, nil, errs.ErrInvalidInput},
		{"header name with colon", MethodGet, testTarget, Header{{Name: "X:Y", Value: "1"}}, nil, errs.ErrInvalidHeader},
		{"header value with CRLF", MethodGet, testTarget, Header{{Name: "X", Value: "a\r\nInjected: 1"}}, nil, errs.ErrInvalidHeader},
		{"length mismatch", MethodPost, testTarget, Header{{Name: "Content-Length", Value: "10"}}, strings.NewReader("abc"), errs.ErrInvalidInput},
		{"conflicting lengths", MethodPost, testTarget, Header{{Name: "Content-Length", Value: "3"}, {Name: "Content-Length", Value: "4"}}, nil, errs.ErrInvalidInput},
		{"signed length", MethodPost, testTarget, Header{{Name: "Content-Length", Value: "+3"}}, nil, errs.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.method, tt.target, tt.header, tt.body)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewRequestCopiesHeader(t *testing.T) {
	h := Header{{Name: "Connection", Value: "close"}}
	req, err := NewRequest(MethodGet, testTarget, h, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if !req.Close {
		t.Error("Connection: close should set Close")
	}
	h[0].Value = "keep-alive"
	if req.Header.Get("Connection") != "close" {
		t.Error("request header shares memory with the caller's header")
	}
}

func TestRequestString(t *testing.T) {
	req, err := NewRequest(MethodGet, address.Target{SocketPath: "/tmp/s", Path: "/a", Query: "b=1"}, nil, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if got := req.String(); got != "GET unix://%2Ftmp%2Fs/a?b=1" {
		t.Errorf("String = %q", got)
	}
	if !req.IsIdempotent() {
		t.Error("GET should be idempotent")
	}
}

func TestResponseErrorForStatus(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   string
	}{
		{200, "OK", ""},
		{302, "Found", ""},
		{404, "Not Found", "HTTP status client error (404 Not Found)"},
		{503, "", "HTTP status server error (503 Service Unavailable)"},
		{599, "", "HTTP status server error (599)"},
	}

	for _, tt := range tests {
		resp := &Response{Status: tt.status, Reason: tt.reason}
		err := resp.ErrorForStatus()
		if tt.want == "" {
			if err != nil {
				t.Errorf("status %d: unexpected error %v", tt.status, err)
			}
			continue
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("status %d: expected *StatusError, got %v", tt.status, err)
		}
		if err.Error() != tt.want {
			t.Errorf("status %d: error = %q, want %q", tt.status, err.Error(), tt.want)
		}
	}
}

func TestResponseText(t *testing.T) {
	resp := &Response{Status: 200, Body: io.NopCloser(strings.NewReader("ok"))}
	text, err := resp.Text()
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if text != "ok" {
		t.Errorf("Text = %q, want ok", text)
	}
	if !resp.IsSuccess() {
		t.Error("200 should be a success")
	}
}
