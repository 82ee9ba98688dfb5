package request

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/unixhttp/rpc/transport/unix"
)

var requestTestCounter uint64

// startServer serves an echo handler on a fresh socket
func startServer(t *testing.T) string {
	t.Helper()
	count := atomic.AddUint64(&requestTestCounter, 1)
	socketPath := fmt.Sprintf("/tmp/unixhttp_cmd_test_%d_%d.sock", os.Getpid(), count)
	listener, err := unix.Listen(socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix test server: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Content-Type", r.Header.Get("Content-Type"))
		w.Header().Set("X-Length", fmt.Sprint(r.ContentLength))
		w.Write(body)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	t.Cleanup(func() {
		srv.Close()
		os.Remove(socketPath)
	})
	return socketPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := getCmd
	switch args[0] {
	case "post":
		cmd = postCmd
	case "delete":
		cmd = deleteCmd
	case "put":
		cmd = putCmd
	}
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args[1:])
	err := cmd.Execute()
	return out.String(), err
}

func TestGetWithInclude(t *testing.T) {
	socketPath := startServer(t)

	out, err := execute(t, "get", "-i", "-H", "X-Test: 1", socketPath, "/echo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\n") {
		t.Errorf("Expected the status line first, got %q", out)
	}
	if !strings.Contains(out, "X-Method: GET\n") {
		t.Errorf("Expected the response headers, got %q", out)
	}
}

func TestPostData(t *testing.T) {
	socketPath := startServer(t)

	out, err := execute(t, "post", "--data", "hello", "--content-type", "text/plain", socketPath, "/echo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("Expected the echoed body, got %q", out)
	}
}

func TestPutDataFile(t *testing.T) {
	socketPath := startServer(t)

	dataFile := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(dataFile, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "put", "--data-file", dataFile, socketPath, "/echo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != `{"a":1}` {
		t.Errorf("Expected the file content echoed, got %q", out)
	}
}

func TestFailOnErrorStatus(t *testing.T) {
	socketPath := startServer(t)

	out, err := execute(t, "delete", "--fail", socketPath, "/missing")
	if err == nil {
		t.Fatal("Expected an error for a 404 response")
	}
	if code := ExitCode(err); code != ExitStatusHTTPError {
		t.Errorf("Expected exit code %d, got %d", ExitStatusHTTPError, code)
	}
	if out != "" {
		t.Errorf("Expected no output with --fail, got %q", out)
	}
}

func TestExitCodeForOtherErrors(t *testing.T) {
	if code := ExitCode(fmt.Errorf("boom")); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
}

func TestCommandsSilenceUsage(t *testing.T) {
	for _, cmd := range Commands {
		if !cmd.SilenceUsage {
			t.Errorf("Command %q prints its usage on errors", cmd.Name())
		}
	}
}
