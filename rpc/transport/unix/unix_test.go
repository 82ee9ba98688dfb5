package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

var unixTestCounter uint64

func testSocketPath() string {
	count := atomic.AddUint64(&unixTestCounter, 1)
	return fmt.Sprintf("/tmp/unixhttp_unix_test_%d_%d.sock", os.Getpid(), count)
}

func TestConnectSuccess(t *testing.T) {
	socketPath := testSocketPath()
	listener, err := NewServerConnector().Listen(socketPath)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
		close(accepted)
	}()

	connector := NewClientConnector()
	if connector.GetName() != "unix" {
		t.Errorf("GetName = %q, want unix", connector.GetName())
	}

	conn, err := connector.Connect(context.Background(), socketPath)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	config := common.DefaultClientConfig()
	config.Socket = common.SocketConf{ReadBufferSize: 64 * 1024, WriteBufferSize: 64 * 1024}
	if err := connector.UpgradeConnection(conn, config); err != nil {
		t.Errorf("UpgradeConnection failed: %v", err)
	}

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}
}

func TestConnectNotFound(t *testing.T) {
	_, err := NewClientConnector().Connect(context.Background(), testSocketPath())
	assertConnectReason(t, err, errs.ReasonNotFound)
}

func TestConnectNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewClientConnector().Connect(context.Background(), filepath.Join(file, "sock"))
	assertConnectReason(t, err, errs.ReasonNotFound)
}

func TestConnectRefused(t *testing.T) {
	socketPath := testSocketPath()
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	if err != nil {
		t.Fatalf("ListenUnix failed: %v", err)
	}
	// keep the socket file around after closing, so nobody listens on it
	listener.SetUnlinkOnClose(false)
	listener.Close()
	defer os.Remove(socketPath)

	_, err = NewClientConnector().Connect(context.Background(), socketPath)
	assertConnectReason(t, err, errs.ReasonConnectionRefused)
}

func TestConnectPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}

	dir := t.TempDir()
	socketPath := filepath.Join(dir, "s.sock")
	listener, err := NewServerConnector().Listen(socketPath)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	if err := os.Chmod(socketPath, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(socketPath, 0o700)

	_, err = NewClientConnector().Connect(context.Background(), socketPath)
	assertConnectReason(t, err, errs.ReasonPermissionDenied)
}

func TestConnectEmptyPath(t *testing.T) {
	_, err := NewClientConnector().Connect(context.Background(), "")
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestListenRefusesRegularFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-socket")
	if err := os.WriteFile(file, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewServerConnector().Listen(file); err == nil {
		t.Fatal("Listen replaced a regular file")
	}
	if _, err := os.Stat(file); err != nil {
		t.Errorf("regular file is gone: %v", err)
	}
}

func assertConnectReason(t *testing.T, err error, want errs.ConnectReason) {
	t.Helper()
	if !errors.Is(err, errs.ErrConnectFailed) {
		t.Fatalf("expected ConnectFailed, got %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if e.Reason != want {
		t.Errorf("reason = %s, want %s (err: %v)", e.Reason, want, err)
	}
}
