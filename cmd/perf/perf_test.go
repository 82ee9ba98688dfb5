package perf

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/rpc/client"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport/unix"
)

func TestBenchmarkReusesConnections(t *testing.T) {
	socketPath := fmt.Sprintf("/tmp/unixhttp_perf_test_%d.sock", os.Getpid())
	listener, err := unix.Listen(socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix test server: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})}
	go srv.Serve(listener)
	defer func() {
		srv.Close()
		os.Remove(socketPath)
	}()

	perfWorkers = 4
	perfDuration = 200 * time.Millisecond
	perfMethod = common.MethodGet
	perfBodySize = 0

	config := common.DefaultClientConfig()
	config.MaxConnsPerSocket = 2
	clientConfig = &config
	c := client.NewClient(config)
	defer c.Close()

	target, err := address.ParseTarget(socketPath, "/")
	if err != nil {
		t.Fatal(err)
	}

	res, err := benchmark(context.Background(), c, target)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Requests == 0 {
		t.Fatal("Expected successful requests")
	}
	if res.Failures != 0 || res.Non2xx != 0 {
		t.Errorf("Expected no failures, got %d failures and %d non-2xx", res.Failures, res.Non2xx)
	}
	if res.Pool.Dials > 2 {
		t.Errorf("Expected at most 2 dials, got %d", res.Pool.Dials)
	}
	if res.P50 > res.Max || res.Min > res.P50 {
		t.Errorf("Inconsistent latencies: min %s p50 %s max %s", res.Min, res.P50, res.Max)
	}

	csvPath := filepath.Join(t.TempDir(), "result.csv")
	if err := writeResultsToCSV(csvPath, target, res, clientConfig); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}
	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Errorf("Expected a non-empty CSV file")
	}
}
