package base

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
)

// --------------------------------------------------------------------------
// Test connector
// --------------------------------------------------------------------------

type trackedConn struct {
	net.Conn
	closed atomic.Bool
}

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

// pipeConnector dials in-memory pipes
type pipeConnector struct {
	mu    sync.Mutex
	conns []*trackedConn
	peers []net.Conn
	fail  error
}

func (c *pipeConnector) GetName() string {
	return "pipe"
}

func (c *pipeConnector) Connect(_ context.Context, endpoint string) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, errs.ConnectFailed(errs.ReasonNotFound, endpoint, c.fail)
	}
	client, server := net.Pipe()
	tc := &trackedConn{Conn: client}
	c.conns = append(c.conns, tc)
	c.peers = append(c.peers, server)
	return tc, nil
}

func (c *pipeConnector) UpgradeConnection(net.Conn, common.ClientConfig) error {
	return nil
}

func (c *pipeConnector) closedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, tc := range c.conns {
		if tc.closed.Load() {
			n++
		}
	}
	return n
}

func (c *pipeConnector) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.peers {
		p.Close()
	}
}

func newTestPool(t *testing.T, modify func(*common.ClientConfig)) (*ConnectionPool, *pipeConnector) {
	t.Helper()
	config := common.DefaultClientConfig()
	config.SweepInterval = 0
	config.PoolWaitTimeout = 2 * time.Second
	if modify != nil {
		modify(&config)
	}
	connector := &pipeConnector{}
	pool := NewConnectionPool(connector, config)
	t.Cleanup(func() {
		pool.Close()
		connector.cleanup()
	})
	return pool, connector
}

const testSocket = "/tmp/pool_test.sock"

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestAcquireReusesKeptAliveConnection(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	ctx := context.Background()

	first, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if first.Reused {
		t.Error("first lease should not be reused")
	}
	conn := first.Conn
	first.Release(KeepAlive)

	second, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !second.Reused || second.Conn != conn {
		t.Error("expected the idle connection to be reused")
	}
	if second.Conn.Exchanges() != 2 {
		t.Errorf("Exchanges = %d, want 2", second.Conn.Exchanges())
	}
	second.Release(KeepAlive)

	stats := pool.Stats()
	if stats.Dials != 1 || stats.Reuses != 1 || stats.Idle != 1 || stats.InUse != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestReleaseDiscardClosesConnection(t *testing.T) {
	pool, connector := newTestPool(t, nil)
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	lease.Release(Discard)
	lease.Release(KeepAlive) // ignored

	if connector.closedCount() != 1 {
		t.Errorf("closed = %d, want 1", connector.closedCount())
	}

	lease, err = pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lease.Reused {
		t.Error("discarded connection was reused")
	}
	lease.Release(KeepAlive)

	stats := pool.Stats()
	if stats.Dials != 2 || stats.Discards != 1 || stats.InUse != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFreshestIdleFirst(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	ctx := context.Background()

	a, _ := pool.Acquire(ctx, testSocket)
	b, _ := pool.Acquire(ctx, testSocket)
	a.Release(KeepAlive)
	b.Release(KeepAlive)

	lease, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lease.Conn != b.Conn {
		t.Error("expected the most recently released connection")
	}
	lease.Release(KeepAlive)
}

func TestIdleLimit(t *testing.T) {
	pool, connector := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 3
		c.MaxIdlePerSocket = 1
	})
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := pool.Acquire(ctx, testSocket)
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		leases = append(leases, lease)
	}
	for _, lease := range leases {
		lease.Release(KeepAlive)
	}

	stats, ok := pool.BucketStats(testSocket)
	if !ok || stats.Idle != 1 || stats.InUse != 0 {
		t.Errorf("unexpected bucket stats %+v", stats)
	}
	if connector.closedCount() != 2 {
		t.Errorf("closed = %d, want 2", connector.closedCount())
	}
}

// At the ceiling callers queue, and every release wakes exactly one of them
func TestCeilingWakesOneWaiterPerRelease(t *testing.T) {
	pool, _ := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 2
		c.PoolWaitTimeout = 10 * time.Second
	})
	ctx := context.Background()

	held := make([]*Lease, 2)
	for i := range held {
		lease, err := pool.Acquire(ctx, testSocket)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		held[i] = lease
	}

	const waiters = 3
	results := make(chan *Lease, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			lease, err := pool.Acquire(ctx, testSocket)
			if err != nil {
				t.Errorf("waiting Acquire failed: %v", err)
				results <- nil
				return
			}
			results <- lease
		}()
	}
	waitForWaiting(t, pool, waiters)

	// keep-alive hands the connection over
	held[0].Release(KeepAlive)
	woken := <-results
	if woken == nil || woken.Conn != held[0].Conn {
		t.Fatal("waiter did not receive the released connection")
	}
	assertNoResult(t, results)

	// discard hands over the slot
	held[1].Release(Discard)
	second := <-results
	if second == nil || second.Reused {
		t.Fatal("waiter should dial into the freed slot")
	}
	assertNoResult(t, results)

	stats, _ := pool.BucketStats(testSocket)
	if stats.InUse != 2 || stats.Waiting != 1 {
		t.Errorf("unexpected bucket stats %+v", stats)
	}

	woken.Release(KeepAlive)
	third := <-results
	third.Release(KeepAlive)
	second.Release(KeepAlive)

	if s := pool.Stats(); s.Waits != waiters || s.InUse != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestAcquireWaitTimeout(t *testing.T) {
	pool, _ := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 1
		c.PoolWaitTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lease.Release(KeepAlive)

	start := time.Now()
	_, err = pool.Acquire(ctx, testSocket)
	if !errors.Is(err, errs.ErrPoolExhausted) {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("gave up after %s", elapsed)
	}

	stats, _ := pool.BucketStats(testSocket)
	if stats.Waiting != 0 {
		t.Errorf("timed out waiter still queued: %+v", stats)
	}
	if pool.Stats().WaitTimeouts != 1 {
		t.Errorf("WaitTimeouts = %d, want 1", pool.Stats().WaitTimeouts)
	}
}

func TestAcquireCanceledWhileWaiting(t *testing.T) {
	pool, _ := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 1
	})

	lease, err := pool.Acquire(context.Background(), testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(ctx, testSocket)
		done <- err
	}()
	waitForWaiting(t, pool, 1)
	cancel()

	err = <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}

	// the slot is still usable after the canceled wait
	lease.Release(KeepAlive)
	lease, err = pool.Acquire(context.Background(), testSocket)
	if err != nil {
		t.Fatalf("Acquire after cancel failed: %v", err)
	}
	lease.Release(KeepAlive)
}

func TestSocketPathsAreIndependent(t *testing.T) {
	pool, _ := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 1
		c.PoolWaitTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()

	a, err := pool.Acquire(ctx, "/tmp/a.sock")
	if err != nil {
		t.Fatalf("Acquire a failed: %v", err)
	}
	b, err := pool.Acquire(ctx, "/tmp/b.sock")
	if err != nil {
		t.Fatalf("Acquire b failed: %v", err)
	}
	a.Release(KeepAlive)

	// paths are compared byte-exact, no normalization
	c, err := pool.Acquire(ctx, "/tmp/./a.sock")
	if err != nil {
		t.Fatalf("Acquire ./a failed: %v", err)
	}
	if c.Reused {
		t.Error("/tmp/./a.sock must not share the bucket of /tmp/a.sock")
	}
	b.Release(KeepAlive)
	c.Release(KeepAlive)
}

func TestIdleExpiry(t *testing.T) {
	pool, connector := newTestPool(t, func(c *common.ClientConfig) {
		c.IdleTimeout = 20 * time.Millisecond
	})
	ctx := context.Background()

	lease, err := pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	lease.Release(KeepAlive)
	time.Sleep(40 * time.Millisecond)

	// expired on access
	lease, err = pool.Acquire(ctx, testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lease.Reused {
		t.Error("expired connection was reused")
	}
	lease.Release(KeepAlive)
	time.Sleep(40 * time.Millisecond)

	// expired by sweep
	if n := pool.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if s := pool.Stats(); s.Evictions != 2 || s.Idle != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
	if connector.closedCount() != 2 {
		t.Errorf("closed = %d, want 2", connector.closedCount())
	}
}

func TestBackgroundSweep(t *testing.T) {
	pool, _ := newTestPool(t, func(c *common.ClientConfig) {
		c.IdleTimeout = 10 * time.Millisecond
		c.SweepInterval = 10 * time.Millisecond
	})

	lease, err := pool.Acquire(context.Background(), testSocket)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	lease.Release(KeepAlive)

	deadline := time.Now().Add(2 * time.Second)
	for pool.Stats().Idle != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle connection was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDialFailureFreesSlot(t *testing.T) {
	pool, connector := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 1
	})
	connector.fail = errors.New("no such file or directory")

	_, err := pool.Acquire(context.Background(), testSocket)
	if !errors.Is(err, errs.ErrConnectFailed) {
		t.Fatalf("expected ConnectFailed, got %v", err)
	}
	stats, _ := pool.BucketStats(testSocket)
	if stats.InUse != 0 {
		t.Errorf("failed dial kept its slot: %+v", stats)
	}

	connector.mu.Lock()
	connector.fail = nil
	connector.mu.Unlock()
	lease, err := pool.Acquire(context.Background(), testSocket)
	if err != nil {
		t.Fatalf("Acquire after failure failed: %v", err)
	}
	lease.Release(KeepAlive)
}

func TestClose(t *testing.T) {
	pool, connector := newTestPool(t, func(c *common.ClientConfig) {
		c.MaxConnsPerSocket = 2
		c.PoolWaitTimeout = 10 * time.Second
	})
	ctx := context.Background()

	idle, _ := pool.Acquire(ctx, testSocket)
	held, _ := pool.Acquire(ctx, testSocket)
	idle.Release(KeepAlive)
	other, _ := pool.Acquire(ctx, testSocket) // reuses the idle one

	done := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(ctx, testSocket)
		done <- err
	}()
	waitForWaiting(t, pool, 1)

	pool.Close()
	if err := <-done; !errors.Is(err, errs.ErrPoolClosed) {
		t.Errorf("waiter: expected PoolClosed, got %v", err)
	}
	if _, err := pool.Acquire(ctx, testSocket); !errors.Is(err, errs.ErrPoolClosed) {
		t.Errorf("expected PoolClosed, got %v", err)
	}

	// leases outlive the pool but their connections are closed on release
	held.Release(KeepAlive)
	other.Release(KeepAlive)
	if connector.closedCount() != 2 {
		t.Errorf("closed = %d, want 2", connector.closedCount())
	}
	if s := pool.Stats(); s.Idle != 0 || s.InUse != 0 {
		t.Errorf("unexpected stats after close %+v", s)
	}
}

func TestAcquireEmptySocketPath(t *testing.T) {
	pool, _ := newTestPool(t, nil)
	if _, err := pool.Acquire(context.Background(), ""); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func waitForWaiting(t *testing.T, pool *ConnectionPool, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, _ := pool.BucketStats(testSocket)
		if stats.Waiting == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters, have %d", n, stats.Waiting)
		}
		time.Sleep(time.Millisecond)
	}
}

func assertNoResult(t *testing.T, results chan *Lease) {
	t.Helper()
	select {
	case lease := <-results:
		t.Fatalf("a second waiter woke up: %v", lease)
	case <-time.After(50 * time.Millisecond):
	}
}
