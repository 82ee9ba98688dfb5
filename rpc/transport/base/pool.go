package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/pool")

// Process wide counters, shared by all pools
var (
	dialsTotal        = metrics.NewCounter("unixhttp_pool_dials_total")
	dialErrorsTotal   = metrics.NewCounter("unixhttp_pool_dial_errors_total")
	reusesTotal       = metrics.NewCounter("unixhttp_pool_reuses_total")
	discardsTotal     = metrics.NewCounter("unixhttp_pool_discards_total")
	evictionsTotal    = metrics.NewCounter("unixhttp_pool_evictions_total")
	waitsTotal        = metrics.NewCounter("unixhttp_pool_waits_total")
	waitTimeoutsTotal = metrics.NewCounter("unixhttp_pool_wait_timeouts_total")
)

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// grant is what a releasing exchange hands to the first waiter of a bucket:
// a live connection, a free slot to dial into (conn == nil) or a pool error
type grant struct {
	conn *Conn
	err  error
}

type waiter struct {
	ch chan grant // buffered, receives exactly one grant
}

// bucket holds the connections of one socket path
type bucket struct {
	socketPath string

	mu      sync.Mutex
	idle    []*Conn // stack, the freshest connection is last
	inUse   int     // leased or dialing, always <= MaxConnsPerSocket
	waiters []*waiter
}

// BucketStats is a snapshot of one socket path
type BucketStats struct {
	SocketPath string
	Idle       int
	InUse      int
	Waiting    int
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Dials        uint64
	DialErrors   uint64
	Reuses       uint64
	Discards     uint64
	Evictions    uint64
	Waits        uint64
	WaitTimeouts uint64
	Idle         int
	InUse        int
}

// ConnectionPool keeps idle connections per socket path and bounds the number of
// connections in use per path. It is safe for concurrent use.
type ConnectionPool struct {
	connector transport.IClientConnector
	config    common.ClientConfig
	buckets   *xsync.MapOf[string, *bucket]

	closed    atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once
	sweeperWg sync.WaitGroup

	dials        atomic.Uint64
	dialErrors   atomic.Uint64
	reuses       atomic.Uint64
	discards     atomic.Uint64
	evictions    atomic.Uint64
	waits        atomic.Uint64
	waitTimeouts atomic.Uint64
}

// -----------------------------------------------------------
// Pool Factory Method
// -----------------------------------------------------------

// NewConnectionPool creates a pool that dials through connector. Unset limits in config
// fall back to their defaults. With a positive SweepInterval a background goroutine
// evicts expired idle connections until Close is called.
func NewConnectionPool(connector transport.IClientConnector, config common.ClientConfig) *ConnectionPool {
	p := &ConnectionPool{
		connector: connector,
		config:    config.Normalize(),
		buckets:   xsync.NewMapOf[string, *bucket](),
		stopCh:    make(chan struct{}),
	}

	if p.config.SweepInterval > 0 {
		p.sweeperWg.Add(1)
		go p.sweepLoop()
	}

	Logger.Debugf("Created connection pool using %s transport (%d connections per socket)",
		connector.GetName(), p.config.MaxConnsPerSocket)
	return p
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Acquire leases a connection to socketPath. The freshest idle connection is reused
// first, expired ones are closed on the way. Without an idle connection a new one is
// dialed if the socket is below its ceiling, otherwise the caller queues FIFO until a
// connection is released, PoolWaitTimeout passes (ErrPoolExhausted) or ctx is done.
func (p *ConnectionPool) Acquire(ctx context.Context, socketPath string) (*Lease, error) {
	if socketPath == "" {
		return nil, errs.Newf(errs.KindInvalidInput, "empty socket path")
	}
	if p.closed.Load() {
		return nil, errs.ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindPoolExhausted, "context done before acquire", err)
	}

	b, _ := p.buckets.LoadOrCompute(socketPath, func() *bucket {
		return &bucket{socketPath: socketPath}
	})

	b.mu.Lock()
	if p.closed.Load() {
		b.mu.Unlock()
		return nil, errs.ErrPoolClosed
	}

	// freshest idle connection first
	now := time.Now()
	var stale []*Conn
	for len(b.idle) > 0 {
		c := b.idle[len(b.idle)-1]
		b.idle[len(b.idle)-1] = nil
		b.idle = b.idle[:len(b.idle)-1]

		// bytes nobody asked for mean the peer is out of sync or closing
		if c.expired(now, p.config.IdleTimeout) || c.BR.Buffered() > 0 {
			stale = append(stale, c)
			continue
		}
		b.inUse++
		b.mu.Unlock()
		p.evict(stale)
		return p.reuse(b, c), nil
	}

	// dial if below the ceiling
	if b.inUse < p.config.MaxConnsPerSocket {
		b.inUse++
		b.mu.Unlock()
		p.evict(stale)
		return p.dial(ctx, b)
	}

	// otherwise wait for a release
	w := &waiter{ch: make(chan grant, 1)}
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()
	p.evict(stale)

	p.waits.Add(1)
	waitsTotal.Inc()
	Logger.Debugf("Waiting for a connection to %s (%d in use)", socketPath, p.config.MaxConnsPerSocket)

	return p.wait(ctx, b, w)
}

// Sweep closes every idle connection that exceeded IdleTimeout and returns how many it closed
func (p *ConnectionPool) Sweep() int {
	now := time.Now()
	total := 0
	p.buckets.Range(func(_ string, b *bucket) bool {
		b.mu.Lock()
		var stale []*Conn
		kept := b.idle[:0]
		for _, c := range b.idle {
			if c.expired(now, p.config.IdleTimeout) {
				stale = append(stale, c)
			} else {
				kept = append(kept, c)
			}
		}
		for i := len(kept); i < len(b.idle); i++ {
			b.idle[i] = nil
		}
		b.idle = kept
		b.mu.Unlock()

		p.evict(stale)
		total += len(stale)
		return true
	})
	if total > 0 {
		Logger.Debugf("Evicted %d idle connections", total)
	}
	return total
}

// Close closes all idle connections and fails all waiters with ErrPoolClosed.
// Leased connections are closed when they are released.
func (p *ConnectionPool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stopCh)
		p.sweeperWg.Wait()

		p.buckets.Range(func(_ string, b *bucket) bool {
			b.mu.Lock()
			idle := b.idle
			waiters := b.waiters
			b.idle = nil
			b.waiters = nil
			b.mu.Unlock()

			for _, c := range idle {
				c.Close()
			}
			for _, w := range waiters {
				w.ch <- grant{err: errs.ErrPoolClosed}
			}
			return true
		})
		Logger.Debugf("Connection pool closed")
	})
	return nil
}

// Stats returns a snapshot of the pool counters
func (p *ConnectionPool) Stats() Stats {
	s := Stats{
		Dials:        p.dials.Load(),
		DialErrors:   p.dialErrors.Load(),
		Reuses:       p.reuses.Load(),
		Discards:     p.discards.Load(),
		Evictions:    p.evictions.Load(),
		Waits:        p.waits.Load(),
		WaitTimeouts: p.waitTimeouts.Load(),
	}
	p.buckets.Range(func(_ string, b *bucket) bool {
		b.mu.Lock()
		s.Idle += len(b.idle)
		s.InUse += b.inUse
		b.mu.Unlock()
		return true
	})
	return s
}

// BucketStats returns a snapshot for one socket path. ok is false if the pool never
// saw the path.
func (p *ConnectionPool) BucketStats(socketPath string) (stats BucketStats, ok bool) {
	b, ok := p.buckets.Load(socketPath)
	if !ok {
		return BucketStats{SocketPath: socketPath}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketStats{
		SocketPath: socketPath,
		Idle:       len(b.idle),
		InUse:      b.inUse,
		Waiting:    len(b.waiters),
	}, true
}

// Config returns the normalized configuration of the pool
func (p *ConnectionPool) Config() common.ClientConfig {
	return p.config
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// wait blocks until w receives a grant, the wait times out or ctx is done
func (p *ConnectionPool) wait(ctx context.Context, b *bucket, w *waiter) (*Lease, error) {
	timer := time.NewTimer(p.config.PoolWaitTimeout)
	defer timer.Stop()

	select {
	case g := <-w.ch:
		return p.redeem(ctx, b, g)

	case <-timer.C:
		if p.dequeue(b, w) {
			p.waitTimeouts.Add(1)
			waitTimeoutsTotal.Inc()
			return nil, errs.Newf(errs.KindPoolExhausted, "no connection to %s within %s", b.socketPath, p.config.PoolWaitTimeout)
		}
		// a grant raced the timer, use it
		return p.redeem(ctx, b, <-w.ch)

	case <-ctx.Done():
		if !p.dequeue(b, w) {
			// a grant raced the cancellation, pass it on
			p.forward(b, <-w.ch)
		}
		return nil, errs.New(errs.KindPoolExhausted, "wait for connection canceled", ctx.Err())
	}
}

// dequeue removes w from the waiters of b. false means w was already granted.
func (p *ConnectionPool) dequeue(b *bucket, w *waiter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.waiters {
		if other == w {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// redeem turns a grant into a lease
func (p *ConnectionPool) redeem(ctx context.Context, b *bucket, g grant) (*Lease, error) {
	switch {
	case g.err != nil:
		return nil, g.err
	case g.conn != nil:
		return p.reuse(b, g.conn), nil
	default:
		return p.dial(ctx, b)
	}
}

// forward hands an unused grant to the next waiter, or back to the bucket
func (p *ConnectionPool) forward(b *bucket, g grant) {
	switch {
	case g.err != nil:
	case g.conn != nil:
		p.release(b, g.conn, KeepAlive)
	default:
		p.releaseSlot(b)
	}
}

func (p *ConnectionPool) reuse(b *bucket, c *Conn) *Lease {
	c.exchanges++
	p.reuses.Add(1)
	reusesTotal.Inc()
	return &Lease{Conn: c, Reused: true, pool: p, bucket: b}
}

// dial opens a connection into a slot already counted in b.inUse
func (p *ConnectionPool) dial(ctx context.Context, b *bucket) (*Lease, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.config.ConnectTimeout)
	defer cancel()

	nc, err := p.connector.Connect(dialCtx, b.socketPath)
	if err == nil {
		if uerr := p.connector.UpgradeConnection(nc, p.config); uerr != nil {
			nc.Close()
			err = errs.ConnectFailed(errs.ReasonOther, b.socketPath, uerr)
		}
	}
	if err != nil {
		p.dialErrors.Add(1)
		dialErrorsTotal.Inc()
		p.releaseSlot(b)
		return nil, err
	}

	p.dials.Add(1)
	dialsTotal.Inc()
	Logger.Debugf("Dialed %s using %s transport", b.socketPath, p.connector.GetName())

	c := newConn(nc, b.socketPath)
	c.exchanges = 1
	return &Lease{Conn: c, pool: p, bucket: b}, nil
}

// release ends a lease. The slot of the connection passes to the first waiter, so
// exactly one waiter wakes per release.
func (p *ConnectionPool) release(b *bucket, c *Conn, outcome Outcome) {
	if outcome == KeepAlive && !p.closed.Load() {
		c.lastUsed = time.Now()
		// clear deadlines left over from the exchange
		c.SetDeadline(time.Time{})

		b.mu.Lock()
		if !p.closed.Load() {
			if w := b.popWaiter(); w != nil {
				w.ch <- grant{conn: c}
				b.mu.Unlock()
				return
			}
			if len(b.idle) < p.config.MaxIdlePerSocket {
				b.idle = append(b.idle, c)
				b.inUse--
				b.mu.Unlock()
				return
			}
		}
		b.mu.Unlock()
	}

	c.Close()
	if outcome == Discard {
		p.discards.Add(1)
		discardsTotal.Inc()
	}
	p.releaseSlot(b)
}

// releaseSlot frees one in-use slot of b, handing it to the first waiter if any
func (p *ConnectionPool) releaseSlot(b *bucket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.popWaiter(); w != nil {
		w.ch <- grant{}
		return
	}
	b.inUse--
}

// popWaiter removes and returns the first waiter. The caller holds b.mu.
func (b *bucket) popWaiter() *waiter {
	if len(b.waiters) == 0 {
		return nil
	}
	w := b.waiters[0]
	b.waiters[0] = nil
	b.waiters = b.waiters[1:]
	return w
}

// evict closes connections removed from a bucket
func (p *ConnectionPool) evict(conns []*Conn) {
	for _, c := range conns {
		c.Close()
	}
	if n := uint64(len(conns)); n > 0 {
		p.evictions.Add(n)
		evictionsTotal.Add(len(conns))
	}
}

// sweepLoop runs Sweep every SweepInterval until the pool is closed
func (p *ConnectionPool) sweepLoop() {
	defer p.sweeperWg.Done()
	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Sweep()
		case <-p.stopCh:
			return
		}
	}
}
