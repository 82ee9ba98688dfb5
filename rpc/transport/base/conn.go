package base

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// bufferSize of the per-connection reader and writer
const bufferSize = 4096

// Outcome tells the pool what to do with a released connection
type Outcome int

const (
	// KeepAlive returns the connection for reuse. Only valid if the exchange ended
	// cleanly on a self-delimited message and neither side asked to close.
	KeepAlive Outcome = iota
	// Discard closes the connection
	Discard
)

func (o Outcome) String() string {
	if o == KeepAlive {
		return "keep-alive"
	}
	return "discard"
}

// --------------------------------------------------------------------------
// Pooled connection
// --------------------------------------------------------------------------

// Conn is one stream to one socket path plus its buffered reader and writer. The
// buffers belong to the connection, so bytes read ahead stay with it across exchanges.
type Conn struct {
	net.Conn
	BR *bufio.Reader
	BW *bufio.Writer

	socketPath string
	createdAt  time.Time
	lastUsed   time.Time
	exchanges  int
}

func newConn(nc net.Conn, socketPath string) *Conn {
	now := time.Now()
	return &Conn{
		Conn:       nc,
		BR:         bufio.NewReaderSize(nc, bufferSize),
		BW:         bufio.NewWriterSize(nc, bufferSize),
		socketPath: socketPath,
		createdAt:  now,
		lastUsed:   now,
	}
}

// SocketPath returns the path the connection was dialed to
func (c *Conn) SocketPath() string {
	return c.socketPath
}

// Exchanges returns how many leases the connection has served, the current one included
func (c *Conn) Exchanges() int {
	return c.exchanges
}

// expired reports whether the connection sat idle for at least timeout
func (c *Conn) expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(c.lastUsed) >= timeout
}

// --------------------------------------------------------------------------
// Lease
// --------------------------------------------------------------------------

// Lease grants exclusive use of a pooled connection for one exchange. It must be
// released exactly once; later calls to Release are ignored.
type Lease struct {
	Conn *Conn
	// Reused is set if the connection served an earlier exchange
	Reused bool

	pool   *ConnectionPool
	bucket *bucket
	once   sync.Once
}

// Release returns the connection to the pool or closes it, depending on outcome
func (l *Lease) Release(outcome Outcome) {
	l.once.Do(func() {
		l.pool.release(l.bucket, l.Conn, outcome)
	})
}
