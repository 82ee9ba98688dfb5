// Package base provides the connection pool the HTTP client is built on. Connections
// are partitioned by socket path; each path has its own bucket with an idle stack, a
// count of connections in use and a FIFO queue of waiting callers.
//
// The package focuses on:
//   - Reusing idle connections, freshest first, while dropping expired ones
//   - Bounding the connections in use per socket path
//   - Fair, bounded waiting when a socket is at its ceiling
//   - Evicting idle connections in the background
//
// Key Components:
//
//   - ConnectionPool: Hands out leases through Acquire. Dialing goes through a
//     transport.IClientConnector, so the pool itself knows nothing about sockets.
//     Buckets live in a lock-free xsync map and are mutated under their own mutex.
//
//   - Lease: Exclusive use of one Conn for one exchange. Release(KeepAlive) returns
//     the connection, Release(Discard) closes it. Releasing twice is a no-op.
//
//   - Conn: A pooled stream with its buffered reader and writer and the time it was
//     last used.
//
// Fairness:
//
//	A released connection (or the slot of a discarded one) is handed directly to the
//	first waiter instead of being put back, so every release wakes exactly one waiter
//	and late arrivals cannot overtake the queue.
//
// Metrics:
//
//	Dials, reuses, discards, evictions, waits and wait timeouts are counted per pool
//	(see Stats) and process wide as VictoriaMetrics counters named unixhttp_pool_*.
package base
