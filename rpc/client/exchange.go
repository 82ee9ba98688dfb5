package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/unixhttp/lib/errs"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/ValentinKolb/unixhttp/rpc/transport/base"
	"github.com/ValentinKolb/unixhttp/rpc/transport/http1"
)

// ErrBodyClosed is returned when reading a response body after Close
var ErrBodyClosed = errors.New("unixhttp: read on closed response body")

// aLongTimeAgo is a deadline that interrupts blocked I/O immediately
var aLongTimeAgo = time.Unix(1, 0)

// state of one exchange
type state int

const (
	stateStart state = iota
	stateAcquiring
	stateWriting
	stateReadingHeaders
	stateReadingBody
	stateDone
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateAcquiring:
		return "acquiring"
	case stateWriting:
		return "writing"
	case stateReadingHeaders:
		return "reading headers"
	case stateReadingBody:
		return "reading body"
	case stateDone:
		return "done"
	default:
		return "aborted"
	}
}

// exchange drives one request/response pair over one leased connection. Every path
// out of it releases the lease exactly once.
type exchange struct {
	ctx    context.Context
	pool   *base.ConnectionPool
	config common.ClientConfig
	req    *common.Request

	state  atomic.Int32
	lease  *base.Lease
	stop   func() bool // detaches the cancellation hook
	status int
	start  time.Time

	finishOnce sync.Once
	onDone     func()
}

func newExchange(ctx context.Context, pool *base.ConnectionPool, req *common.Request) *exchange {
	return &exchange{
		ctx:    ctx,
		pool:   pool,
		config: pool.Config(),
		req:    req,
		start:  time.Now(),
	}
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

// run performs the exchange up to the response head. The returned body keeps the
// lease until it reaches its end, fails or is closed.
func (ex *exchange) run() (*common.Response, error) {
	ex.setState(stateAcquiring)
	lease, err := ex.pool.Acquire(ex.ctx, ex.req.Target.SocketPath)
	if err != nil {
		ex.abort(err)
		return nil, err
	}
	ex.lease = lease
	conn := lease.Conn

	// one deadline for the whole exchange, cleared by the pool on release
	if ex.config.RequestTimeout > 0 {
		conn.SetDeadline(time.Now().Add(ex.config.RequestTimeout))
	}
	// cancellation interrupts blocked I/O by moving the deadline into the past
	ex.stop = context.AfterFunc(ex.ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})

	ex.setState(stateWriting)
	if err := http1.WriteRequest(conn.BW, ex.req); err != nil {
		err = ex.ioError(err)
		ex.abort(err)
		return nil, err
	}

	ex.setState(stateReadingHeaders)
	var head *http1.ResponseHead
	for {
		head, err = http1.ReadResponseHead(conn.BR, ex.config.MaxHeaderBytes)
		if err != nil {
			err = ex.ioError(err)
			ex.abort(err)
			return nil, err
		}
		if !head.IsInterim() {
			break
		}
		Logger.Debugf("Skipping interim response %d for %s", head.Status, ex.req)
	}
	ex.status = head.Status

	resp := &common.Response{
		Status:        head.Status,
		Reason:        head.Reason,
		Proto:         head.Proto,
		Header:        head.Header,
		ContentLength: head.ContentLength,
		Close:         head.Close || ex.req.Close || head.Status == 101,
		Request:       ex.req,
	}

	ex.setState(stateReadingBody)
	if !http1.HasBody(head, ex.req.Method) {
		resp.ContentLength = 0
		resp.Body = noBody{}
		ex.finish(ex.outcome(resp.Close, true), nil)
		return resp, nil
	}

	resp.Body = &leasedBody{
		ex:        ex,
		body:      http1.NewBodyReader(conn.BR, head, ex.req.Method),
		keepAlive: !resp.Close,
	}
	return resp, nil
}

// outcome decides the fate of the connection after a body ended cleanly
func (ex *exchange) outcome(closeRequested, delimited bool) base.Outcome {
	if closeRequested || !delimited {
		return base.Discard
	}
	return base.KeepAlive
}

// abort ends a failed exchange and discards the connection
func (ex *exchange) abort(err error) {
	Logger.Debugf("Exchange %s aborted while %s: %v", ex.req, ex.getState(), err)
	ex.finish(base.Discard, err)
}

// finish releases the lease (if any) once and records the exchange
func (ex *exchange) finish(outcome base.Outcome, err error) {
	ex.finishOnce.Do(func() {
		// the cancellation hook may be running, the deadline can no longer be trusted
		if ex.stop != nil && !ex.stop() {
			outcome = base.Discard
		}
		if ex.lease != nil {
			ex.lease.Release(outcome)
		}

		if err != nil {
			ex.setState(stateAborted)
		} else {
			ex.setState(stateDone)
		}
		observeExchange(ex.start, ex.status, err != nil)

		if ex.onDone != nil {
			ex.onDone()
		}
	})
}

// ioError attributes an I/O failure to the context if that is what caused it
func (ex *exchange) ioError(err error) error {
	ctxErr := ex.ctx.Err()
	if ctxErr == nil {
		return err
	}
	kind, ok := errs.KindOf(err)
	if !ok || (kind != errs.KindReadFailed && kind != errs.KindWriteFailed) {
		return err
	}
	return errs.New(kind, "exchange canceled", ctxErr)
}

func (ex *exchange) setState(s state) {
	ex.state.Store(int32(s))
}

func (ex *exchange) getState() state {
	return state(ex.state.Load())
}

// --------------------------------------------------------------------------
// Response bodies
// --------------------------------------------------------------------------

// leasedBody streams a response body and ends the exchange when the body ends.
// Close before the end discards the connection instead of draining it.
type leasedBody struct {
	ex        *exchange
	body      http1.Body
	keepAlive bool

	closed atomic.Bool
	err    error // sticky, only touched by Read
}

func (b *leasedBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrBodyClosed
	}
	if b.err != nil {
		return 0, b.err
	}

	n, err := b.body.Read(p)
	switch {
	case err == io.EOF:
		b.err = io.EOF
		b.ex.finish(b.ex.outcome(!b.keepAlive, b.body.Delimited()), nil)
	case err != nil:
		err = b.ex.ioError(err)
		b.err = err
		b.ex.abort(err)
	}
	return n, err
}

func (b *leasedBody) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	// a no-op if the body already reached its end
	b.ex.finish(base.Discard, ErrBodyClosed)
	return nil
}

// noBody is the body of responses that cannot have one
type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (noBody) Close() error             { return nil }
