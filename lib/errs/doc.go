// Package errs defines the error taxonomy shared by every layer of the client:
// the address codec, the unix connector, the HTTP/1.1 codec, the connection pool
// and the request exchange.
//
// Every failure is reported as an *Error carrying a Kind. Callers match kinds with
// errors.Is against the package sentinels and reach the reason and the wrapped
// cause with errors.As:
//
//	resp, err := c.Execute(ctx, req)
//	if errors.Is(err, errs.ErrPoolExhausted) {
//	    // back off and try again later
//	}
//
//	var e *errs.Error
//	if errors.As(err, &e) && e.Kind == errs.KindConnectFailed {
//	    fmt.Println(e.Reason) // not found, permission denied, ...
//	}
//
// Framing violations (MalformedStatusLine, MalformedHeader, MalformedChunk,
// TruncatedBody) are always fatal to the exchange and force the connection closed.
package errs
