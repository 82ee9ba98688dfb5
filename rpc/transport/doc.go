// Package transport defines the abstractions between the HTTP client and the
// sockets it talks over. It provides a common contract that all connectors must
// fulfill, so the connection pool and the exchange logic stay independent of how
// a connection is established.
//
// The package focuses on:
//   - Defining clear interfaces for dialing and listening
//   - Applying socket settings to freshly dialed connections
//   - Enabling fake connectors in tests
//
// Key Components:
//
//   - IClientConnector: Dials an endpoint and upgrades the resulting connection
//     with the configured socket settings. Implemented by unix.NewClientConnector.
//
//   - IServerConnector: Binds an endpoint and returns a listener. Used by test
//     servers and local tooling.
//
// Sub packages:
//
//   - unix: Unix domain socket connectors with errno based failure classification
//   - http1: HTTP/1.1 request serialization and response parsing
//   - base: The per-socket connection pool
package transport
