// Package transport defines the interface for the server's network listeners.
//
// The HTTP transport carries the synthesis API; the gRPC transport exposes
// the standard health service for infrastructure probes. main starts every
// enabled transport and closes them on shutdown.
package transport

import "context"

// Transport is the interface that every listener must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "http", "grpc").
	Name() string

	// Listen starts accepting connections. It blocks until the context is
	// cancelled or the listener fails.
	Listen(ctx context.Context) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
