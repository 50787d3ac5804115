// Package server provides the HTTP surface for StockPulse.
//
// This package is internal to StockPulse and hosts the dashboard, the JSON
// API used to add, edit and remove tracked items and to change settings, a
// Server-Sent Events stream of item changes and restock alerts, and the
// Prometheus metrics endpoint.
//
// The server supports graceful shutdown via context cancellation and uses
// write deadlines on SSE connections to prevent goroutine leaks.
package server
