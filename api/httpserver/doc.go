// Package httpserver provides the shared HTTP server plumbing for the
// aggregation services: a chi router with standard middleware, request
// logging, health and drain endpoints, optional pprof, and graceful
// shutdown. Protocol-specific routes are registered through the
// RouteRegistrar interface.
package httpserver
