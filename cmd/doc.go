// Package cmd contains the standalone service binaries: the aggregator
// server and a client for submitting inputs to it.
package cmd
