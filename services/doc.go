// Package services exposes the aggregation engine over HTTP.
//
// EagleService fronts the synchronous aggregator: clients register, exchange
// per-round keys, deal shares to the committee, and submit masked inputs
// against per-phase deadlines. OwlService fronts the asynchronous aggregator:
// a single contribution endpoint accepts masked vectors with piggybacked
// share bundles, and windows close on a rolling condition.
//
// Protocol errors map onto HTTP status codes: bad signatures are 401,
// duplicates are 409, late arrivals are 410, malformed values are 422.
// Callers distinguish "come back with the next window" (410) from "your
// submission is broken" (422) by status alone.
package services
