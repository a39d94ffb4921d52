// Package protocol owns the techread wire contract.
//
// Ownership boundary:
// - message kinds, subtypes and ask kinds (closed sets)
// - request and message envelopes for the control channel
// - the shared HTTP status rule used by every endpoint
// - wire-level error taxonomy
package protocol
