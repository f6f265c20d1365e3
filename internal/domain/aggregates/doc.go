// Package aggregates defines the write boundaries of the negotiation engine.
//
// Each aggregate owns the transaction for its invariant-critical writes: the session
// aggregate owns the one-active-session rule and the status state machine, and the
// versioning aggregate owns gap-free version numbering per proposal.
package aggregates
