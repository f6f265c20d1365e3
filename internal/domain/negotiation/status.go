package negotiation

import (
	"fmt"
	"strings"
)

// SessionStatus is the negotiation session lifecycle state.
type SessionStatus string

const (
	SessionOpen             SessionStatus = "open"
	SessionAwaitingResponse SessionStatus = "awaiting_response"
	SessionResponded        SessionStatus = "responded"
	SessionResolved         SessionStatus = "resolved"
	SessionCancelled        SessionStatus = "cancelled"
)

// IsValid returns true if the status is a known value.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionOpen, SessionAwaitingResponse, SessionResponded, SessionResolved, SessionCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states a session never leaves.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionResolved || s == SessionCancelled
}

// IsActive returns true for the states covered by the one-active-session-per-proposal rule.
func (s SessionStatus) IsActive() bool {
	return s.IsValid() && !s.IsTerminal()
}

// AcceptsResponse returns true while the consultant may still answer.
func (s SessionStatus) AcceptsResponse() bool {
	return s == SessionOpen || s == SessionAwaitingResponse
}

// CanTransitionTo checks whether moving to target is allowed.
// A responded session may still be cancelled until its counter has been materialized.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	switch s {
	case SessionOpen:
		return target == SessionAwaitingResponse || target == SessionResponded || target == SessionCancelled
	case SessionAwaitingResponse:
		return target == SessionResponded || target == SessionCancelled
	case SessionResponded:
		return target == SessionResolved || target == SessionCancelled
	default:
		return false
	}
}

// ParseSessionStatus normalizes and validates a stored or user-supplied status.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	s := SessionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown session status %q", raw)
	}
	return s, nil
}

// ActiveStatuses lists the non-terminal statuses as plain strings for queries and guards.
func ActiveStatuses() []string {
	return []string{string(SessionOpen), string(SessionAwaitingResponse), string(SessionResponded)}
}

// StatusesFrom returns every status that may transition into target.
func StatusesFrom(target SessionStatus) []string {
	var out []string
	for _, s := range []SessionStatus{SessionOpen, SessionAwaitingResponse, SessionResponded, SessionResolved, SessionCancelled} {
		if s.CanTransitionTo(target) {
			out = append(out, string(s))
		}
	}
	return out
}
