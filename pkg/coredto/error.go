package coredto

import "errors"

// Error codes returned to the initiator of a core operation. All of these
// are recoverable, caller-facing conditions.
const (
	CodeInvalidState   = "invalid_state"
	CodeNotYourTurn    = "not_your_turn"
	CodeIllegalMove    = "illegal_move"
	CodeDuplicateOffer = "duplicate_offer"
	CodeNoPendingOffer = "no_pending_offer"
	CodeOwnOffer       = "cannot_accept_own_offer"
	CodeNotFound       = "not_found"
	CodeUnauthorized   = "unauthorized"
	CodeClockExpired   = "clock_expired"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game session error"
}

var (
	ErrInvalidState   = &DomainError{Code: CodeInvalidState, Message: "match is not active", Retryable: false}
	ErrNotYourTurn    = &DomainError{Code: CodeNotYourTurn, Message: "not your turn"}
	ErrIllegalMove    = &DomainError{Code: CodeIllegalMove, Message: "illegal move"}
	ErrDuplicateOffer = &DomainError{Code: CodeDuplicateOffer, Message: "draw already offered"}
	ErrNoPendingOffer = &DomainError{Code: CodeNoPendingOffer, Message: "no pending draw offer"}
	ErrOwnOffer       = &DomainError{Code: CodeOwnOffer, Message: "cannot accept own draw offer"}
	ErrNotFound       = &DomainError{Code: CodeNotFound, Message: "match not found"}
	ErrUnauthorized   = &DomainError{Code: CodeUnauthorized, Message: "actor is not a participant"}
	ErrClockExpired   = &DomainError{Code: CodeClockExpired, Message: "clock expired while moving"}

	// ErrConcurrentUpdate is surfaced when a transaction on the match key
	// loses a race with another operation. Callers may re-read and retry
	// idempotent operations.
	ErrConcurrentUpdate = &DomainError{Code: CodeInvalidState, Message: "concurrent update detected", Retryable: true}
)

// CodeOf extracts the domain error code, or "" for non-domain errors.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
