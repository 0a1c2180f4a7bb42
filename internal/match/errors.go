package match

import "errors"

// Error kinds. Every error returned by the registry matches exactly one of them with errors.Is.
var (
	ErrInvalidInput = errf("invalid input")
	ErrNotFound     = errf("Match not found")
	ErrInvalidState = errf("match is not in the right phase")
	// ErrNotYourTurn is expected under normal play and is not an anomaly.
	ErrNotYourTurn = errf("Not your turn")
)

// Specific reasons, surfaced verbatim to callers.
var (
	ErrNameRequired    = reason(ErrInvalidInput, "playerName is required")
	ErrMatchIDRequired = reason(ErrInvalidInput, "matchId is required")
	ErrInvalidPlayer   = reason(ErrInvalidInput, "Invalid playerId")
	ErrInvalidAction   = reason(ErrInvalidInput, "Invalid action type")
	ErrNotWaiting      = reason(ErrInvalidState, "Match is not accepting players")
	ErrMatchFull       = reason(ErrInvalidState, "Match is full")
	ErrNotActive       = reason(ErrInvalidState, "Match is not active")
)

// Kind returns the error kind err belongs to, or nil for errors from elsewhere.
func Kind(err error) error {
	for _, k := range []error{ErrInvalidInput, ErrNotFound, ErrInvalidState, ErrNotYourTurn} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

type reasonErr struct {
	kind error
	msg  string
}

func (e *reasonErr) Error() string { return e.msg }
func (e *reasonErr) Unwrap() error { return e.kind }

func reason(kind error, msg string) error { return &reasonErr{kind: kind, msg: msg} }
