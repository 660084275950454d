package challenges

import "errors"

// Validation errors: the creation parameters are malformed and the call must
// not be retried unchanged.
var (
	ErrInvalidEntryFee = errors.New("entry fee must be greater than zero")
	ErrInvalidDuration = errors.New("duration must be greater than zero")
	ErrInvalidGoal     = errors.New("goal must be greater than zero")
	ErrInvalidType     = errors.New("unsupported challenge type")
)

// State-conflict errors: the operation is valid in isolation but inconsistent
// with the current lifecycle state.
var (
	ErrChallengeClosed  = errors.New("challenge is already closed")
	ErrChallengeEnded   = errors.New("challenge window has ended")
	ErrChallengeNotOver = errors.New("challenge is not over yet")
	ErrAlreadyJoined    = errors.New("player has already joined this challenge")
	ErrNotJoined        = errors.New("player has not joined this challenge")
	ErrHasParticipants  = errors.New("challenge has participants and cannot be cancelled")
)

// Authorization errors: the caller lacks rights or used the wrong asset
// channel. Never retryable with the same caller.
var (
	ErrNotCreator       = errors.New("caller is not the challenge creator")
	ErrWrongPaymentType = errors.New("payment channel does not match challenge denomination")
)
