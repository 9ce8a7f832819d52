package bounty

import "errors"

// Every gated entry point fails with one of these named values so callers
// can branch programmatically. Authorization is always checked before any
// state-dependent condition.
var (
	ErrUnauthorized       = errors.New("bounty: unauthorized")
	ErrBountyExists       = errors.New("bounty: bounty already funded for issue")
	ErrInvalidStatus      = errors.New("bounty: invalid status for requested transition")
	ErrInvalidAmount      = errors.New("bounty: amount must be positive")
	ErrInvalidToken       = errors.New("bounty: token identity required")
	ErrInvalidBountyKey   = errors.New("bounty: invalid bounty key")
	ErrTimelockNotExpired = errors.New("bounty: refund timelock not expired")
	ErrGraceNotElapsed    = errors.New("bounty: verification grace period still active")
)
