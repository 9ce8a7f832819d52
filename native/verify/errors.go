package verify

import "errors"

var (
	ErrUnauthorized        = errors.New("verify: unauthorized")
	ErrInvalidBountyKey    = errors.New("verify: bounty key required")
	ErrUnexpectedRequestID = errors.New("verify: unexpected request id")
)
