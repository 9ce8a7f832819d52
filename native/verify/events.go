package verify

import (
	"encoding/hex"
	"strconv"

	"gitbounty/core/types"
)

const (
	EventTypeClaimInitiated  = "verify.claim_initiated"
	EventTypeComplete        = "verify.completed"
	EventTypePayoutTriggered = "verify.payout_triggered"
	EventTypeScriptRotated   = "verify.script_rotated"
	EventTypeLedgerRotated   = "verify.ledger_rotated"
)

// NewClaimInitiatedEvent records the dispatch of a verification request.
func NewClaimInitiatedEvent(req *VerificationRequest, requestID [32]byte) *types.Event {
	attrs := map[string]string{
		"requestId": hex.EncodeToString(requestID[:]),
	}
	if req != nil {
		attrs["bountyKey"] = hex.EncodeToString(req.BountyKey[:])
		attrs["claimant"] = hex.EncodeToString(req.Claimant[:])
	}
	return &types.Event{Type: EventTypeClaimInitiated, Attributes: attrs}
}

// NewCompleteEvent records the arrival of an oracle callback. Exactly one
// of the result pair or the script error is populated.
func NewCompleteEvent(requestID [32]byte, verified bool, author string, scriptErr []byte) *types.Event {
	attrs := map[string]string{
		"requestId": hex.EncodeToString(requestID[:]),
	}
	if len(scriptErr) > 0 {
		attrs["scriptError"] = string(scriptErr)
	} else {
		attrs["verified"] = strconv.FormatBool(verified)
		attrs["author"] = author
	}
	return &types.Event{Type: EventTypeComplete, Attributes: attrs}
}

// NewPayoutTriggeredEvent records a successful handoff to the escrow
// ledger's payout entry point.
func NewPayoutTriggeredEvent(req *VerificationRequest, requestID [32]byte, author string) *types.Event {
	attrs := map[string]string{
		"requestId": hex.EncodeToString(requestID[:]),
		"author":    author,
	}
	if req != nil {
		attrs["bountyKey"] = hex.EncodeToString(req.BountyKey[:])
		attrs["claimant"] = hex.EncodeToString(req.Claimant[:])
	}
	return &types.Event{Type: EventTypePayoutTriggered, Attributes: attrs}
}

// NewScriptRotatedEvent records an owner update of the verification script
// source. Only a digest of the source is emitted.
func NewScriptRotatedEvent(digest [32]byte) *types.Event {
	return &types.Event{Type: EventTypeScriptRotated, Attributes: map[string]string{
		"sourceDigest": hex.EncodeToString(digest[:]),
	}}
}

// NewLedgerRotatedEvent records a trusted-ledger rotation.
func NewLedgerRotatedEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeLedgerRotated, Attributes: map[string]string{
		"ledger": hex.EncodeToString(addr[:]),
	}}
}
