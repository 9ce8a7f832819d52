package bounty

import (
	"encoding/hex"
	"strconv"

	"gitbounty/core/types"
)

const (
	EventTypeBountyCreated      = "bounty.created"
	EventTypeBountyStatus       = "bounty.status_changed"
	EventTypeBountyPaid         = "bounty.paid"
	EventTypeBountyRefunded     = "bounty.refunded"
	EventTypeSecretsUpdated     = "bounty.secrets_updated"
	EventTypeCoordinatorRotated = "bounty.coordinator_rotated"
	EventTypeOwnerRotated       = "bounty.owner_rotated"
)

// NewCreatedEvent returns the canonical payload for a freshly funded bounty.
func NewCreatedEvent(b *Bounty) *types.Event {
	evt := newBountyEvent(EventTypeBountyCreated, b)
	if b != nil {
		evt.Attributes["repoOwner"] = b.RepoOwner
		evt.Attributes["repoName"] = b.RepoName
		evt.Attributes["issueId"] = b.IssueID
	}
	return evt
}

// NewStatusChangedEvent returns the payload emitted on every lifecycle
// transition, carrying both sides of the transition.
func NewStatusChangedEvent(b *Bounty, from Status) *types.Event {
	evt := newBountyEvent(EventTypeBountyStatus, b)
	evt.Attributes["from"] = from.String()
	if b != nil {
		evt.Attributes["to"] = b.Status.String()
	}
	return evt
}

// NewPaidEvent returns the payload emitted once escrowed funds are released
// to a verified claimant.
func NewPaidEvent(b *Bounty, recipient [20]byte) *types.Event {
	evt := newBountyEvent(EventTypeBountyPaid, b)
	evt.Attributes["recipient"] = hex.EncodeToString(recipient[:])
	if b != nil {
		evt.Attributes["claimAuthor"] = b.ClaimAuthor
	}
	return evt
}

// NewRefundedEvent returns the payload emitted when unclaimed funds return
// to the issuer after the timelock.
func NewRefundedEvent(b *Bounty) *types.Event {
	return newBountyEvent(EventTypeBountyRefunded, b)
}

// NewSecretsUpdatedEvent records a rotation of the hosted-secret
// coordinates forwarded to the oracle layer. The secret material itself
// never appears on the ledger.
func NewSecretsUpdatedEvent(slot uint8, version uint64) *types.Event {
	return &types.Event{Type: EventTypeSecretsUpdated, Attributes: map[string]string{
		"slot":    strconv.FormatUint(uint64(slot), 10),
		"version": strconv.FormatUint(version, 10),
	}}
}

// NewCoordinatorRotatedEvent records a trusted-coordinator rotation.
func NewCoordinatorRotatedEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeCoordinatorRotated, Attributes: map[string]string{
		"coordinator": hex.EncodeToString(addr[:]),
	}}
}

// NewOwnerRotatedEvent records an audited owner rotation.
func NewOwnerRotatedEvent(addr [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnerRotated, Attributes: map[string]string{
		"owner": hex.EncodeToString(addr[:]),
	}}
}

func newBountyEvent(eventType string, b *Bounty) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["key"] = hex.EncodeToString(b.Key[:])
	attrs["issuer"] = hex.EncodeToString(b.Issuer[:])
	attrs["token"] = b.Token
	if b.Amount != nil {
		attrs["amount"] = b.Amount.String()
	}
	attrs["status"] = b.Status.String()
	attrs["createdAt"] = strconv.FormatInt(b.CreatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
