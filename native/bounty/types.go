package bounty

import (
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Status enumerates the lifecycle states of a bounty. StatusAbsent is never
// persisted; it is what lookups report for keys with no record.
type Status uint8

const (
	StatusAbsent Status = iota
	StatusOpen
	StatusVerifying
	StatusPaid
	StatusRefunded
)

// String renders the canonical lowercase status name used in events.
func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusOpen:
		return "open"
	case StatusVerifying:
		return "verifying"
	case StatusPaid:
		return "paid"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Valid reports whether the status is a persistable lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusVerifying, StatusPaid, StatusRefunded:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRefunded
}

// Bounty is an escrowed token amount tied to one source-control issue.
// Issuer, Token, Amount and CreatedAt are immutable once funded; Status is
// the only field driving behaviour. ClaimAuthor stays empty until the bounty
// is paid, ActiveRequestID is zero whenever no verification is outstanding.
type Bounty struct {
	Key             [32]byte `json:"key"`
	Issuer          [20]byte `json:"issuer"`
	Token           string   `json:"token"`
	Amount          *big.Int `json:"amount"`
	Status          Status   `json:"status"`
	CreatedAt       int64    `json:"createdAt"`
	ClaimedAt       int64    `json:"claimedAt"`
	ClaimAuthor     string   `json:"claimAuthor"`
	ActiveRequestID [32]byte `json:"activeRequestId"`
	RepoOwner       string   `json:"repoOwner"`
	RepoName        string   `json:"repoName"`
	IssueID         string   `json:"issueId"`
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored instance.
func (b *Bounty) Clone() *Bounty {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// DeriveKey computes the deterministic bounty key for an issue triple: a
// keccak256 hash over the plain concatenation of the three UTF-8 strings.
// The layout is shared with off-chain clients, so it must never change.
func DeriveKey(repoOwner, repoName, issueID string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(repoOwner), []byte(repoName), []byte(issueID))
}

// NormalizeToken canonicalises a token symbol to uppercase and rejects
// blank identities.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	return trimmed, nil
}
