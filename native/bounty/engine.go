package bounty

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"gitbounty/core/events"
	"gitbounty/core/types"
	"gitbounty/native/common"
)

const (
	// ModuleName identifies the escrow ledger for pause checks and module
	// address derivation.
	ModuleName = "bounty"

	// RefundTimelock is the minimum age of an OPEN bounty before the
	// issuer may reclaim the escrowed funds.
	RefundTimelock = 180 * 24 * time.Hour

	// ForceRejectGrace is how long a bounty must have sat in VERIFYING
	// before the owner may force it back to OPEN. Covers oracle requests
	// that error out upstream or whose callback never arrives.
	ForceRejectGrace = 7 * 24 * time.Hour
)

var (
	errNilState       = errors.New("bounty engine: state not configured")
	errNilCoordinator = errors.New("bounty engine: verification coordinator not configured")
)

// LedgerState is the persistence and token-custody surface the engine
// drives. The vault address holds every escrowed amount; Transfer is the
// only token-moving primitive and fails the whole operation on insufficient
// balance.
type LedgerState interface {
	BountyPut(*Bounty) error
	BountyGet(key [32]byte) (*Bounty, bool)
	Transfer(from, to [20]byte, token string, amount *big.Int) error
	VaultAddress() [20]byte
}

// ClaimVerifier is the slice of the verification coordinator the engine
// calls when a claim locks a bounty. Initiate returns the oracle-assigned
// request identifier; the result arrives later through the coordinator's
// callback path.
type ClaimVerifier interface {
	Initiate(caller [20]byte, key [32]byte, claimant [20]byte, args []string, secretsSlot uint8, secretsVersion uint64) ([32]byte, error)
}

type bountyEvent struct {
	evt *types.Event
}

func (e bountyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e bountyEvent) Event() *types.Event { return e.evt }

// Engine owns the bounty lifecycle state machine and all token custody.
// Every state-mutating entry point holds the single reentrancy guard for
// its duration, checks authorization before any state-dependent condition,
// and applies effects before interactions.
type Engine struct {
	state           LedgerState
	emitter         events.Emitter
	nowFn           func() int64
	guard           common.ReentrancyGuard
	pauses          common.PauseView
	addr            [20]byte
	owner           [20]byte
	coordinator     ClaimVerifier
	coordinatorAddr [20]byte
	secretsSlot     uint8
	secretsVersion  uint64
	refundTimelock  int64
	rejectGrace     int64
}

// NewEngine creates a bounty engine governed by the given owner address.
// The owner is injected at construction and mutable only through SetOwner.
func NewEngine(owner [20]byte) *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().Unix() },
		addr:           common.ModuleAddress(ModuleName),
		owner:          owner,
		refundTimelock: int64(RefundTimelock / time.Second),
		rejectGrace:    int64(ForceRejectGrace / time.Second),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state LedgerState) { e.state = state }

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for tests needing
// deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the address the engine presents when calling other
// modules.
func (e *Engine) ModuleAddress() [20]byte { return e.addr }

// Owner returns the current governing address.
func (e *Engine) Owner() [20]byte { return e.owner }

// SecretsCoordinates returns the hosted-secret slot and version forwarded
// with every verification request.
func (e *Engine) SecretsCoordinates() (uint8, uint64) {
	return e.secretsSlot, e.secretsVersion
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(bountyEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Get returns the stored bounty for the key, if any. Lookup misses report
// StatusAbsent through the boolean.
func (e *Engine) Get(key [32]byte) (*Bounty, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	b, ok := e.state.BountyGet(key)
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// FundIssue escrows amount of token against the issue triple. The key is
// deterministic over the triple, so at most one bounty can ever exist per
// issue; re-funding and top-ups are rejected with ErrBountyExists. The
// token pull is all-or-nothing: a failed transfer leaves no record behind.
func (e *Engine) FundIssue(caller [20]byte, token string, amount *big.Int, repoOwner, repoName, issueID string) (*Bounty, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if repoOwner == "" || repoName == "" || issueID == "" {
		return nil, ErrInvalidBountyKey
	}
	key := DeriveKey(repoOwner, repoName, issueID)
	if existing, ok := e.state.BountyGet(key); ok && existing.Amount != nil && existing.Amount.Sign() != 0 {
		return nil, ErrBountyExists
	}
	if err := e.state.Transfer(caller, e.state.VaultAddress(), normalized, amt); err != nil {
		return nil, fmt.Errorf("bounty: escrow deposit failed: %w", err)
	}
	b := &Bounty{
		Key:       key,
		Issuer:    caller,
		Token:     normalized,
		Amount:    amt,
		Status:    StatusOpen,
		CreatedAt: e.now(),
		RepoOwner: repoOwner,
		RepoName:  repoName,
		IssueID:   issueID,
	}
	if err := e.state.BountyPut(b); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(b))
	return b.Clone(), nil
}

// ClaimBounty locks the bounty for the calling claimant and dispatches a
// verification request citing the pull request. The VERIFYING flip is
// persisted before the coordinator call so a reentrant or synchronous
// coordinator can never observe a stale OPEN state; a failed dispatch rolls
// the record back. A bounty that is absent, already locked, paid or
// refunded uniformly fails with ErrInvalidStatus.
func (e *Engine) ClaimBounty(caller [20]byte, key [32]byte, prNumber, repoOwner, repoName, issueID string) (*Bounty, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if e.coordinator == nil {
		return nil, errNilCoordinator
	}
	if DeriveKey(repoOwner, repoName, issueID) != key {
		return nil, ErrInvalidBountyKey
	}
	b, ok := e.state.BountyGet(key)
	if !ok || b.Amount == nil || b.Amount.Sign() == 0 || b.Status != StatusOpen {
		return nil, ErrInvalidStatus
	}
	snapshot := b.Clone()
	b.Status = StatusVerifying
	b.ClaimedAt = e.now()
	if err := e.state.BountyPut(b); err != nil {
		return nil, err
	}
	args := []string{repoOwner, repoName, prNumber, issueID}
	requestID, err := e.coordinator.Initiate(e.addr, key, caller, args, e.secretsSlot, e.secretsVersion)
	if err != nil {
		if restoreErr := e.state.BountyPut(snapshot); restoreErr != nil {
			return nil, fmt.Errorf("bounty: dispatch failed (%v) and rollback failed: %w", err, restoreErr)
		}
		return nil, fmt.Errorf("bounty: verification dispatch failed: %w", err)
	}
	b.ActiveRequestID = requestID
	if err := e.state.BountyPut(b); err != nil {
		if restoreErr := e.state.BountyPut(snapshot); restoreErr != nil {
			return nil, fmt.Errorf("bounty: record request id failed (%v) and rollback failed: %w", err, restoreErr)
		}
		return nil, fmt.Errorf("bounty: record request id failed: %w", err)
	}
	e.emit(NewStatusChangedEvent(b, StatusOpen))
	return b.Clone(), nil
}

// CompleteBountyPayout releases the escrowed amount to the recipient after
// a successful verification. Only the registered coordinator may call it,
// and only while the bounty is VERIFYING, which also blocks a second payout
// attempt. The PAID flip and claim author are recorded before the transfer.
func (e *Engine) CompleteBountyPayout(caller [20]byte, key [32]byte, claimAuthor string, recipient [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != e.coordinatorAddr || e.coordinatorAddr == ([20]byte{}) {
		return ErrUnauthorized
	}
	b, ok := e.state.BountyGet(key)
	if !ok || b.Status != StatusVerifying {
		return ErrInvalidStatus
	}
	snapshot := b.Clone()
	b.Status = StatusPaid
	b.ClaimAuthor = claimAuthor
	b.ActiveRequestID = [32]byte{}
	if err := e.state.BountyPut(b); err != nil {
		return err
	}
	if err := e.state.Transfer(e.state.VaultAddress(), recipient, b.Token, b.Amount); err != nil {
		if restoreErr := e.state.BountyPut(snapshot); restoreErr != nil {
			return fmt.Errorf("bounty: payout failed (%v) and rollback failed: %w", err, restoreErr)
		}
		return fmt.Errorf("bounty: payout transfer failed: %w", err)
	}
	e.emit(NewStatusChangedEvent(b, StatusVerifying))
	e.emit(NewPaidEvent(b, recipient))
	return nil
}

// RejectBountyClaim returns a VERIFYING bounty to OPEN after a failed
// verification, clearing the request correlation so a new claimant can
// attempt it. No funds move. Coordinator-only.
func (e *Engine) RejectBountyClaim(caller [20]byte, key [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != e.coordinatorAddr || e.coordinatorAddr == ([20]byte{}) {
		return ErrUnauthorized
	}
	return e.reopen(key)
}

// ForceRejectClaim is the owner's escape hatch for a bounty parked in
// VERIFYING by a lost callback or an upstream script error. It becomes
// available once the claim has aged past ForceRejectGrace.
func (e *Engine) ForceRejectClaim(caller [20]byte, key [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	if caller != e.owner {
		return ErrUnauthorized
	}
	b, ok := e.state.BountyGet(key)
	if !ok || b.Status != StatusVerifying {
		return ErrInvalidStatus
	}
	if e.now() < b.ClaimedAt+e.rejectGrace {
		return ErrGraceNotElapsed
	}
	return e.reopen(key)
}

func (e *Engine) reopen(key [32]byte) error {
	b, ok := e.state.BountyGet(key)
	if !ok || b.Status != StatusVerifying {
		return ErrInvalidStatus
	}
	b.Status = StatusOpen
	b.ActiveRequestID = [32]byte{}
	b.ClaimedAt = 0
	if err := e.state.BountyPut(b); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(b, StatusVerifying))
	return nil
}

// SeepFunds refunds an unclaimed bounty to its issuer once the refund
// timelock has elapsed. The precondition order is a correctness
// requirement: authorization first, so a non-issuer always sees
// ErrUnauthorized regardless of bounty state or timelock progress, then
// status, then the timelock.
func (e *Engine) SeepFunds(caller [20]byte, key [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	b, ok := e.state.BountyGet(key)
	var issuer [20]byte
	if ok {
		issuer = b.Issuer
	}
	if caller != issuer || issuer == ([20]byte{}) {
		return ErrUnauthorized
	}
	if b.Status != StatusOpen {
		return ErrInvalidStatus
	}
	if e.now() < b.CreatedAt+e.refundTimelock {
		return ErrTimelockNotExpired
	}
	snapshot := b.Clone()
	b.Status = StatusRefunded
	if err := e.state.BountyPut(b); err != nil {
		return err
	}
	if err := e.state.Transfer(e.state.VaultAddress(), b.Issuer, b.Token, b.Amount); err != nil {
		if restoreErr := e.state.BountyPut(snapshot); restoreErr != nil {
			return fmt.Errorf("bounty: refund failed (%v) and rollback failed: %w", err, restoreErr)
		}
		return fmt.Errorf("bounty: refund transfer failed: %w", err)
	}
	e.emit(NewStatusChangedEvent(b, StatusOpen))
	e.emit(NewRefundedEvent(b))
	return nil
}

// SetCoordinator rotates the trusted verification coordinator. Owner-only.
func (e *Engine) SetCoordinator(caller [20]byte, verifier ClaimVerifier, addr [20]byte) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	if verifier == nil || addr == ([20]byte{}) {
		return fmt.Errorf("bounty: coordinator required")
	}
	e.coordinator = verifier
	e.coordinatorAddr = addr
	e.emit(NewCoordinatorRotatedEvent(addr))
	return nil
}

// UpdateSecrets rotates the hosted-secret coordinates forwarded to the
// oracle layer. The pair is opaque to the ledger; it only matters to the
// external transport, which expires hosted secrets on its own schedule.
func (e *Engine) UpdateSecrets(caller [20]byte, slot uint8, version uint64) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	e.secretsSlot = slot
	e.secretsVersion = version
	e.emit(NewSecretsUpdatedEvent(slot, version))
	return nil
}

// SetOwner rotates the governing address. Owner-only, never to zero.
func (e *Engine) SetOwner(caller, newOwner [20]byte) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	if newOwner == ([20]byte{}) {
		return fmt.Errorf("bounty: owner must not be zero")
	}
	e.owner = newOwner
	e.emit(NewOwnerRotatedEvent(newOwner))
	return nil
}
