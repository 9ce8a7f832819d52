package verify

import (
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"gitbounty/core/events"
	"gitbounty/core/types"
	"gitbounty/native/common"
)

// ModuleName identifies the coordinator for pause checks and module address
// derivation.
const ModuleName = "verify"

var (
	errNilState     = errors.New("verify coordinator: state not configured")
	errNilTransport = errors.New("verify coordinator: oracle transport not configured")
	errNilLedger    = errors.New("verify coordinator: escrow ledger not configured")
)

// VerificationRequest correlates one outstanding oracle request with the
// bounty and claimant it resolves. Active is true until the callback
// consumes the request exactly once.
type VerificationRequest struct {
	ID        [32]byte `json:"id"`
	BountyKey [32]byte `json:"bountyKey"`
	Claimant  [20]byte `json:"claimant"`
	Active    bool     `json:"active"`
}

// Clone returns a copy of the request record.
func (r *VerificationRequest) Clone() *VerificationRequest {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// OracleRequest is the payload handed to the external transport: the
// verification script, its arguments and an optional reference to
// off-chain-hosted secrets. A zero SecretsVersion omits the reference
// entirely.
type OracleRequest struct {
	ScriptSource   string
	Args           []string
	SecretsSlot    uint8
	SecretsVersion uint64
}

// Transport is the external oracle boundary. SendRequest returns a request
// identifier synchronously; the verification itself resolves out-of-band
// and comes back through HandleCallback. The transport may deliver at least
// once; the coordinator enforces exactly-once application.
type Transport interface {
	SendRequest(req OracleRequest) ([32]byte, error)
}

// BountyLedger is the slice of the escrow ledger the coordinator invokes
// once a callback resolves.
type BountyLedger interface {
	CompleteBountyPayout(caller [20]byte, key [32]byte, claimAuthor string, recipient [20]byte) error
	RejectBountyClaim(caller [20]byte, key [32]byte) error
}

// CoordinatorState persists the request correlation table.
type CoordinatorState interface {
	VerificationRequestPut(*VerificationRequest) error
	VerificationRequestGet(id [32]byte) (*VerificationRequest, bool)
}

type verifyEvent struct {
	evt *types.Event
}

func (e verifyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e verifyEvent) Event() *types.Event { return e.evt }

// Coordinator relays claim verifications between the escrow ledger and the
// external oracle transport. It owns the VerificationRequest table and is
// the only party allowed to trigger ledger payouts and rejections.
type Coordinator struct {
	state        CoordinatorState
	transport    Transport
	ledger       BountyLedger
	ledgerAddr   [20]byte
	owner        [20]byte
	addr         [20]byte
	scriptSource string
	emitter      events.Emitter
	guard        common.ReentrancyGuard
}

// NewCoordinator creates a coordinator governed by the given owner address
// and executing the given verification script source on the oracle side.
func NewCoordinator(owner [20]byte, scriptSource string) *Coordinator {
	return &Coordinator{
		owner:        owner,
		addr:         common.ModuleAddress(ModuleName),
		scriptSource: scriptSource,
		emitter:      events.NoopEmitter{},
	}
}

// SetState configures the request-table backend.
func (c *Coordinator) SetState(state CoordinatorState) { c.state = state }

// SetTransport configures the external oracle transport.
func (c *Coordinator) SetTransport(t Transport) { c.transport = t }

// SetEmitter configures the event emitter. Nil resets to a no-op.
func (c *Coordinator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// ModuleAddress returns the address the coordinator presents when calling
// the escrow ledger.
func (c *Coordinator) ModuleAddress() [20]byte { return c.addr }

func (c *Coordinator) emit(event *types.Event) {
	if c == nil || c.emitter == nil || event == nil {
		return
	}
	c.emitter.Emit(verifyEvent{evt: event})
}

// Initiate dispatches a claim verification to the oracle transport and
// records the returned identifier in the correlation table. Only the
// registered escrow ledger may call it.
func (c *Coordinator) Initiate(caller [20]byte, key [32]byte, claimant [20]byte, args []string, secretsSlot uint8, secretsVersion uint64) ([32]byte, error) {
	if c == nil || c.state == nil {
		return [32]byte{}, errNilState
	}
	if c.transport == nil {
		return [32]byte{}, errNilTransport
	}
	if caller != c.ledgerAddr || c.ledgerAddr == ([20]byte{}) {
		return [32]byte{}, ErrUnauthorized
	}
	if key == ([32]byte{}) {
		return [32]byte{}, ErrInvalidBountyKey
	}
	req := OracleRequest{
		ScriptSource:   c.scriptSource,
		Args:           append([]string{}, args...),
		SecretsSlot:    secretsSlot,
		SecretsVersion: secretsVersion,
	}
	requestID, err := c.transport.SendRequest(req)
	if err != nil {
		return [32]byte{}, fmt.Errorf("verify: oracle dispatch: %w", err)
	}
	record := &VerificationRequest{
		ID:        requestID,
		BountyKey: key,
		Claimant:  claimant,
		Active:    true,
	}
	if err := c.state.VerificationRequestPut(record); err != nil {
		return [32]byte{}, err
	}
	c.emit(NewClaimInitiatedEvent(record, requestID))
	return requestID, nil
}

// HandleCallback applies one oracle result. The active-request check is the
// exactly-once guard: the first callback flips Active to false as its first
// effect, so any replay for the same identifier fails with
// ErrUnexpectedRequestID. A non-empty errorBytes payload signals an
// oracle-side script failure; the completion event is emitted and no ledger
// call is made, deliberately parking the bounty in VERIFYING for operator
// intervention. Otherwise responseBytes decodes as (verified, author) and
// drives payout or rejection on the ledger.
func (c *Coordinator) HandleCallback(requestID [32]byte, responseBytes, errorBytes []byte) error {
	if c == nil || c.state == nil {
		return errNilState
	}
	release, err := c.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	req, ok := c.state.VerificationRequestGet(requestID)
	if !ok || !req.Active {
		return ErrUnexpectedRequestID
	}
	scriptFailed := len(errorBytes) > 0
	var verified bool
	var author string
	if !scriptFailed {
		verified, author, err = DecodeVerificationResult(responseBytes)
		if err != nil {
			return err
		}
		if c.ledger == nil {
			return errNilLedger
		}
	}
	req.Active = false
	if err := c.state.VerificationRequestPut(req); err != nil {
		return err
	}
	c.emit(NewCompleteEvent(requestID, verified, author, errorBytes))
	if scriptFailed {
		return nil
	}
	if verified {
		if err := c.ledger.CompleteBountyPayout(c.addr, req.BountyKey, author, req.Claimant); err != nil {
			return c.restoreActive(req, fmt.Errorf("verify: payout handoff: %w", err))
		}
		c.emit(NewPayoutTriggeredEvent(req, requestID, author))
		return nil
	}
	if err := c.ledger.RejectBountyClaim(c.addr, req.BountyKey); err != nil {
		return c.restoreActive(req, fmt.Errorf("verify: rejection handoff: %w", err))
	}
	return nil
}

// restoreActive reverts the exactly-once flip when the ledger handoff
// fails, so the whole callback behaves as an atomic abort and the transport
// may redeliver.
func (c *Coordinator) restoreActive(req *VerificationRequest, cause error) error {
	req.Active = true
	if err := c.state.VerificationRequestPut(req); err != nil {
		return fmt.Errorf("%v (rollback failed: %w)", cause, err)
	}
	return cause
}

// Request returns the stored verification request, if any.
func (c *Coordinator) Request(id [32]byte) (*VerificationRequest, bool) {
	if c == nil || c.state == nil {
		return nil, false
	}
	req, ok := c.state.VerificationRequestGet(id)
	if !ok {
		return nil, false
	}
	return req.Clone(), true
}

// SetLedger rotates the trusted escrow ledger. Owner-only.
func (c *Coordinator) SetLedger(caller [20]byte, ledger BountyLedger, addr [20]byte) error {
	if caller != c.owner {
		return ErrUnauthorized
	}
	if ledger == nil || addr == ([20]byte{}) {
		return fmt.Errorf("verify: ledger required")
	}
	c.ledger = ledger
	c.ledgerAddr = addr
	c.emit(NewLedgerRotatedEvent(addr))
	return nil
}

// SetScriptSource replaces the verification script executed off-chain by
// the oracle network. The source is opaque to the coordinator. Owner-only.
func (c *Coordinator) SetScriptSource(caller [20]byte, source string) error {
	if caller != c.owner {
		return ErrUnauthorized
	}
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("verify: script source required")
	}
	c.scriptSource = source
	c.emit(NewScriptRotatedEvent(ethcrypto.Keccak256Hash([]byte(source))))
	return nil
}

// SetOwner rotates the governing address. Owner-only, never to zero.
func (c *Coordinator) SetOwner(caller, newOwner [20]byte) error {
	if caller != c.owner {
		return ErrUnauthorized
	}
	if newOwner == ([20]byte{}) {
		return fmt.Errorf("verify: owner must not be zero")
	}
	c.owner = newOwner
	return nil
}
