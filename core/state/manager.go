package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"gitbounty/core/types"
	"gitbounty/native/bounty"
	"gitbounty/native/common"
	"gitbounty/native/verify"
	"gitbounty/storage"
)

var (
	bountyPrefix  = []byte("bounty/")
	accountPrefix = []byte("account/")
	requestPrefix = []byte("verifyreq/")
)

// ErrInsufficientBalance is returned by Transfer when the source account
// cannot cover the amount.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// Manager persists bounty records, verification requests and token account
// balances over a storage.Database. It implements bounty.LedgerState and
// verify.CoordinatorState. Record mutations are serialised by a single
// mutex since the backends expose no transactions.
type Manager struct {
	mu    sync.Mutex
	db    storage.Database
	vault [20]byte
}

// NewManager wraps the database with ledger state accessors.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		vault: common.ModuleAddress("bounty/vault"),
	}
}

// VaultAddress returns the module account holding every escrowed amount.
func (m *Manager) VaultAddress() [20]byte { return m.vault }

func bountyKey(key [32]byte) []byte {
	return append(append([]byte(nil), bountyPrefix...), key[:]...)
}

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

func requestKey(id [32]byte) []byte {
	return append(append([]byte(nil), requestPrefix...), id[:]...)
}

// BountyPut persists the bounty record.
func (m *Manager) BountyPut(b *bounty.Bounty) error {
	if b == nil {
		return fmt.Errorf("state: nil bounty")
	}
	if !b.Status.Valid() {
		return fmt.Errorf("state: refusing to persist status %d", b.Status)
	}
	encoded, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("state: encode bounty: %w", err)
	}
	return m.db.Put(bountyKey(b.Key), encoded)
}

// BountyGet loads the bounty record for the key. Missing keys report
// (nil, false), which the engine treats as StatusAbsent.
func (m *Manager) BountyGet(key [32]byte) (*bounty.Bounty, bool) {
	raw, err := m.db.Get(bountyKey(key))
	if err != nil {
		return nil, false
	}
	var b bounty.Bounty
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false
	}
	if b.Amount == nil {
		b.Amount = big.NewInt(0)
	}
	return &b, true
}

// VerificationRequestPut persists a request correlation record.
func (m *Manager) VerificationRequestPut(req *verify.VerificationRequest) error {
	if req == nil {
		return fmt.Errorf("state: nil verification request")
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("state: encode verification request: %w", err)
	}
	return m.db.Put(requestKey(req.ID), encoded)
}

// VerificationRequestGet loads a request correlation record.
func (m *Manager) VerificationRequestGet(id [32]byte) (*verify.VerificationRequest, bool) {
	raw, err := m.db.Get(requestKey(id))
	if err != nil {
		return nil, false
	}
	var req verify.VerificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, false
	}
	return &req, true
}

func (m *Manager) loadAccount(addr [20]byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]*big.Int)
	}
	return &acc, nil
}

func (m *Manager) storeAccount(addr [20]byte, acc *types.Account) error {
	encoded, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), encoded)
}

// Transfer moves amount of token between accounts. A zero amount is a
// no-op; negative amounts and insufficient source balance fail the whole
// operation with nothing applied.
func (m *Manager) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromAcc, err := m.loadAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := m.loadAccount(to)
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(token)
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.SetBalance(token, new(big.Int).Sub(balance, amount))
	toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), amount))
	if err := m.storeAccount(from, fromAcc); err != nil {
		return err
	}
	return m.storeAccount(to, toAcc)
}

// Mint credits an account out of thin air. Used by genesis allocation and
// tests; never reachable from the engines.
func (m *Manager) Mint(addr [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.loadAccount(addr)
	if err != nil {
		return err
	}
	acc.SetBalance(token, new(big.Int).Add(acc.Balance(token), amount))
	return m.storeAccount(addr, acc)
}

// BalanceOf reports the balance an account holds for the token.
func (m *Manager) BalanceOf(addr [20]byte, token string) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.loadAccount(addr)
	if err != nil {
		return big.NewInt(0)
	}
	return acc.Balance(token)
}

// PauseRegistry is an in-memory common.PauseView with owner-driven toggles.
type PauseRegistry struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseRegistry returns an empty registry; no module starts paused.
func NewPauseRegistry() *PauseRegistry {
	return &PauseRegistry{paused: make(map[string]bool)}
}

// SetPaused toggles the pause flag for a module.
func (p *PauseRegistry) SetPaused(module string, paused bool) {
	p.mu.Lock()
	p.paused[module] = paused
	p.mu.Unlock()
}

// IsPaused implements common.PauseView.
func (p *PauseRegistry) IsPaused(module string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}
