package common

import (
	"bytes"
	"errors"
	"runtime"
	"strconv"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

// PauseView reports whether a native module has been administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is a single non-reentrant lock shared by every
// state-mutating entry point of a module. Independent top-level entries
// serialise: one call fully completes before the next is admitted. Only a
// genuine nested entry, the owning goroutine re-entering while its own call
// is still executing, fails with ErrReentrantCall; the returned release
// function must run on every exit path.
type ReentrancyGuard struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entered bool
	owner   uint64
}

// Enter acquires the guard, waiting out any in-flight entry from another
// goroutine. Callers defer the returned release function.
func (g *ReentrancyGuard) Enter() (func(), error) {
	gid := goroutineID()
	g.mu.Lock()
	if g.cond == nil {
		g.cond = sync.NewCond(&g.mu)
	}
	if g.entered && g.owner == gid {
		g.mu.Unlock()
		return nil, ErrReentrantCall
	}
	for g.entered {
		g.cond.Wait()
	}
	g.entered = true
	g.owner = gid
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.entered = false
		g.owner = 0
		g.cond.Signal()
		g.mu.Unlock()
	}, nil
}

// goroutineID extracts the current goroutine's id from its stack header.
// Used only to tell a nested entry apart from an unrelated concurrent one.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	// The header reads "goroutine <id> [...]".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ModuleAddress derives the deterministic address owned by a native module.
// Module addresses have no known private key; they exist so cross-module
// calls carry an authenticatable caller identity.
func ModuleAddress(name string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("gitbounty/module/" + name))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
