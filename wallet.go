package lunalove

import "sync"

// Wallet tracks the user's coin balance. The displayed balance may run
// ahead of the server while a gift send is in flight; every authoritative
// value from the server overwrites it, last write wins.
type Wallet struct {
	mu            sync.Mutex
	balance       int
	authoritative int
	version       uint64
	known         bool
}

func newWallet() *Wallet {
	return &Wallet{}
}

// Balance returns the currently displayed balance.
func (w *Wallet) Balance() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Version increments on every balance mutation, optimistic or
// authoritative.
func (w *Wallet) Version() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Known reports whether any authoritative balance has been seen yet.
func (w *Wallet) Known() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.known
}

// debit optimistically subtracts amount. It refuses to drive the
// displayed balance negative.
func (w *Wallet) debit(amount int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount > w.balance {
		return false
	}
	w.balance -= amount
	w.version++
	return true
}

// rollback discards optimistic debits and restores the last
// authoritative balance.
func (w *Wallet) rollback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = w.authoritative
	w.version++
}

// setAuthoritative records a server-confirmed balance and snaps the
// displayed balance to it.
func (w *Wallet) setAuthoritative(v int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.authoritative = v
	w.balance = v
	w.version++
	w.known = true
}
