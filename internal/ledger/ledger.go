package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// Ledger-level failures, reported distinctly from the engine's business-rule
// rejections.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Token is the external settlement-asset ledger. The engine never mints or
// burns; it only moves custody. Implementations must be safe for concurrent
// use. The caller identity of transfer/approve is supplied explicitly because
// the host, not the ledger, authenticates callers.
type Token interface {
	BalanceOf(account string) uint64
	Transfer(from, to string, amount uint64) error
	TransferFrom(owner, spender, to string, amount uint64) error
	Approve(owner, spender string, amount uint64)
	Allowance(owner, spender string) uint64
}

// InMemoryToken is a reference Token backed by in-process maps.
type InMemoryToken struct {
	mu         sync.Mutex
	balances   map[string]uint64
	allowances map[string]map[string]uint64
}

// NewInMemoryToken creates an empty token ledger.
func NewInMemoryToken() *InMemoryToken {
	return &InMemoryToken{
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
	}
}

// Mint credits an account. Test and bootstrap helper; the marketplace engine
// never calls it.
func (t *InMemoryToken) Mint(account string, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] += amount
}

// BalanceOf returns the account balance.
func (t *InMemoryToken) BalanceOf(account string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[account]
}

// Transfer moves amount from one account to another.
func (t *InMemoryToken) Transfer(from, to string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transfer(from, to, amount)
}

func (t *InMemoryToken) transfer(from, to string, amount uint64) error {
	if t.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientBalance)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// consuming the owner's allowance for that spender.
func (t *InMemoryToken) TransferFrom(owner, spender, to string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner][spender] < amount {
		return fmt.Errorf("transferFrom %d of %s by %s: %w", amount, owner, spender, ErrInsufficientAllowance)
	}
	if err := t.transfer(owner, to, amount); err != nil {
		return err
	}
	t.allowances[owner][spender] -= amount
	return nil
}

// Approve sets the allowance of spender over the owner's funds.
func (t *InMemoryToken) Approve(owner, spender string, amount uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[string]uint64)
	}
	t.allowances[owner][spender] = amount
}

// Allowance returns the remaining allowance of spender over the owner's funds.
func (t *InMemoryToken) Allowance(owner, spender string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowances[owner][spender]
}
