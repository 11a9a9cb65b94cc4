// Package memory keeps credit accounts in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/buzzcrawl/internal/credit"
)

type account struct {
	mu   sync.Mutex
	data credit.Account
}

// Store is a credit.Store guarded by per-account locks.
type Store struct {
	initial int

	mu       sync.RWMutex
	accounts map[string]*account
}

// New returns a Store that opens accounts with initialBalance credits.
func New(initialBalance int) *Store {
	return &Store{initial: initialBalance, accounts: make(map[string]*account)}
}

func (s *Store) account(userID string) *account {
	s.mu.RLock()
	a, ok := s.accounts[userID]
	s.mu.RUnlock()
	if ok {
		return a
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok = s.accounts[userID]; ok {
		return a
	}
	a = &account{data: credit.Account{UserID: userID, Balance: s.initial, Role: credit.RoleUser}}
	s.accounts[userID] = a
	return a
}

// Get returns a snapshot of the account. Unknown users get the defaults of a
// new account without one being opened.
func (s *Store) Get(_ context.Context, userID string) (credit.Account, error) {
	s.mu.RLock()
	a, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return credit.Account{UserID: userID, Balance: s.initial, Role: credit.RoleUser}, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data, nil
}

// Deduct subtracts amount when the balance allows it.
func (s *Store) Deduct(_ context.Context, userID string, amount int) (int, error) {
	a := s.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data.Balance < amount {
		return a.data.Balance, credit.ErrInsufficientBalance
	}
	a.data.Balance -= amount
	return a.data.Balance, nil
}

// ClaimTrial flips the trial flag once.
func (s *Store) ClaimTrial(_ context.Context, userID string) (bool, error) {
	a := s.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.data.TrialUsed {
		return false, nil
	}
	a.data.TrialUsed = true
	return true, nil
}

// Add increases the balance.
func (s *Store) Add(_ context.Context, userID string, amount int) (int, error) {
	a := s.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data.Balance += amount
	return a.data.Balance, nil
}

// SetRole sets the account role.
func (s *Store) SetRole(_ context.Context, userID string, role credit.Role) error {
	a := s.account(userID)
	a.mu.Lock()
	a.data.Role = role
	a.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() {}
