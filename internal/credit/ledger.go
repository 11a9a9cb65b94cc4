// Package credit prices crawl requests and settles them against per-user
// balances.
package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
	"github.com/JakeFAU/buzzcrawl/internal/metrics"
)

// Role controls whether a user pays for crawls.
type Role string

// Known roles. Admin, tester and partner crawl for free.
const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleTester  Role = "tester"
	RolePartner Role = "partner"
)

// ErrInsufficientBalance is returned by Store.Deduct when the balance cannot
// cover the amount. The balance is left untouched.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin, RoleTester, RolePartner:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Account is the persisted credit state of one user.
type Account struct {
	UserID    string `json:"user_id"`
	Balance   int    `json:"balance"`
	Role      Role   `json:"role"`
	TrialUsed bool   `json:"trial_used"`
}

// Store persists accounts. Writes open missing accounts with the configured
// initial balance; Get reports those defaults without opening one. Deduct and
// ClaimTrial must be atomic per user.
type Store interface {
	Get(ctx context.Context, userID string) (Account, error)
	// Deduct subtracts amount if the balance covers it and returns the new
	// balance. Otherwise it returns the current balance and ErrInsufficientBalance.
	Deduct(ctx context.Context, userID string, amount int) (int, error)
	// ClaimTrial marks the free trial as used and reports whether this call
	// was the one that claimed it.
	ClaimTrial(ctx context.Context, userID string) (bool, error)
	Add(ctx context.Context, userID string, amount int) (int, error)
	SetRole(ctx context.Context, userID string, role Role) error
	Close()
}

// KindResolver maps a source id to its kind.
type KindResolver interface {
	Kind(id string) crawler.SourceKind
}

// Config tunes the ledger.
type Config struct {
	// FreeTrial grants every new user one free crawl.
	FreeTrial bool
	// Privileged lists the roles that are never charged.
	Privileged []Role
}

// Ledger quotes and charges crawls.
type Ledger struct {
	store      Store
	kinds      KindResolver
	freeTrial  bool
	privileged map[Role]struct{}
	logger     *zap.Logger
}

// NewLedger wires a Ledger. A nil Privileged list means admin, tester and partner.
func NewLedger(store Store, kinds KindResolver, cfg Config, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	roles := cfg.Privileged
	if roles == nil {
		roles = []Role{RoleAdmin, RoleTester, RolePartner}
	}
	priv := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		priv[r] = struct{}{}
	}
	metrics.Init()
	return &Ledger{
		store:      store,
		kinds:      kinds,
		freeTrial:  cfg.FreeTrial,
		privileged: priv,
		logger:     logger.Named("credit"),
	}
}

// Quote prices a request: one credit per started 100 bytes of input, plus 10%
// of that base for every community source and 20% for every sns source, with
// the total rounded up. Unknown sources add nothing.
func (l *Ledger) Quote(textBytes int, sources []string) int {
	if textBytes < 0 {
		textBytes = 0
	}
	base := (textBytes + 99) / 100
	tenths := 10
	for _, id := range sources {
		switch l.kinds.Kind(id) {
		case crawler.KindCommunity:
			tenths++
		case crawler.KindSNS:
			tenths += 2
		}
	}
	return (base*tenths + 9) / 10
}

// Charge settles a crawl for userID. Privileged roles and first-time users
// (when the trial is enabled) pay nothing; everyone else has the quoted amount
// deducted atomically or gets an insufficient_credit error.
func (l *Ledger) Charge(ctx context.Context, userID string, textBytes int, sources []string) (crawler.CreditCharge, error) {
	amount := l.Quote(textBytes, sources)
	charge := crawler.CreditCharge{UserID: userID}

	acct, err := l.store.Get(ctx, userID)
	if err != nil {
		return charge, crawler.NewInternalError("load credit account", err)
	}
	if _, ok := l.privileged[acct.Role]; ok {
		charge.Waived = true
		charge.Balance = acct.Balance
		metrics.ObserveCreditCharge("waived", 0)
		l.logger.Debug("charge waived", zap.String("user_id", userID), zap.String("role", string(acct.Role)))
		return charge, nil
	}

	if l.freeTrial && !acct.TrialUsed {
		claimed, err := l.store.ClaimTrial(ctx, userID)
		if err != nil {
			return charge, crawler.NewInternalError("claim free trial", err)
		}
		if claimed {
			charge.FreeTrial = true
			charge.Balance = acct.Balance
			metrics.ObserveCreditCharge("free_trial", 0)
			l.logger.Info("free trial used", zap.String("user_id", userID), zap.Int("waived_amount", amount))
			return charge, nil
		}
	}

	balance, err := l.store.Deduct(ctx, userID, amount)
	if errors.Is(err, ErrInsufficientBalance) {
		return charge, crawler.NewInsufficientCreditError(amount, balance)
	}
	if err != nil {
		return charge, crawler.NewInternalError("deduct credits", err)
	}
	charge.FinalCredit = amount
	charge.Balance = balance
	metrics.ObserveCreditCharge("paid", amount)
	return charge, nil
}

// Balance returns the user's account. It never opens one.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	acct, err := l.store.Get(ctx, userID)
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", userID, err)
	}
	return acct, nil
}

// Add tops up a balance.
func (l *Ledger) Add(ctx context.Context, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be > 0, got %d", amount)
	}
	balance, err := l.store.Add(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("add credits for %s: %w", userID, err)
	}
	l.logger.Info("credits added", zap.String("user_id", userID), zap.Int("amount", amount), zap.Int("balance", balance))
	return balance, nil
}

// SetRole changes a user's role.
func (l *Ledger) SetRole(ctx context.Context, userID string, role Role) error {
	if err := l.store.SetRole(ctx, userID, role); err != nil {
		return fmt.Errorf("set role for %s: %w", userID, err)
	}
	return nil
}
