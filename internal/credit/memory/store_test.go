package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buzzcrawl/internal/credit"
)

func TestGetDoesNotOpenAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(50)
	acct, err := s.Get(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, credit.Account{UserID: "ghost", Balance: 50, Role: credit.RoleUser}, acct)
	require.Empty(t, s.accounts)

	balance, err := s.Deduct(ctx, "ghost", 5)
	require.NoError(t, err)
	require.Equal(t, 45, balance)
	require.Len(t, s.accounts, 1)

	acct, err = s.Get(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, 45, acct.Balance)
}
