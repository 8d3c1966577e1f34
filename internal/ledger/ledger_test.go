package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bountybot/internal/ledger"
	"bountybot/internal/ledger/memstore"
	"bountybot/internal/token"
)

type failingStore struct {
	ledger.Store
	err error
}

func (f failingStore) Ensure(context.Context, string) (ledger.Account, error) {
	return ledger.Account{}, f.err
}

func (f failingStore) DebitFloor(context.Context, string, int64) (int64, int64, error) {
	return 0, 0, f.err
}

func TestValidationHappensBeforeStore(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(failingStore{err: errors.New("must not be called")}, nil)

	_, err := l.GetOrCreateAccount(ctx, "")
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.ClaimCooldown(ctx, "u1", " ", time.Minute)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.ClaimCooldown(ctx, "u1", "crime", -time.Minute)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.AddInventory(ctx, "u1", "", 1)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.RemoveInventory(ctx, "u1", "ore", 0)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.RemoveInventoryAll(ctx, "u1", nil)
	require.ErrorIs(t, err, ledger.ErrInvalidArgument)
	_, err = l.Spend(ctx, "u1", -1, nil)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestUserIDsMatchTokenOwners(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(memstore.New(), nil)
	codec := token.NewCodec("")

	for _, id := range []string{"u1", "123456789012345678", "some.user_name-2", strings.Repeat("9", 40)} {
		_, err := l.GetOrCreateAccount(ctx, id)
		require.NoError(t, err, id)
		_, err = codec.Encode(token.Token{Verb: token.VerbChoose, OwnerID: id, ActivityID: "alley-t1", ChoiceID: "a"})
		require.NoError(t, err, id)
	}
	for _, id := range []string{"", "has space", "slash/user", "ünïcode", strings.Repeat("9", 41)} {
		_, err := l.GetOrCreateAccount(ctx, id)
		require.ErrorIs(t, err, ledger.ErrInvalidArgument, id)
		require.False(t, token.ValidOwner(id), id)
	}
}

func TestStoreErrorsBecomeUnavailable(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(failingStore{err: context.DeadlineExceeded}, nil)

	_, err := l.GetOrCreateAccount(ctx, "u1")
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	res, err := l.DebitBalance(ctx, "u1", 10)
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	require.False(t, res.OK)
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := ledger.New(memstore.New(), nil)
	_, err := l.AwardBalance(ctx, "u1", 5)
	require.ErrorIs(t, err, ledger.ErrUnavailable)

	acct, err := l.GetOrCreateAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.Zero(t, acct.Balance)
}

func TestItemsSorted(t *testing.T) {
	acct := ledger.Account{Inventory: map[string]int64{"wood": 2, "ore": 1, "gone": 0}}
	require.Equal(t, []ledger.ItemAmount{{ItemID: "ore", Amount: 1}, {ItemID: "wood", Amount: 2}}, acct.Items())
}
