package crafting

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bountybot/internal/ledger"
	"bountybot/internal/ledger/memstore"
	"bountybot/internal/outcome"
)

func newEngine(t *testing.T, store ledger.Store) (*Engine, *ledger.Ledger) {
	t.Helper()
	recipes, err := DefaultCatalog()
	require.NoError(t, err)
	l := ledger.New(store, nil)
	return NewEngine(l, recipes, nil), l
}

func mustRecipe(t *testing.T, e *Engine, id string) Recipe {
	t.Helper()
	r, ok := e.Recipes().Get(id)
	require.True(t, ok, id)
	return r
}

func snapshot(t *testing.T, l *ledger.Ledger, user string) ledger.Account {
	t.Helper()
	acct, err := l.GetOrCreateAccount(context.Background(), user)
	require.NoError(t, err)
	return acct
}

func TestCraftMissingOreLeavesBalance(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AwardBalance(ctx, "u1", 100)
	require.NoError(t, err)

	r := Recipe{ID: "ingot", Cost: 10, Inputs: []ledger.ItemAmount{{ItemID: "ore", Amount: 5}}, Output: ledger.ItemAmount{ItemID: "ingot", Amount: 1}}
	before := snapshot(t, l, "u1")
	out, err := e.Craft(ctx, "u1", r)
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, outcome.InsufficientMaterials, out.Failure)
	require.Equal(t, []Deficit{{ItemID: "ore", Owned: 0, Required: 5}}, out.Missing)
	require.Equal(t, before, snapshot(t, l, "u1"))
	require.Equal(t, int64(100), snapshot(t, l, "u1").Balance)
}

func TestCraftInsufficientFundsIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AwardBalance(ctx, "u1", 49)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 5)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "wood", 2)
	require.NoError(t, err)

	before := snapshot(t, l, "u1")
	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "pickaxe"))
	require.NoError(t, err)
	require.Equal(t, outcome.InsufficientFunds, out.Failure)
	require.Equal(t, int64(49), out.Balance)
	require.Equal(t, before, snapshot(t, l, "u1"))
}

func TestCraftReportsEveryDeficit(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AwardBalance(ctx, "u1", 500)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 1)
	require.NoError(t, err)

	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "steel"))
	require.NoError(t, err)
	require.Equal(t, outcome.InsufficientMaterials, out.Failure)
	require.Equal(t, []Deficit{
		{ItemID: "ore", Owned: 1, Required: 3},
		{ItemID: "coal", Owned: 0, Required: 2},
	}, out.Missing)
}

func TestCraftHappyPathExactDeltas(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AwardBalance(ctx, "u1", 120)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 7)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "wood", 2)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "gem", 1)
	require.NoError(t, err)
	_, err = l.ClaimCooldown(ctx, "u1", "crime", 0)
	require.NoError(t, err)

	before := snapshot(t, l, "u1")
	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "pickaxe"))
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, outcome.None, out.Failure)
	require.Equal(t, ledger.ItemAmount{ItemID: "pickaxe", Amount: 1}, out.Produced)
	require.Equal(t, int64(70), out.Balance)

	after := snapshot(t, l, "u1")
	require.Equal(t, before.Balance-50, after.Balance)
	require.Equal(t, map[string]int64{"ore": 2, "gem": 1, "pickaxe": 1}, after.Inventory)
	require.Equal(t, before.Cooldowns, after.Cooldowns)
}

func TestCraftFreeRecipeSkipsDebit(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AddInventory(ctx, "u1", "cloth", 2)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "herb", 1)
	require.NoError(t, err)

	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "bandage"))
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, int64(3), out.NewQuantity)
	require.Zero(t, snapshot(t, l, "u1").Balance)
}

// sequentialStore hides batch removal and lets a test interleave a
// concurrent spend between input removals.
type sequentialStore struct {
	ledger.Store
	mu          sync.Mutex
	afterRemove func()
}

func (s *sequentialStore) RemoveItem(ctx context.Context, userID, itemID string, amount int64) (bool, error) {
	ok, err := s.Store.RemoveItem(ctx, userID, itemID, amount)
	s.mu.Lock()
	hook := s.afterRemove
	s.afterRemove = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ok, err
}

func TestCraftSequentialRaceLostDoesNotRefund(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	store := &sequentialStore{Store: mem}
	e, l := newEngine(t, store)
	require.False(t, l.SupportsBatchRemove())

	_, err := l.AwardBalance(ctx, "u1", 100)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 5)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "wood", 2)
	require.NoError(t, err)

	store.afterRemove = func() {
		_, err := mem.RemoveItem(ctx, "u1", "wood", 1)
		require.NoError(t, err)
	}

	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "pickaxe"))
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, outcome.RaceLost, out.Failure)
	require.Equal(t, []ledger.ItemAmount{{ItemID: "ore", Amount: 5}}, out.Consumed)

	after := snapshot(t, l, "u1")
	require.Equal(t, int64(100), after.Balance, "cost is not debited after a lost race")
	require.Zero(t, after.Quantity("ore"), "consumed inputs are not refunded")
	require.Equal(t, int64(1), after.Quantity("wood"))
	require.Zero(t, after.Quantity("pickaxe"))
}

func TestCraftBatchRaceLostConsumesNothing(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t, memstore.New())
	_, err := l.AwardBalance(ctx, "u1", 1000)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 3)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "coal", 2)
	require.NoError(t, err)

	r := mustRecipe(t, e, "steel")
	var wg sync.WaitGroup
	results := make([]Outcome, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Craft(ctx, "u1", r)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	wins := 0
	for _, out := range results {
		if out.Success {
			wins++
			continue
		}
		require.Contains(t, []outcome.Failure{outcome.RaceLost, outcome.InsufficientMaterials}, out.Failure)
	}
	require.Equal(t, 1, wins)

	after := snapshot(t, l, "u1")
	require.Equal(t, int64(970), after.Balance)
	require.Equal(t, map[string]int64{"steel": 1}, after.Inventory)
}

// raceStore runs a concurrent spend just before the craft's own spend lands.
type raceStore struct {
	*memstore.Store
	beforeSpend func()
}

func (s *raceStore) Spend(ctx context.Context, userID string, cost int64, items []ledger.ItemAmount) (bool, int64, error) {
	if hook := s.beforeSpend; hook != nil {
		s.beforeSpend = nil
		hook()
	}
	return s.Store.Spend(ctx, userID, cost, items)
}

func TestCraftSpendRaceLostTakesNothing(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	store := &raceStore{Store: mem}
	e, l := newEngine(t, store)
	require.True(t, l.SupportsSpend())

	_, err := l.AwardBalance(ctx, "u1", 20)
	require.NoError(t, err)
	_, err = l.AddInventory(ctx, "u1", "ore", 2)
	require.NoError(t, err)

	store.beforeSpend = func() {
		_, _, err := mem.DebitFloor(ctx, "u1", 5)
		require.NoError(t, err)
	}

	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "lockpick"))
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, outcome.RaceLost, out.Failure)
	require.Empty(t, out.Consumed)

	after := snapshot(t, l, "u1")
	require.Equal(t, int64(15), after.Balance, "only the concurrent debit landed")
	require.Equal(t, int64(2), after.Quantity("ore"), "inputs stay when the cost cannot be met")
	require.Zero(t, after.Quantity("lockpick"))
}

func TestCraftUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _ := newEngine(t, memstore.New())
	out, err := e.Craft(ctx, "u1", mustRecipe(t, e, "torch"))
	require.ErrorIs(t, err, ledger.ErrUnavailable)
	require.Equal(t, outcome.DatastoreUnavailable, out.Failure)
}

func TestResolve(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	r, _, err := c.Resolve("1")
	require.NoError(t, err)
	require.Equal(t, "pickaxe", r.ID)

	r, _, err = c.Resolve(" STEEL ")
	require.NoError(t, err)
	require.Equal(t, "steel", r.ID)

	r, _, err = c.Resolve("gem ring")
	require.NoError(t, err)
	require.Equal(t, "ring", r.ID)

	r, _, err = c.Resolve("crow")
	require.NoError(t, err)
	require.Equal(t, "crowbar", r.ID)

	_, candidates, err := c.Resolve("pick")
	require.ErrorIs(t, err, outcome.ErrAmbiguousRecipe)
	ids := []string{}
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	require.ElementsMatch(t, []string{"pickaxe", "lockpick"}, ids)

	for _, q := range []string{"", "0", "99", "xyzzy"} {
		_, _, err := c.Resolve(q)
		require.ErrorIs(t, err, outcome.ErrUnknownRecipe, q)
	}
}

func TestCatalogValidation(t *testing.T) {
	_, err := ParseCatalog([]byte(`recipes: [{id: a, output: {item: x, amount: 0}}]`))
	require.ErrorIs(t, err, ErrInvalidRecipe)
	_, err = ParseCatalog([]byte(`recipes: [{id: a, output: {item: x, amount: 1}}, {id: a, output: {item: x, amount: 1}}]`))
	require.ErrorIs(t, err, ErrInvalidRecipe)
	_, err = ParseCatalog([]byte(`recipes: [{id: a, cost: -1, output: {item: x, amount: 1}}]`))
	require.ErrorIs(t, err, ErrInvalidRecipe)
	_, err = ParseCatalog([]byte(`recipes: [{id: a, inputs: [{item: o, amount: 1}, {item: o, amount: 2}], output: {item: x, amount: 1}}]`))
	require.ErrorIs(t, err, ErrInvalidRecipe)
}
