package catalog

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, 7*5, c.Len())

	a, ok := c.Get("alley-t1")
	require.True(t, ok)
	require.Equal(t, KindWeighted, a.Kind())
	require.Equal(t, "crime", a.Meta().CooldownKey)
	require.Equal(t, 5*time.Minute, a.Meta().Cooldown)

	w, ok := c.Crime("alley-t3")
	require.True(t, ok)
	require.Len(t, w.Options, 3)

	_, ok = c.Crime("wires-t1")
	require.False(t, ok, "puzzles are not crimes")

	p, ok := c.Get("safe-t2")
	require.True(t, ok)
	puzzle, ok := p.(*SeededPuzzle)
	require.True(t, ok)
	require.Len(t, puzzle.Alternatives, 4)

	require.Len(t, c.ListKind(KindPuzzle), 3*5)
	require.Len(t, c.ListKind(KindWeighted), 4*5)
	require.Len(t, c.ListKind(""), c.Len())
}

func TestTiersScaleMonotonically(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	for _, scene := range []string{"alley", "docks", "casino", "gallery"} {
		var prev *WeightedChoice
		for tier := 1; tier <= 5; tier++ {
			w, ok := c.Crime(scene + "-t" + string(rune('0'+tier)))
			require.True(t, ok)
			require.Equal(t, tier, w.Tier)
			if prev != nil {
				for i, o := range w.Options {
					po := prev.Options[i]
					require.LessOrEqual(t, o.P, po.P, "%s option %s p", w.ID, o.ID)
					require.GreaterOrEqual(t, o.Reward.Max, po.Reward.Max)
					require.GreaterOrEqual(t, o.Reward.Min, po.Reward.Min)
					require.GreaterOrEqual(t, o.Penalty.Max, po.Penalty.Max)
					require.GreaterOrEqual(t, o.Reward.Max-o.Reward.Min, po.Reward.Max-po.Reward.Min)
				}
			}
			prev = w
		}
	}
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	def, err := ParseDefinition(defaultScenes)
	require.NoError(t, err)
	def.Scenes = append(def.Scenes, def.Scenes[0])
	_, err = Build(def)
	require.ErrorIs(t, err, ErrDuplicateActivity)
}

func TestMergeRejectsOverlap(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	_, err = Merge(a, b)
	require.ErrorIs(t, err, ErrDuplicateActivity)

	merged, err := Merge(a, nil)
	require.NoError(t, err)
	require.Equal(t, a.Len(), merged.Len())
}

func TestBuildValidatesScenes(t *testing.T) {
	base := TierParams{Count: 2, StakeGrowth: 0.5, RiskStep: 0.1}
	opt := func(id string, p float64) SceneOption {
		return SceneOption{ID: id, P: p, Reward: Range{1, 2}, Penalty: Range{1, 2}}
	}
	tests := []struct {
		name string
		def  Definition
	}{
		{"bad tier count", Definition{Tiers: TierParams{Count: 0}}},
		{"risk reaches zero odds", Definition{Tiers: TierParams{Count: 3, RiskStep: 0.5}}},
		{"bad id", Definition{Tiers: base, Scenes: []Scene{{ID: "Bad Id", Kind: KindWeighted, CooldownKey: "crime"}}}},
		{"one option", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: KindWeighted, CooldownKey: "crime", Options: []SceneOption{opt("a", 0.5)}}}}},
		{"p out of range", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: KindWeighted, CooldownKey: "crime", Options: []SceneOption{opt("a", 0.5), opt("b", 1.5)}}}}},
		{"repeated option", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: KindWeighted, CooldownKey: "crime", Options: []SceneOption{opt("a", 0.5), opt("a", 0.5)}}}}},
		{"two alternatives", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: KindPuzzle, CooldownKey: "puzzle", Alternatives: []Alternative{{ID: "a"}, {ID: "b"}}, Reward: Range{1, 2}, Penalty: Range{1, 2}}}}},
		{"inverted range", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: KindPuzzle, CooldownKey: "puzzle", Alternatives: []Alternative{{ID: "a"}, {ID: "b"}, {ID: "c"}}, Reward: Range{5, 2}, Penalty: Range{1, 2}}}}},
		{"unknown kind", Definition{Tiers: base, Scenes: []Scene{{ID: "x", Kind: "dice", CooldownKey: "crime"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.def)
			require.ErrorIs(t, err, ErrInvalidScene)
		})
	}
}

func TestPuzzleCorrectIsSeedModN(t *testing.T) {
	p := &SeededPuzzle{Alternatives: []Alternative{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	require.Equal(t, 0, p.Correct(0))
	require.Equal(t, 2, p.Correct(5))
	require.Equal(t, int(uint32(4294967295)%3), p.Correct(4294967295))

	i, alt, ok := p.Alternative("b")
	require.True(t, ok)
	require.Equal(t, 1, i)
	require.Equal(t, "b", alt.ID)
}

func TestPickRandom(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))
	for range 50 {
		a, err := c.PickRandom(r, KindPuzzle)
		require.NoError(t, err)
		require.Equal(t, KindPuzzle, a.Kind())
	}

	empty, err := Merge()
	require.NoError(t, err)
	_, err = empty.PickRandom(r, KindWeighted)
	require.ErrorIs(t, err, ErrNoActivities)
}

func TestLoadFileAndRangeYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tiers: {count: 1, stake_growth: 0, risk_step: 0}
scenes:
  - id: tiny
    kind: puzzle
    cooldown_key: puzzle
    cooldown: 30s
    alternatives: [{id: a}, {id: b}, {id: c}]
    reward: [1, 2]
    penalty: [0, 1]
`), 0o600))
	c, err := LoadFile(path)
	require.NoError(t, err)
	a, ok := c.Get("tiny-t1")
	require.True(t, ok)
	require.Equal(t, 30*time.Second, a.Meta().Cooldown)
	require.Equal(t, Range{1, 2}, a.(*SeededPuzzle).Reward)

	_, err = ParseDefinition([]byte("scenes: [{id: x, reward: [1]}]"))
	require.Error(t, err)
}
