package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed scenes.yaml
var defaultScenes []byte

var (
	ErrDuplicateActivity = errors.New("duplicate activity id")
	ErrInvalidScene      = errors.New("invalid scene template")
	ErrNoActivities      = errors.New("no activities of requested kind")
)

var idRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,27}$`)

// Definition is the on-disk form: scene templates expanded across tiers.
type Definition struct {
	Tiers  TierParams `yaml:"tiers"`
	Scenes []Scene    `yaml:"scenes"`
}

// TierParams derive per-tier multipliers. Tier t (1-based) multiplies reward
// and penalty bounds by 1+(t-1)*StakeGrowth and success probability by
// 1-(t-1)*RiskStep, so stakes rise and odds fall monotonically.
type TierParams struct {
	Count       int     `yaml:"count"`
	StakeGrowth float64 `yaml:"stake_growth"`
	RiskStep    float64 `yaml:"risk_step"`
}

type Scene struct {
	ID           string        `yaml:"id"`
	Title        string        `yaml:"title"`
	Kind         Kind          `yaml:"kind"`
	Prompt       string        `yaml:"prompt"`
	CooldownKey  string        `yaml:"cooldown_key"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Options      []SceneOption `yaml:"options"`
	Alternatives []Alternative `yaml:"alternatives"`
	Reward       Range         `yaml:"reward"`
	Penalty      Range         `yaml:"penalty"`
}

type SceneOption struct {
	ID      string  `yaml:"id"`
	Label   string  `yaml:"label"`
	P       float64 `yaml:"p"`
	Reward  Range   `yaml:"reward"`
	Penalty Range   `yaml:"penalty"`
}

func (t TierParams) stakes(tier int) float64 {
	return 1 + float64(tier-1)*t.StakeGrowth
}

func (t TierParams) odds(tier int) float64 {
	return 1 - float64(tier-1)*t.RiskStep
}

func (t TierParams) validate() error {
	if t.Count < 1 || t.Count > 9 {
		return fmt.Errorf("%w: tier count must be 1..9", ErrInvalidScene)
	}
	if t.StakeGrowth < 0 {
		return fmt.Errorf("%w: stake_growth must be >= 0", ErrInvalidScene)
	}
	if t.RiskStep < 0 || float64(t.Count-1)*t.RiskStep >= 1 {
		return fmt.Errorf("%w: risk_step must keep odds above zero", ErrInvalidScene)
	}
	return nil
}

// Catalog is read-only after Build.
type Catalog struct {
	list []Activity
	byID map[string]Activity
}

func ParseDefinition(raw []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return def, fmt.Errorf("scenes yaml: %w", err)
	}
	return def, nil
}

// Default builds the embedded scene set.
func Default() (*Catalog, error) {
	def, err := ParseDefinition(defaultScenes)
	if err != nil {
		return nil, err
	}
	return Build(def)
}

// LoadFile builds a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseDefinition(raw)
	if err != nil {
		return nil, err
	}
	return Build(def)
}

// Build expands every scene across every tier. A duplicate id is an error.
func Build(def Definition) (*Catalog, error) {
	if err := def.Tiers.validate(); err != nil {
		return nil, err
	}
	c := &Catalog{byID: make(map[string]Activity)}
	for _, sc := range def.Scenes {
		if err := sc.validate(); err != nil {
			return nil, err
		}
		for tier := 1; tier <= def.Tiers.Count; tier++ {
			if err := c.add(sc.expand(def.Tiers, tier)); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Merge combines catalogs, failing on the first id present in more than one.
func Merge(parts ...*Catalog) (*Catalog, error) {
	out := &Catalog{byID: make(map[string]Activity)}
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, a := range p.list {
			if err := out.add(a); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (c *Catalog) add(a Activity) error {
	id := a.Meta().ID
	if _, dup := c.byID[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateActivity, id)
	}
	c.byID[id] = a
	c.list = append(c.list, a)
	return nil
}

func (c *Catalog) Get(id string) (Activity, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// Crime returns the weighted-choice activity with the given id.
func (c *Catalog) Crime(id string) (*WeightedChoice, bool) {
	a, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	w, ok := a.(*WeightedChoice)
	return w, ok
}

func (c *Catalog) Len() int { return len(c.list) }

func (c *Catalog) List() []Activity {
	return append([]Activity(nil), c.list...)
}

// ListKind filters by kind; an empty kind returns everything.
func (c *Catalog) ListKind(kind Kind) []Activity {
	if kind == "" {
		return c.List()
	}
	var out []Activity
	for _, a := range c.list {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}

type Picker interface {
	Intn(n int) int
}

func (c *Catalog) PickRandom(r Picker, kind Kind) (Activity, error) {
	pool := c.ListKind(kind)
	if len(pool) == 0 {
		return nil, ErrNoActivities
	}
	return pool[r.Intn(len(pool))], nil
}

func (sc Scene) validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: scene %q: %s", ErrInvalidScene, sc.ID, fmt.Sprintf(format, args...))
	}
	if !idRE.MatchString(sc.ID) {
		return bad("id must be lowercase [a-z0-9_-], max 28 chars")
	}
	if !idRE.MatchString(sc.CooldownKey) {
		return bad("cooldown_key required")
	}
	if sc.Cooldown < 0 {
		return bad("negative cooldown")
	}
	switch sc.Kind {
	case KindWeighted:
		if len(sc.Options) < 2 {
			return bad("weighted scenes need at least two options")
		}
		seen := map[string]bool{}
		for _, o := range sc.Options {
			if !idRE.MatchString(o.ID) || seen[o.ID] {
				return bad("option id %q invalid or repeated", o.ID)
			}
			seen[o.ID] = true
			if o.P < 0 || o.P > 1 || math.IsNaN(o.P) {
				return bad("option %q: p must be in [0,1]", o.ID)
			}
			if !o.Reward.valid() || !o.Penalty.valid() {
				return bad("option %q: ranges need 0 <= min <= max", o.ID)
			}
		}
	case KindPuzzle:
		if n := len(sc.Alternatives); n < 3 || n > 4 {
			return bad("puzzle scenes need 3 or 4 alternatives")
		}
		seen := map[string]bool{}
		for _, a := range sc.Alternatives {
			if !idRE.MatchString(a.ID) || seen[a.ID] {
				return bad("alternative id %q invalid or repeated", a.ID)
			}
			seen[a.ID] = true
		}
		if !sc.Reward.valid() || !sc.Penalty.valid() {
			return bad("ranges need 0 <= min <= max")
		}
	default:
		return bad("unknown kind %q", sc.Kind)
	}
	return nil
}

func (sc Scene) expand(tp TierParams, tier int) Activity {
	h := Header{
		ID:          fmt.Sprintf("%s-t%d", sc.ID, tier),
		Scene:       sc.ID,
		Title:       sc.Title,
		Tier:        tier,
		Prompt:      sc.Prompt,
		CooldownKey: sc.CooldownKey,
		Cooldown:    sc.Cooldown,
	}
	stakes := tp.stakes(tier)
	if sc.Kind == KindPuzzle {
		return &SeededPuzzle{
			Header:       h,
			Alternatives: append([]Alternative(nil), sc.Alternatives...),
			Reward:       sc.Reward.scale(stakes),
			Penalty:      sc.Penalty.scale(stakes),
		}
	}
	w := &WeightedChoice{Header: h, Options: make([]Option, 0, len(sc.Options))}
	for _, o := range sc.Options {
		w.Options = append(w.Options, Option{
			ID:      o.ID,
			Label:   o.Label,
			P:       clamp01(o.P * tp.odds(tier)),
			Reward:  o.Reward.scale(stakes),
			Penalty: o.Penalty.scale(stakes),
		})
	}
	return w
}

func roundUp(v float64) int64 {
	return int64(math.Ceil(v - 1e-9))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
