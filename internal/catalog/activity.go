package catalog

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindWeighted Kind = "weighted"
	KindPuzzle   Kind = "puzzle"
)

// Range is an inclusive integer interval, written [min, max] in YAML.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	var pair []int64
	if err := node.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: range needs exactly two values", node.Line)
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

func (r Range) valid() bool {
	return r.Min >= 0 && r.Min <= r.Max
}

func (r Range) scale(f float64) Range {
	return Range{Min: roundUp(float64(r.Min) * f), Max: roundUp(float64(r.Max) * f)}
}

// Header carries the fields every activity has.
type Header struct {
	ID          string        `json:"id"`
	Scene       string        `json:"scene"`
	Title       string        `json:"title"`
	Tier        int           `json:"tier"`
	Prompt      string        `json:"prompt"`
	CooldownKey string        `json:"cooldown_key"`
	Cooldown    time.Duration `json:"cooldown"`
}

func (h Header) Meta() Header { return h }

// Activity is closed: *WeightedChoice and *SeededPuzzle are the only
// implementations.
type Activity interface {
	Meta() Header
	Kind() Kind
	sealed()
}

type Option struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	P       float64 `json:"p"`
	Reward  Range   `json:"reward"`
	Penalty Range   `json:"penalty"`
}

// WeightedChoice resolves by one fresh draw against the chosen option's P.
type WeightedChoice struct {
	Header
	Options []Option `json:"options"`
}

func (*WeightedChoice) Kind() Kind { return KindWeighted }
func (*WeightedChoice) sealed()    {}

func (w *WeightedChoice) Option(id string) (Option, bool) {
	for _, o := range w.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

type Alternative struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SeededPuzzle has exactly one correct alternative, chosen by the seed drawn
// when the instance is presented.
type SeededPuzzle struct {
	Header
	Alternatives []Alternative `json:"alternatives"`
	Reward       Range         `json:"reward"`
	Penalty      Range         `json:"penalty"`
}

func (*SeededPuzzle) Kind() Kind { return KindPuzzle }
func (*SeededPuzzle) sealed()    {}

// Correct returns the index of the right alternative for seed.
func (p *SeededPuzzle) Correct(seed uint32) int {
	return int(seed % uint32(len(p.Alternatives)))
}

func (p *SeededPuzzle) Alternative(id string) (int, Alternative, bool) {
	for i, a := range p.Alternatives {
		if a.ID == id {
			return i, a, true
		}
	}
	return -1, Alternative{}, false
}
