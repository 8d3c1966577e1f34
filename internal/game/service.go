package game

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"bountybot/internal/catalog"
	"bountybot/internal/crafting"
	"bountybot/internal/ledger"
	"bountybot/internal/token"
)

var tracer = otel.Tracer("bountybot/game")

// Service is the single entry point front-ends call. It keeps no per-user
// or per-instance state; the datastore and the action tokens carry it all.
type Service struct {
	ledger     *ledger.Ledger
	activities *catalog.Catalog
	crafting   *crafting.Engine
	codec      *token.Codec
	log        *slog.Logger

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(l *ledger.Ledger, activities *catalog.Catalog, engine *crafting.Engine, codec *token.Codec, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = token.NewCodec("")
	}
	return &Service{
		ledger:     l,
		activities: activities,
		crafting:   engine,
		codec:      codec,
		log:        logger,
		rand:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source. Intended for tests.
func (s *Service) WithRand(r *mathrand.Rand) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = r
	return s
}

func (s *Service) Ledger() *ledger.Ledger       { return s.ledger }
func (s *Service) Activities() *catalog.Catalog { return s.activities }
func (s *Service) Recipes() *crafting.Catalog   { return s.crafting.Recipes() }
func (s *Service) Codec() *token.Codec          { return s.codec }

// CrimeActivity returns a weighted-choice activity by id.
func (s *Service) CrimeActivity(id string) (*catalog.WeightedChoice, error) {
	w, ok := s.activities.Crime(id)
	if !ok {
		return nil, ErrUnknownActivity
	}
	return w, nil
}

// Present builds the first prompt for activityID. Seeded puzzles draw their
// seed here, once, and every alternative's token carries it.
func (s *Service) Present(ctx context.Context, userID, activityID string) (Prompt, error) {
	ctx, span := tracer.Start(ctx, "game.Present")
	defer span.End()

	act, ok := s.activities.Get(activityID)
	if !ok {
		return Prompt{}, ErrUnknownActivity
	}
	var seed uint32
	if act.Kind() == catalog.KindPuzzle {
		seed = s.nextSeed()
	}
	p, err := s.prompt(userID, act, seed)
	if err != nil {
		return p, err
	}

	acct, err := s.ledger.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return p, err
	}
	h := act.Meta()
	if last, ok := acct.Cooldowns[h.CooldownKey]; ok {
		if rem := last.Add(h.Cooldown).Sub(s.ledger.Now()); rem > 0 {
			p.CooldownRemaining = rem
		}
	}
	return p, nil
}

// PresentRandom picks an activity of kind (any kind when empty) and presents it.
func (s *Service) PresentRandom(ctx context.Context, userID string, kind catalog.Kind) (Prompt, error) {
	s.mu.Lock()
	act, err := s.activities.PickRandom(s.rand, kind)
	s.mu.Unlock()
	if err != nil {
		return Prompt{}, fmt.Errorf("%w: %v", ErrUnknownActivity, err)
	}
	return s.Present(ctx, userID, act.Meta().ID)
}

// Rerender rebuilds the prompt an action token belongs to. The tokens it
// returns are identical to the ones first presented.
func (s *Service) Rerender(raw string) (Prompt, error) {
	tok, err := s.codec.Decode(raw)
	if err != nil {
		return Prompt{}, fmt.Errorf("%w: %v", ErrInvalidChoice, err)
	}
	act, ok := s.activities.Get(tok.ActivityID)
	if !ok {
		return Prompt{}, ErrUnknownActivity
	}
	if wantVerb(act) != tok.Verb {
		return Prompt{}, ErrInvalidChoice
	}
	return s.prompt(tok.OwnerID, act, tok.Seed)
}

func (s *Service) prompt(userID string, act catalog.Activity, seed uint32) (Prompt, error) {
	p := Prompt{OwnerID: userID, Activity: act.Meta(), Kind: act.Kind()}
	base := token.Token{Verb: wantVerb(act), OwnerID: userID, ActivityID: act.Meta().ID}

	add := func(id, label string) error {
		t := base
		t.ChoiceID = id
		raw, err := s.codec.Encode(t)
		if err != nil {
			return fmt.Errorf("encode token for %s/%s: %w", t.ActivityID, id, err)
		}
		p.Choices = append(p.Choices, Choice{ID: id, Label: label, Token: raw})
		return nil
	}

	switch a := act.(type) {
	case *catalog.WeightedChoice:
		for _, o := range a.Options {
			if err := add(o.ID, o.Label); err != nil {
				return p, err
			}
		}
	case *catalog.SeededPuzzle:
		base.Seed, base.HasSeed = seed, true
		for _, alt := range a.Alternatives {
			if err := add(alt.ID, alt.Label); err != nil {
				return p, err
			}
		}
	default:
		return p, ErrUnknownActivity
	}
	return p, nil
}

func wantVerb(act catalog.Activity) token.Verb {
	if act.Kind() == catalog.KindPuzzle {
		return token.VerbPick
	}
	return token.VerbChoose
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (s *Service) nextSeed() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Uint32()
}

// sample draws uniformly from the inclusive range.
func (s *Service) sample(r catalog.Range) int64 {
	if r.Max <= r.Min {
		return r.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.Min + s.rand.Int63n(r.Max-r.Min+1)
}
