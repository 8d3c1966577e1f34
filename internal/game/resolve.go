package game

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bountybot/internal/catalog"
	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
	"bountybot/internal/token"
)

// Draw reports whether sample u in [0,1) succeeds against probability p.
func Draw(u, p float64) bool {
	return u < p
}

// BuildOutcome decodes raw and resolves it for actorID. A token that does not
// decode is reported as invalid-choice, never guessed at.
func (s *Service) BuildOutcome(ctx context.Context, actorID, raw string) (Outcome, error) {
	tok, err := s.codec.Decode(raw)
	if err != nil {
		s.log.Warn("rejected action token", "actor_id", actorID, "err", err)
		return Outcome{ActorID: actorID, Failure: outcome.InvalidChoice, Disabled: true}, nil
	}
	return s.Resolve(ctx, actorID, tok)
}

// Resolve applies one click. The returned error is non-nil only when the
// datastore is unavailable; every other failure is carried in the Outcome and
// leaves the account untouched.
func (s *Service) Resolve(ctx context.Context, actorID string, tok token.Token) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "game.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("actor_id", actorID),
		attribute.String("activity", tok.ActivityID),
		attribute.String("choice", tok.ChoiceID),
	)

	out, err := s.resolve(ctx, actorID, tok)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		if errors.Is(err, ledger.ErrUnavailable) {
			out.Failure = outcome.DatastoreUnavailable
		}
		return out, err
	}
	span.SetAttributes(attribute.Bool("success", out.Success), attribute.String("failure", string(out.Failure)))
	return out, nil
}

func (s *Service) resolve(ctx context.Context, actorID string, tok token.Token) (Outcome, error) {
	out := Outcome{
		OwnerID:    tok.OwnerID,
		ActorID:    actorID,
		ActivityID: tok.ActivityID,
		ChoiceID:   tok.ChoiceID,
	}
	if actorID != tok.OwnerID {
		out.Failure = outcome.NotOwner
		return out, nil
	}

	act, ok := s.activities.Get(tok.ActivityID)
	if !ok {
		out.Failure = outcome.UnknownActivity
		out.Disabled = true
		return out, nil
	}
	out.Kind = act.Kind()

	// Pick the ranges and the winning condition before anything is claimed so
	// a bad choice never burns the cooldown.
	var (
		reward, penalty catalog.Range
		win             func() bool
	)
	switch a := act.(type) {
	case *catalog.WeightedChoice:
		opt, ok := a.Option(tok.ChoiceID)
		if !ok || tok.Verb != token.VerbChoose {
			out.Failure = outcome.InvalidChoice
			out.Disabled = true
			return out, nil
		}
		reward, penalty = opt.Reward, opt.Penalty
		win = func() bool { return Draw(s.nextFloat(), opt.P) }
	case *catalog.SeededPuzzle:
		idx, _, ok := a.Alternative(tok.ChoiceID)
		if !ok || tok.Verb != token.VerbPick || !tok.HasSeed {
			out.Failure = outcome.InvalidChoice
			out.Disabled = true
			return out, nil
		}
		correct := a.Correct(tok.Seed)
		out.CorrectChoiceID = a.Alternatives[correct].ID
		reward, penalty = a.Reward, a.Penalty
		win = func() bool { return idx == correct }
	default:
		out.Failure = outcome.UnknownActivity
		out.Disabled = true
		return out, nil
	}

	h := act.Meta()
	claim, err := s.ledger.ClaimCooldown(ctx, tok.OwnerID, h.CooldownKey, h.Cooldown)
	if err != nil {
		out.CorrectChoiceID = ""
		return out, err
	}
	if !claim.OK {
		out.CorrectChoiceID = ""
		out.Failure = outcome.CooldownActive
		out.CooldownRemaining = claim.Remaining
		out.Disabled = true
		return out, nil
	}

	out.Resolved = true
	out.Disabled = true
	out.Success = win()
	if out.Success {
		err = s.award(ctx, &out, s.sample(reward))
	} else {
		err = s.penalize(ctx, &out, s.sample(penalty))
	}
	if err != nil {
		return out, err
	}
	s.log.Info("activity resolved",
		"user_id", out.OwnerID,
		"activity", out.ActivityID,
		"choice", out.ChoiceID,
		"success", out.Success,
		"amount", out.Amount,
		"debited", out.Debited,
	)
	return out, nil
}

func (s *Service) award(ctx context.Context, out *Outcome, amount int64) error {
	out.Amount = amount
	if amount <= 0 {
		return s.readBalance(ctx, out)
	}
	res, err := s.ledger.AwardBalance(ctx, out.OwnerID, amount)
	if err != nil {
		return fmt.Errorf("award %d to %s: %w", amount, out.OwnerID, err)
	}
	out.NewBalance = res.NewBalance
	return nil
}

func (s *Service) penalize(ctx context.Context, out *Outcome, amount int64) error {
	out.Amount = amount
	if amount <= 0 {
		return s.readBalance(ctx, out)
	}
	res, err := s.ledger.DebitBalance(ctx, out.OwnerID, amount)
	if err != nil {
		return fmt.Errorf("debit %d from %s: %w", amount, out.OwnerID, err)
	}
	out.Debited = res.Debited
	out.NewBalance = res.NewBalance
	return nil
}

func (s *Service) readBalance(ctx context.Context, out *Outcome) error {
	acct, err := s.ledger.GetOrCreateAccount(ctx, out.OwnerID)
	if err != nil {
		return err
	}
	out.NewBalance = acct.Balance
	return nil
}
