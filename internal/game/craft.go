package game

import (
	"context"

	"bountybot/internal/crafting"
	"bountybot/internal/outcome"
)

// ResolveRecipe finds a recipe by list index, id or name. An ambiguous name
// returns the candidates alongside ErrAmbiguousRecipe.
func (s *Service) ResolveRecipe(query string) (crafting.Recipe, []crafting.Recipe, error) {
	return s.crafting.Recipes().Resolve(query)
}

// Craft resolves query and crafts it for userID. Lookup failures come back as
// a structured Outcome like every other game failure.
func (s *Service) Craft(ctx context.Context, userID, query string) (crafting.Outcome, []crafting.Recipe, error) {
	r, candidates, err := s.ResolveRecipe(query)
	if err != nil {
		return crafting.Outcome{Failure: outcome.Of(err)}, candidates, nil
	}
	out, err := s.crafting.Craft(ctx, userID, r)
	return out, nil, err
}
