package game

import (
	"time"

	"bountybot/internal/catalog"
	"bountybot/internal/outcome"
)

// Re-exported so front-ends only import game.
var (
	ErrUnknownActivity = outcome.ErrUnknownActivity
	ErrUnknownRecipe   = outcome.ErrUnknownRecipe
	ErrAmbiguousRecipe = outcome.ErrAmbiguousRecipe
	ErrInvalidChoice   = outcome.ErrInvalidChoice
	ErrNotOwner        = outcome.ErrNotOwner
)

type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Token string `json:"token"`
}

// Prompt is the first presentation of an activity instance. Every choice
// carries its own action token; nothing about the instance is stored.
type Prompt struct {
	OwnerID           string         `json:"owner_id"`
	Activity          catalog.Header `json:"activity"`
	Kind              catalog.Kind   `json:"kind"`
	Choices           []Choice       `json:"choices"`
	CooldownRemaining time.Duration  `json:"cooldown_remaining"`
}

// Outcome is the terminal result of one click.
type Outcome struct {
	OwnerID           string          `json:"owner_id"`
	ActorID           string          `json:"actor_id"`
	ActivityID        string          `json:"activity_id,omitempty"`
	Kind              catalog.Kind    `json:"kind,omitempty"`
	ChoiceID          string          `json:"choice_id,omitempty"`
	Resolved          bool            `json:"resolved"`
	Success           bool            `json:"success"`
	Failure           outcome.Failure `json:"failure,omitempty"`
	Amount            int64           `json:"amount"`
	Debited           int64           `json:"debited"`
	NewBalance        int64           `json:"new_balance"`
	CooldownRemaining time.Duration   `json:"cooldown_remaining,omitempty"`
	CorrectChoiceID   string          `json:"correct_choice_id,omitempty"`
	// Disabled tells the front-end to render the controls inert so the same
	// token cannot be clicked again.
	Disabled bool `json:"disabled"`
}

func (o Outcome) Err() error {
	return o.Failure.Err()
}
