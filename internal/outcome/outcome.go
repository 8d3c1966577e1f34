// Package outcome names the structured failures the economy core reports to
// front-ends instead of returning Go errors.
package outcome

import "errors"

type Failure string

const (
	None                  Failure = ""
	InsufficientFunds     Failure = "insufficient-funds"
	InsufficientMaterials Failure = "insufficient-materials"
	CooldownActive        Failure = "cooldown-active"
	UnknownActivity       Failure = "unknown-activity"
	UnknownRecipe         Failure = "unknown-recipe"
	AmbiguousRecipe       Failure = "ambiguous-recipe"
	InvalidChoice         Failure = "invalid-choice"
	NotOwner              Failure = "not-owner"
	RaceLost              Failure = "race-lost"
	DatastoreUnavailable  Failure = "datastore-unavailable"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientMaterials = errors.New("insufficient materials")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrUnknownActivity       = errors.New("unknown activity")
	ErrUnknownRecipe         = errors.New("unknown recipe")
	ErrAmbiguousRecipe       = errors.New("ambiguous recipe")
	ErrInvalidChoice         = errors.New("invalid choice")
	ErrNotOwner              = errors.New("not the owner of this action")
	ErrRaceLost              = errors.New("lost a race against a concurrent update")
	ErrDatastoreUnavailable  = errors.New("datastore unavailable")
)

var failureErrs = map[Failure]error{
	InsufficientFunds:     ErrInsufficientFunds,
	InsufficientMaterials: ErrInsufficientMaterials,
	CooldownActive:        ErrCooldownActive,
	UnknownActivity:       ErrUnknownActivity,
	UnknownRecipe:         ErrUnknownRecipe,
	AmbiguousRecipe:       ErrAmbiguousRecipe,
	InvalidChoice:         ErrInvalidChoice,
	NotOwner:              ErrNotOwner,
	RaceLost:              ErrRaceLost,
	DatastoreUnavailable:  ErrDatastoreUnavailable,
}

// Err returns the sentinel for f, or nil for None.
func (f Failure) Err() error {
	return failureErrs[f]
}

// Of maps an error back to its Failure; unknown errors are None.
func Of(err error) Failure {
	if err == nil {
		return None
	}
	for f, sentinel := range failureErrs {
		if errors.Is(err, sentinel) {
			return f
		}
	}
	return None
}
