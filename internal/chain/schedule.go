package chain

import (
	"math"
	"strings"

	pkgerrors "github.com/corvuslabs/credit-oracle-backend/pkg/errors"
)

// The credit schedule mirrors the on-chain pricing and is evaluated
// off-chain so recording endpoints never need an RPC round-trip.

var actionCredits = map[string]int64{
	"like":    1,
	"comment": 2,
	"repost":  3,
	"quote":   4,
	"yap":     5,
}

var inferenceCosts = map[string]int64{
	"basic":          1,
	"tags":           2,
	"price_accuracy": 4,
	"full":           6,
}

const (
	creditsPerQuest      = 10
	creditsPerStreakDay  = 2
	creditsPerReferral   = 25
	maxCalculatedCredits = 10_000
)

// Initial grant given to a fresh wallet with no credits and no active
// subscription. Signed by the operator wallet, not the oracle key.
const (
	InitialGrantCredits = 50
	InitialGrantReason  = "initial_grant"
)

// ActionCredit returns the flat credit amount for an engagement action.
func ActionCredit(action string) (int64, error) {
	credits, ok := actionCredits[strings.ToLower(action)]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported action")
	}
	return credits, nil
}

// CalculateCredits evaluates the parameterized credit formula for a reason.
// The result is clamped to a sanity ceiling; callers reject non-positive
// results before recording.
func CalculateCredits(reason string, parameter float64) (int64, error) {
	if math.IsNaN(parameter) || math.IsInf(parameter, 0) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "parameter must be a finite number")
	}

	var credits int64
	switch strings.ToLower(reason) {
	case "social_quest":
		credits = int64(parameter) * creditsPerQuest
	case "prompt_streak":
		credits = int64(parameter) * creditsPerStreakDay
	case "referral":
		credits = int64(parameter) * creditsPerReferral
	default:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported reason")
	}

	if credits > maxCalculatedCredits {
		credits = maxCalculatedCredits
	}
	return credits, nil
}

// InferenceCost prices an inference request for the given mode.
func InferenceCost(mode string, quantity int64) (int64, error) {
	cost, ok := inferenceCosts[strings.ToLower(mode)]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported mode")
	}
	if quantity <= 0 {
		quantity = 1
	}
	return cost * quantity, nil
}
