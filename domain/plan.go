package domain

const (
	PlanFreeUser = "free_user"
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

// PlanCredits maps each subscription tier to its monthly credit quota.
var PlanCredits = map[string]int{
	PlanFreeUser: 0,
	PlanStandard: 10,
	PlanPremium:  24,
}

// PlanPrecedence orders tiers for entitlement resolution, highest first.
// When the provider reports more than one active tier the first match wins.
var PlanPrecedence = []string{PlanPremium, PlanStandard, PlanFreeUser}
