package world

// Deterministic relationship formulas. These sit underneath AI-provided
// deltas: rule-based providers compute with them directly and the engine uses
// them as a sanity bound for AI-suggested pricing.
//
// Constants are fixed here rather than inferred per call so that outcomes are
// reproducible and testable:
//
//   - accepting a fair offer rewards trust more than a rejected low-ball
//     penalizes it, so exploratory haggling is not punishing
//   - theft and hire are never guaranteed nor impossible at any skill level
const (
	// DefaultTrust is the trust an NPC extends to an agent on first contact.
	DefaultTrust = 0.3

	// TrustAcceptIncrement is added when an NPC accepts an offer.
	TrustAcceptIncrement = 0.05
	// TrustRejectDecrement is subtracted when an NPC rejects an offer.
	TrustRejectDecrement = 0.02

	// TheftBaseRate is the skill-free chance a theft attempt succeeds.
	TheftBaseRate = 0.30
	// TheftSkillBonus is the per-point contribution of the relevant skill.
	TheftSkillBonus = 0.05
	// TheftGuardPenalty is the per-guard reduction of the success chance.
	TheftGuardPenalty = 0.15
	// ChanceFloor and ChanceCeiling bound every success probability.
	ChanceFloor   = 0.05
	ChanceCeiling = 0.95
)

// MinAcceptablePrice is the lowest offer an NPC will accept for an item of
// the given base value at the given trust level:
//
//	floor = base * (1.5 - trust)
//
// Full trust (1.0) halves the base price; zero trust demands 1.5x. An offer
// exactly at the floor is accepted.
func MinAcceptablePrice(baseValue float64, trust float64) float64 {
	return baseValue * (1.5 - clamp(trust, 0, 1))
}

// EvaluateOffer applies the negotiation rule for an offer on an item with the
// given base value. It returns whether the offer clears the trust-adjusted
// floor and the trust delta to apply to the relationship afterwards.
func EvaluateOffer(offer, baseValue, trust float64) (accepted bool, trustDelta float64) {
	if offer >= MinAcceptablePrice(baseValue, trust) {
		return true, TrustAcceptIncrement
	}
	return false, -TrustRejectDecrement
}

// TheftSuccessChance is the probability a theft attempt succeeds given the
// acting character's relevant skill level and the number of guards present:
//
//	chance = clamp(base + skill*bonus - guards*penalty, 0.05, 0.95)
func TheftSuccessChance(skill, guards int) float64 {
	return clamp(TheftBaseRate+float64(skill)*TheftSkillBonus-float64(guards)*TheftGuardPenalty,
		ChanceFloor, ChanceCeiling)
}

// HireSuccessChance mirrors the theft formula for hiring attempts, using the
// hirer's persuasion skill and the target's reluctance expressed through
// trust: low trust acts like guards do for theft (one reluctance step per
// 0.25 of missing trust).
func HireSuccessChance(persuasion int, trust float64) float64 {
	reluctance := int((1 - clamp(trust, 0, 1)) / 0.25)
	return clamp(TheftBaseRate+float64(persuasion)*TheftSkillBonus-float64(reluctance)*TheftGuardPenalty,
		ChanceFloor, ChanceCeiling)
}
