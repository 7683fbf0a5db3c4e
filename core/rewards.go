package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImpactLevel is the coarse tier derived from a numeric progress level.
type ImpactLevel string

const (
	ImpactNewbie   ImpactLevel = "NEWBIE"
	ImpactPro      ImpactLevel = "PRO"
	ImpactHero     ImpactLevel = "HERO"
	ImpactGuardian ImpactLevel = "GUARDIAN"
)

// Numeric level bounds for reward claims.
const (
	MinLevel = 1
	MaxLevel = 10
)

// SubmissionClaimPoints is the DCU award for claiming one verified
// submission.
var SubmissionClaimPoints = decimal.NewFromInt(10)

// ImpactLevelForLevel maps a numeric level (1-10) to its tier.
// Brackets are boundary-inclusive with no gaps: 1-3 NEWBIE, 4-6 PRO,
// 7-9 HERO, 10 GUARDIAN.
func ImpactLevelForLevel(level int) (ImpactLevel, error) {
	switch {
	case level < MinLevel || level > MaxLevel:
		return "", ErrValidation
	case level <= 3:
		return ImpactNewbie, nil
	case level <= 6:
		return ImpactPro, nil
	case level <= 9:
		return ImpactHero, nil
	default:
		return ImpactGuardian, nil
	}
}

// ClaimMessage returns the congratulatory copy shown after a claim.
func ClaimMessage(level int) string {
	switch level {
	case MinLevel:
		return "Congratulations! You've just received the first level of DeCleanup Impact Product. Come back for more! Share your referral with friends and earn more DCU Points."
	case MaxLevel:
		return "Congratulations! You've successfully completed all levels of DeCleanup journey at this phase! Stay updated for new level updates."
	default:
		return "Congratulations! You've just upgraded to a higher level of DeCleanup Impact Product. Come back for more!"
	}
}

// ClaimResult is what a successful reward claim returns to the caller.
type ClaimResult struct {
	SubmissionID string          `json:"submission_id"`
	Level        int             `json:"level"`
	Tier         ImpactLevel     `json:"tier"`
	Eligible     bool            `json:"eligible"`
	Points       decimal.Decimal `json:"points"`
	Message      string          `json:"message"`
	ClaimedAt    time.Time       `json:"claimed_at"`
}
