package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the privilege level of an Identity.
type Role string

const (
	RoleUser      Role = "USER"
	RoleValidator Role = "VALIDATOR"
	RoleAdmin     Role = "ADMIN"
)

// CanReview reports whether the role may finalize submissions and
// browse submissions it does not own.
func (r Role) CanReview() bool {
	switch r {
	case RoleValidator, RoleAdmin:
		return true
	case RoleUser:
		return false
	}
	return false
}

// PointBalance tracks DCU points earned by an identity, broken down by
// origin. Amounts are decimals so partial awards survive future
// reward-rate changes without integer truncation.
type PointBalance struct {
	Total           decimal.Decimal `json:"total"`
	FromSubmissions decimal.Decimal `json:"from_submissions"`
	FromReferrals   decimal.Decimal `json:"from_referrals"`
	FromStreaks     decimal.Decimal `json:"from_streaks"`
}

// Identity represents one wallet-controlled principal.
//
// CurrentNonce is present only between challenge issuance and
// consumption; an empty string means no outstanding challenge.
type Identity struct {
	Address      string      // canonical lowercase wallet address, unique
	DisplayName  string      // optional resolved name service alias
	Role         Role
	CurrentNonce string
	ImpactLevel  ImpactLevel
	ImpactValue  int
	Points       PointBalance
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
