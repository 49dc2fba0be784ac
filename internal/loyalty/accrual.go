package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

var one = decimal.NewFromInt(1)

// Accrual is the outcome of converting a spend into points.
type Accrual struct {
	Points decimal.Decimal
	// Multiplier is the combined tier, promo and source bonus factor.
	Multiplier decimal.Decimal
}

// CalculatePoints converts spend into points for a program at the given tier.
// Spend below the program minimum earns zero points without error.
func CalculatePoints(program model.Program, tier *model.Tier, spend decimal.Decimal, source model.Source, promo decimal.Decimal) (Accrual, error) {
	if spend.IsNegative() {
		return Accrual{}, ErrNegativeSpend
	}
	if !promo.IsPositive() {
		return Accrual{}, ErrInvalidPromoMultiplier
	}
	if !source.Earnable() {
		return Accrual{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	multiplier := promo.Mul(SourceBonus(program, source))
	if tier != nil {
		multiplier = multiplier.Mul(tier.PointsMultiplier)
	}

	if spend.LessThan(program.MinimumSpendForPoints) {
		return Accrual{Points: decimal.Zero, Multiplier: multiplier}, nil
	}

	points := spend.Mul(program.PointsPerCurrency).Mul(multiplier).Round(model.PointsPrecision)
	return Accrual{Points: points, Multiplier: multiplier}, nil
}

// SourceBonus returns the program's bonus multiplier for source, or 1.
func SourceBonus(program model.Program, source model.Source) decimal.Decimal {
	if b, ok := program.BonusMultipliers[source]; ok && b.IsPositive() {
		return b
	}
	return one
}

// NextExpiry returns when a balance refreshed at now expires, or nil when
// the program never expires points.
func NextExpiry(program model.Program, now time.Time) *time.Time {
	if program.PointsExpiryDays <= 0 {
		return nil
	}
	expiry := now.AddDate(0, 0, program.PointsExpiryDays)
	return &expiry
}
