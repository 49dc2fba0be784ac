package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// ValidateRedemption checks a redemption against the account's available
// balance at now. It never mutates the account.
func ValidateRedemption(a model.Account, amount decimal.Decimal, redemptionType model.RedemptionType, now time.Time) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if !amount.Equal(amount.Truncate(model.PointsPrecision)) {
		return ErrPointsPrecision
	}
	if !redemptionType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRedemptionType, redemptionType)
	}
	if amount.GreaterThan(AvailablePoints(a, now)) {
		return ErrInsufficientPoints
	}
	return nil
}
