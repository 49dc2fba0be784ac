package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// ApplyEarn credits points to the account.
func ApplyEarn(a *model.Account, points decimal.Decimal) {
	a.CurrentPoints = a.CurrentPoints.Add(points)
	a.TotalEarned = a.TotalEarned.Add(points)
}

// ApplyRedeem debits points from the account. The account is left
// untouched when the balance cannot cover the whole amount.
func ApplyRedeem(a *model.Account, points decimal.Decimal) error {
	if !points.IsPositive() {
		return ErrNonPositiveAmount
	}
	if points.GreaterThan(a.CurrentPoints) {
		return ErrInsufficientPoints
	}
	a.CurrentPoints = a.CurrentPoints.Sub(points)
	a.TotalRedeemed = a.TotalRedeemed.Add(points)
	return nil
}

// ApplyExpiry moves the whole remaining balance into TotalExpired and
// returns the amount moved.
func ApplyExpiry(a *model.Account) decimal.Decimal {
	expired := a.CurrentPoints
	if !expired.IsPositive() {
		return decimal.Zero
	}
	a.TotalExpired = a.TotalExpired.Add(expired)
	a.CurrentPoints = decimal.Zero
	return expired
}

// Representable reports whether d fits NUMERIC(digits, scale) exactly, so
// storing it neither rounds nor overflows. Trailing zeros don't count.
func Representable(d decimal.Decimal, digits, scale int32) bool {
	if !d.Equal(d.Truncate(scale)) {
		return false
	}
	return d.Abs().LessThan(decimal.New(1, digits-scale))
}

// PointsRepresentable reports whether d can be stored in a points column.
func PointsRepresentable(d decimal.Decimal) bool {
	return Representable(d, model.PointsDigits, model.PointsPrecision)
}

// ValidateAccrual checks that crediting points keeps every balance column
// storable. It never mutates the account.
func ValidateAccrual(a model.Account, points decimal.Decimal) error {
	if !points.Equal(points.Truncate(model.PointsPrecision)) {
		return ErrPointsPrecision
	}
	if !PointsRepresentable(a.CurrentPoints.Add(points)) || !PointsRepresentable(a.TotalEarned.Add(points)) {
		return ErrPointsOverflow
	}
	return nil
}

// Balanced reports whether current == earned - redeemed - expired.
func Balanced(a model.Account) bool {
	return a.CurrentPoints.Equal(a.TotalEarned.Sub(a.TotalRedeemed).Sub(a.TotalExpired))
}

// Expired reports whether the account's balance is past its expiry date.
func Expired(a model.Account, now time.Time) bool {
	return a.ExpiryDate != nil && a.ExpiryDate.Before(now)
}

// AvailablePoints is the redeemable balance. Points past their expiry date
// are not available even before the sweeper has zeroed them.
func AvailablePoints(a model.Account, now time.Time) decimal.Decimal {
	if Expired(a, now) {
		return decimal.Zero
	}
	return a.CurrentPoints
}

// SignedAmount returns the transaction's effect on the balance.
func SignedAmount(t model.Transaction) decimal.Decimal {
	switch t.Type {
	case model.TransactionEarned:
		return t.PointsAmount
	case model.TransactionRedeemed, model.TransactionExpired:
		return t.PointsAmount.Neg()
	default:
		return decimal.Zero
	}
}

// Reconcile checks that the ledger entries rebuild the account balance exactly.
func Reconcile(a model.Account, txns []model.Transaction) error {
	sum := decimal.Zero
	for _, t := range txns {
		sum = sum.Add(SignedAmount(t))
	}
	if !sum.Equal(a.CurrentPoints) {
		return fmt.Errorf("%w: ledger=%s balance=%s", ErrLedgerMismatch, sum, a.CurrentPoints)
	}
	if !Balanced(a) {
		return fmt.Errorf("%w: totals do not match balance %s", ErrLedgerMismatch, a.CurrentPoints)
	}
	return nil
}
