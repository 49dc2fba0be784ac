package loyalty

import "errors"

var (
	// ErrNegativeSpend is returned when a spend amount is below zero.
	ErrNegativeSpend = errors.New("spend amount must not be negative")

	// ErrInvalidPromoMultiplier is returned when a promo multiplier is zero or negative.
	ErrInvalidPromoMultiplier = errors.New("promo multiplier must be positive")

	// ErrUnknownSource is returned when points are accrued from a source that is not earnable.
	ErrUnknownSource = errors.New("unknown points source")

	// ErrNonPositiveAmount is returned when a redemption amount is zero or negative.
	ErrNonPositiveAmount = errors.New("points amount must be positive")

	// ErrPointsPrecision is returned when a points amount has more decimal places than the ledger stores.
	ErrPointsPrecision = errors.New("points amount has too many decimal places")

	// ErrPointsOverflow is returned when a movement would push a balance past what the ledger can store.
	ErrPointsOverflow = errors.New("points amount exceeds ledger capacity")

	// ErrUnknownRedemptionType is returned for redemption types outside the closed set.
	ErrUnknownRedemptionType = errors.New("unknown redemption type")

	// ErrInsufficientPoints is returned when a redemption exceeds the available balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrLedgerMismatch is returned when ledger entries do not reconstruct the balance.
	ErrLedgerMismatch = errors.New("ledger does not reconcile with account balance")
)
