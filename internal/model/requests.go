package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProgramRequest is the DTO for creating a loyalty program with its initial tiers.
type CreateProgramRequest struct {
	Name                  string                     `json:"name" validate:"required,notblank,max=255"`
	PointsPerCurrency     *decimal.Decimal           `json:"points_per_currency" validate:"required,gt=0"`
	MinimumSpendForPoints decimal.Decimal            `json:"minimum_spend_for_points" validate:"gte=0,lte=999999999999.99"`
	PointsExpiryDays      int                        `json:"points_expiry_days" validate:"gte=0,lte=3650"`
	BonusMultipliers      map[Source]decimal.Decimal `json:"bonus_multipliers" validate:"omitempty,dive,keys,earn_source,endkeys,gt=0"`
	Tiers                 []CreateTierRequest        `json:"tiers" validate:"required,min=1,dive"`
}

// CreateTierRequest is the DTO for appending a tier to a program.
type CreateTierRequest struct {
	Name               string           `json:"name" validate:"required,notblank,max=100"`
	MinPointsRequired  decimal.Decimal  `json:"min_points_required" validate:"gte=0,lte=999999999999.99"`
	PointsMultiplier   *decimal.Decimal `json:"points_multiplier" validate:"required,gte=1"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage" validate:"gte=0,lte=100"`
}

// ProgramResponse is the API response DTO for a program and its ordered tiers.
type ProgramResponse struct {
	Program
	Tiers []Tier `json:"tiers"`
}

// EnrollRequest is the DTO for enrolling a customer into a program.
type EnrollRequest struct {
	CustomerID string `json:"customer_id" validate:"required,notblank,max=255"`
	ProgramID  int64  `json:"program_id" validate:"required,gt=0"`
}

// EarnRequest is the DTO supplied by order processing on order finalization.
type EarnRequest struct {
	CustomerID      string           `json:"customer_id" validate:"required,notblank,max=255"`
	ProgramID       int64            `json:"program_id" validate:"required,gt=0"`
	SpendAmount     *decimal.Decimal `json:"spend_amount" validate:"required,gte=0,lte=1000000000"`
	Source          Source           `json:"source" validate:"required,earn_source"`
	PromoMultiplier *decimal.Decimal `json:"promo_multiplier" validate:"omitempty,gt=0"`
	OrderID         *string          `json:"order_id" validate:"omitempty,notblank,max=255"`
}

// RedeemRequest is the DTO supplied by checkout.
type RedeemRequest struct {
	CustomerID     string           `json:"customer_id" validate:"required,notblank,max=255"`
	ProgramID      int64            `json:"program_id" validate:"required,gt=0"`
	PointsAmount   *decimal.Decimal `json:"points_amount" validate:"required,gt=0,lte=999999999999.99"`
	RedemptionType RedemptionType   `json:"redemption_type" validate:"required,redemption_type"`
	Source         Source           `json:"source" validate:"omitempty,loyalty_source"`
	OrderID        *string          `json:"order_id" validate:"omitempty,notblank,max=255"`
}

// EarnResult is returned by an accrual.
type EarnResult struct {
	PointsEarned decimal.Decimal `json:"points_earned"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	TierUpgraded bool            `json:"tier_upgraded"`
	NewTier      *Tier           `json:"new_tier,omitempty"`
}

// RedeemResult is returned by a redemption.
type RedeemResult struct {
	PointsRedeemed decimal.Decimal `json:"points_redeemed"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// ExpirationResult summarizes one sweep.
type ExpirationResult struct {
	AccountsAffected   int             `json:"accounts_affected"`
	TotalPointsExpired decimal.Decimal `json:"total_points_expired"`
	Failed             int             `json:"failed"`
}

// AccountSummary is the read model for presentation layers.
type AccountSummary struct {
	CustomerID         string          `json:"customer_id"`
	ProgramID          int64           `json:"program_id"`
	CurrentPoints      decimal.Decimal `json:"current_points"`
	TotalEarned        decimal.Decimal `json:"total_earned"`
	TotalRedeemed      decimal.Decimal `json:"total_redeemed"`
	TotalExpired       decimal.Decimal `json:"total_expired"`
	Tier               *Tier           `json:"tier"`
	ExpiryDate         *time.Time      `json:"expiry_date"`
	Active             bool            `json:"active"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
}
