package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PointsPrecision is the number of decimal places points are rounded to.
const PointsPrecision int32 = 2

// PointsDigits is the total number of digits a stored points value may have.
// Together with PointsPrecision it matches the NUMERIC(14, 2) ledger columns.
const PointsDigits int32 = 14

// MaxSpendAmount bounds a single accrual's spend.
var MaxSpendAmount = decimal.NewFromInt(1_000_000_000)

// NormalizeCustomerID strips surrounding whitespace so stored and looked-up
// IDs always agree.
func NormalizeCustomerID(id string) string {
	return strings.TrimSpace(id)
}

// Program is the per-program accrual configuration.
type Program struct {
	ID                    int64                      `json:"id"`
	Name                  string                     `json:"name"`
	PointsPerCurrency     decimal.Decimal            `json:"points_per_currency"`
	MinimumSpendForPoints decimal.Decimal            `json:"minimum_spend_for_points"`
	PointsExpiryDays      int                        `json:"points_expiry_days"` // 0 = never expire
	BonusMultipliers      map[Source]decimal.Decimal `json:"bonus_multipliers"`
	Active                bool                       `json:"active"`
	CreatedAt             time.Time                  `json:"created_at"`
}

// Tier is a named points band within a program.
type Tier struct {
	ID                 int64           `json:"id"`
	ProgramID          int64           `json:"program_id"`
	Name               string          `json:"name"`
	MinPointsRequired  decimal.Decimal `json:"min_points_required"`
	PointsMultiplier   decimal.Decimal `json:"points_multiplier"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	CreatedAt          time.Time       `json:"-"`
}

// Account is a customer's balance within one program.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    string          `json:"customer_id"`
	ProgramID     int64           `json:"program_id"`
	CurrentPoints decimal.Decimal `json:"current_points"`
	TotalEarned   decimal.Decimal `json:"total_earned"`
	TotalRedeemed decimal.Decimal `json:"total_redeemed"`
	TotalExpired  decimal.Decimal `json:"total_expired"`
	CurrentTierID *int64          `json:"current_tier_id"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionEarned      TransactionType = "earned"
	TransactionRedeemed    TransactionType = "redeemed"
	TransactionExpired     TransactionType = "expired"
	TransactionTierUpgrade TransactionType = "tier_upgrade"
)

// Transaction is an append-only ledger entry. PointsAmount is unsigned;
// the sign comes from Type.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Type         TransactionType `json:"type"`
	PointsAmount decimal.Decimal `json:"points_amount"`
	Source       string          `json:"source"`
	OrderID      *string         `json:"order_id,omitempty"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Source names where a points movement came from.
type Source string

const (
	SourceOrder            Source = "order"
	SourceBirthday         Source = "birthday"
	SourceReferral         Source = "referral"
	SourceSignup           Source = "signup"
	SourceReview           Source = "review"
	SourcePromotion        Source = "promotion"
	SourceManualAdjustment Source = "manual_adjustment"
	SourceExpiration       Source = "expiration"
	SourceTierProgression  Source = "tier_progression"
)

var knownSources = map[Source]bool{
	SourceOrder:            true,
	SourceBirthday:         true,
	SourceReferral:         true,
	SourceSignup:           true,
	SourceReview:           true,
	SourcePromotion:        true,
	SourceManualAdjustment: true,
	SourceExpiration:       false,
	SourceTierProgression:  false,
}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	_, ok := knownSources[s]
	return ok
}

// Earnable reports whether points may be accrued from s. Expiration and
// tier progression entries are only written by the system.
func (s Source) Earnable() bool {
	return knownSources[s]
}

// RedemptionType names what points were spent on.
type RedemptionType string

const (
	RedemptionDiscount     RedemptionType = "discount"
	RedemptionFreeItem     RedemptionType = "free_item"
	RedemptionFreeDelivery RedemptionType = "free_delivery"
	RedemptionCashback     RedemptionType = "cashback"
	RedemptionVoucher      RedemptionType = "voucher"
)

// Valid reports whether t is a recognized redemption type.
func (t RedemptionType) Valid() bool {
	switch t {
	case RedemptionDiscount, RedemptionFreeItem, RedemptionFreeDelivery, RedemptionCashback, RedemptionVoucher:
		return true
	}
	return false
}
