package validator

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/loyalty-points-engine/internal/model"
)

// New creates a new validator instance with custom validations registered.
// This ensures consistent validation across the application and tests.
func New() *validator.Validate {
	v := validator.New()

	// decimal.Decimal is a struct, so numeric tags (gt, gte, lte) only work
	// once it is presented to the validator as a number.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// Report fields by their JSON names so error messages match the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Register custom "notblank" validator - rejects whitespace-only strings
	// This is used for fields like customer IDs that must have meaningful content
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // Not a string, let other validators handle it
		}
		return strings.TrimSpace(str) != ""
	})

	// "earn_source" accepts the sources points may be accrued from.
	_ = v.RegisterValidation("earn_source", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		return model.Source(fl.Field().String()).Earnable()
	})

	// "loyalty_source" accepts any known source, including system ones.
	_ = v.RegisterValidation("loyalty_source", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		return model.Source(fl.Field().String()).Valid()
	})

	_ = v.RegisterValidation("redemption_type", func(fl validator.FieldLevel) bool {
		if fl.Field().Kind() != reflect.String {
			return false
		}
		return model.RedemptionType(fl.Field().String()).Valid()
	})

	// Points amounts are stored with a fixed scale. The custom type func above
	// hands field validators a float64, so the scale is checked per struct on
	// the decimal itself.
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(model.RedeemRequest)
		if req.PointsAmount != nil {
			checkPointsScale(sl, *req.PointsAmount, "points_amount", "PointsAmount")
		}
	}, model.RedeemRequest{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(model.CreateTierRequest)
		checkPointsScale(sl, req.MinPointsRequired, "min_points_required", "MinPointsRequired")
	}, model.CreateTierRequest{})

	return v
}

func checkPointsScale(sl validator.StructLevel, d decimal.Decimal, field, structField string) {
	if !d.Equal(d.Truncate(model.PointsPrecision)) {
		sl.ReportError(d, field, structField, "points_scale", strconv.Itoa(int(model.PointsPrecision)))
	}
}

func decimalValue(field reflect.Value) any {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	f, _ := d.Float64()
	return f
}
