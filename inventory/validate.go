package inventory

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// NewMaterial is the input for Ledger.CreateMaterial.
type NewMaterial struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Unit        string          `json:"unit" validate:"required,max=32"`
	UnitPrice   decimal.NullDecimal `json:"unitPrice" validate:"-"`
}

// NewProject is the input for Ledger.CreateProject.
type NewProject struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// ReceiveInput books stock arriving into the warehouse.
type ReceiveInput struct {
	MaterialID MaterialID `json:"materialId" validate:"gt=0"`
	Quantity   int64      `json:"quantity" validate:"gt=0"`
	Notes      string     `json:"notes" validate:"max=1000"`
}

// WithdrawInput books stock leaving for a project.
type WithdrawInput struct {
	MaterialID MaterialID `json:"materialId" validate:"gt=0"`
	ProjectID  ProjectID  `json:"projectId" validate:"gt=0"`
	Quantity   int64      `json:"quantity" validate:"gt=0"`
	Notes      string     `json:"notes" validate:"max=1000"`
}

// ReturnInput books unused stock coming back from a project.
type ReturnInput struct {
	MaterialID MaterialID `json:"materialId" validate:"gt=0"`
	ProjectID  ProjectID  `json:"projectId" validate:"gt=0"`
	Quantity   int64      `json:"quantity" validate:"gt=0"`
	Notes      string     `json:"notes" validate:"max=1000"`
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names so API clients can map them back.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks v's struct tags and converts failures into *ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = reason(fe)
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}

// priceScale is the number of decimal places every backend stores exactly.
const priceScale = 4

func (in NewMaterial) validate() error {
	out := &ValidationError{Fields: map[string]string{}}
	if err := Validate(in); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		out = ve
	}

	switch price := in.UnitPrice.Decimal; {
	case !in.UnitPrice.Valid:
		out.Fields["unitPrice"] = "is required"
	case price.IsNegative():
		out.Fields["unitPrice"] = "must not be negative"
	case !price.Equal(price.Round(priceScale)):
		out.Fields["unitPrice"] = "must have at most 4 decimal places"
	}

	if len(out.Fields) > 0 {
		return out
	}
	return nil
}
