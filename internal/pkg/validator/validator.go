package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var featureCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("feature_code", func(fl validator.FieldLevel) bool {
		return featureCodePattern.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("entitlement_source", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "plan", "store", "promotion", "onboarding":
			return true
		}
		return false
	})

	validate.RegisterValidation("feature_category", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "core", "crm", "finance", "operations", "ai", "integration":
			return true
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrs {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "feature_code":
			errors[field] = "Invalid feature code. Must be upper-case letters, digits and underscores"
		case "entitlement_source":
			errors[field] = "Invalid source. Must be: plan, store, promotion, or onboarding"
		case "feature_category":
			errors[field] = "Invalid category. Must be: core, crm, finance, operations, ai, or integration"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
