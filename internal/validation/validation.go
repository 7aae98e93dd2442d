// Package validation wires go-playground/validator into Echo and carries the
// field rules shared by every request payload.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/store-rating/internal/apperr"
	"github.com/iliyamo/store-rating/internal/model"
)

// Field length ceilings.  Lower bounds for names come from NamePolicy.
const (
	MaxNameLen     = 60
	MaxAddressLen  = 400
	MinPasswordLen = 8
	MaxPasswordLen = 16
)

// PasswordSpecials are the characters a password must draw at least one from.
const PasswordSpecials = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// NamePolicy sets the minimum length of user and store names.
type NamePolicy struct {
	UserNameMin  int
	StoreNameMin int
}

// DefaultNamePolicy matches the configuration defaults.
var DefaultNamePolicy = NamePolicy{UserNameMin: 20, StoreNameMin: 3}

// Validator implements echo.Validator.
type Validator struct {
	v      *validator.Validate
	policy NamePolicy
}

// New builds a validator with the custom tags username, storename, password
// and role registered.
func New(policy NamePolicy) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON field names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(f.Tag.Get("query"), ",", 2)[0]
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	out := &Validator{v: v, policy: policy}
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return lengthWithin(fl.Field().String(), policy.UserNameMin, MaxNameLen)
	})
	_ = v.RegisterValidation("storename", func(fl validator.FieldLevel) bool {
		return lengthWithin(fl.Field().String(), policy.StoreNameMin, MaxNameLen)
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := model.ParseRole(fl.Field().String())
		return err == nil
	})
	return out
}

// Validate runs struct validation and converts failures into an
// apperr validation error carrying per-field details.
func (cv *Validator) Validate(i any) error {
	if err := cv.v.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.Validation("Validation failed", cv.fieldErrors(verrs)...)
		}
		return apperr.Validation(err.Error())
	}
	return nil
}

// ValidPassword applies the password rule: 8 to 16 characters, at least
// one uppercase letter and at least one special character.
func ValidPassword(p string) bool {
	if !lengthWithin(p, MinPasswordLen, MaxPasswordLen) {
		return false
	}
	var upper, special bool
	for _, r := range p {
		if unicode.IsUpper(r) {
			upper = true
		}
		if strings.ContainsRune(PasswordSpecials, r) {
			special = true
		}
	}
	return upper && special
}

func lengthWithin(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(s)
	return n >= lo && n <= hi
}

func (cv *Validator) fieldErrors(verrs validator.ValidationErrors) []apperr.FieldError {
	out := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperr.FieldError{Field: fe.Field(), Message: cv.message(fe)})
	}
	return out
}

func (cv *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return fmt.Sprintf("must be between %d and %d characters", cv.policy.UserNameMin, MaxNameLen)
	case "storename":
		return fmt.Sprintf("must be between %d and %d characters", cv.policy.StoreNameMin, MaxNameLen)
	case "password":
		return fmt.Sprintf("must be %d-%d characters with at least one uppercase letter and one special character",
			MinPasswordLen, MaxPasswordLen)
	case "role":
		return "must be one of admin, user, store_owner"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "eqfield":
		return "must match " + fe.Param()
	default:
		return "is invalid"
	}
}
