package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var dateRE = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)

// dateValidator accepts YYYY-MM-DD or the empty string. Pair it with `ne=` when
// the value is required.
func dateValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || dateRE.MatchString(value)
}
