package binder

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

const (
	date     = "date"
	email    = "email"
	gt       = "gt"
	gte      = "gte"
	lt       = "lt"
	mx       = "max"
	mn       = "min"
	ne       = "ne"
	oneof    = "oneof"
	required = "required"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case date:
		return fmt.Sprintf("%q should be in the format of YYYY-MM-DD", field)
	case email:
		return fmt.Sprintf("%q is not a valid email", field)
	case gt:
		return fmt.Sprintf("%q must be greater than %s", field, param)
	case gte:
		return fmt.Sprintf("%q must be greater than or equal to %s", field, param)
	case lt:
		return fmt.Sprintf("%q must be less than %s", field, param)
	case mx:
		if noun := sizeNoun(err.Kind(), param); noun != "" {
			return fmt.Sprintf("%q length must be less than or equal to %s %s", field, param, noun)
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, param)
	case mn:
		if noun := sizeNoun(err.Kind(), param); noun != "" {
			return fmt.Sprintf("%q length must be greater than or equal to %s %s", field, param, noun)
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, param)
	case ne:
		return fmt.Sprintf("%q can't be %q", field, param)
	case oneof:
		valids := make([]string, 0)
		for _, p := range strings.Fields(param) {
			valids = append(valids, fmt.Sprintf("%q", p))
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(valids, ", "))
	case required:
		return fmt.Sprintf("%q is required", field)
	default:
		return fmt.Sprintf("%q failed the %q check", field, err.Tag())
	}
}

// sizeNoun is what min/max count for the kind, or "" when they compare the
// value itself.
func sizeNoun(kind reflect.Kind, param string) string {
	var noun string
	//exhaustive:ignore
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return ""
	case reflect.Slice, reflect.Array, reflect.Map:
		noun = "element"
	default:
		noun = "character"
	}
	if param != "1" {
		noun += "s"
	}
	return noun
}
