package protocol

import (
	"fmt"
	"reflect"
)

// RequireParams checks every struct field tagged `param:"required"` is non-zero.
// The error names the first missing field.
func RequireParams(params interface{}) error {
	v := reflect.ValueOf(params)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("%w: params are nil", ErrMissingParam)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("%w: params must be a struct, got %s", ErrMissingParam, v.Kind())
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("param") != "required" {
			continue
		}
		if v.Field(i).IsZero() {
			name := field.Tag.Get("yaml")
			if name == "" || name == "-" {
				name = field.Name
			}
			return fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
	}
	return nil
}
