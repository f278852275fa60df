package handler

import (
	"reflect"
	"strings"
)

// trimStrings trims surrounding whitespace from the string fields of the
// struct v points to.
func trimStrings(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Pointer || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return
	}
	val = val.Elem()
	for i := range val.NumField() {
		if f := val.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
