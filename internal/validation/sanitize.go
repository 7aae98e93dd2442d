package validation

import (
	"reflect"
	"strings"
)

// Sanitize trims and collapses runs of whitespace in every exported string
// (or *string) field of the struct pointed to by v.  Fields tagged
// `sanitize:"-"` are left untouched; passwords use this.
func Sanitize(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() || sf.Tag.Get("sanitize") == "-" {
			continue
		}
		f := rv.Field(i)
		switch {
		case f.Kind() == reflect.String:
			f.SetString(Clean(f.String()))
		case f.Kind() == reflect.Pointer && !f.IsNil() && f.Elem().Kind() == reflect.String:
			f.Elem().SetString(Clean(f.Elem().String()))
		}
	}
}

// Clean trims s and collapses internal whitespace to single spaces.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// UnsafeFilter reports whether a free-text query filter contains characters
// that are never accepted in search values.
func UnsafeFilter(s string) bool {
	return strings.ContainsAny(s, `;\'"-`)
}
