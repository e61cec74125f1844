// Package fields merges the layered settings of one command invocation into a
// flat field map and reads typed values back out of it.
//
// Layers are applied in order: process-wide defaults (the [global] table),
// the command's own table, then the explicit overrides the user actually
// supplied. A later layer wins on collision. Nothing is validated while
// merging; the typed accessors report missing or mistyped fields.
package fields

import (
	"fmt"
	"math"

	c "github.com/acquisitionist/coursectl/internal/common"
)

// Fields is the merged, flat view of one command's settings.
type Fields map[string]any

// Override applies one explicit invocation parameter. Implementations must
// leave the map untouched when the parameter was not supplied.
type Override func(Fields)

// Merge overlays commandTable on globalDefaults and then applies overrides in
// order. Either table may be nil.
func Merge(globalDefaults, commandTable map[string]any, overrides ...Override) Fields {
	f := make(Fields, len(globalDefaults)+len(commandTable))
	for k, v := range globalDefaults {
		f[k] = v
	}
	for k, v := range commandTable {
		f[k] = v
	}
	for _, apply := range overrides {
		apply(f)
	}
	return f
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// String returns a required string field.
func (f Fields) String(key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", missing(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, "string", v)
	}
	return s, nil
}

// OptionalString returns the string field and whether it was present.
func (f Fields) OptionalString(key string) (string, bool, error) {
	if !f.Has(key) {
		return "", false, nil
	}
	s, err := f.String(key)
	return s, err == nil, err
}

// Int returns a required integer field. TOML integers decode as int64; whole
// floats are accepted too.
func (f Fields) Int(key string) (int64, error) {
	v, ok := f[key]
	if !ok {
		return 0, missing(key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, invalid(key, "integer", v)
}

// Bool returns a boolean field, or defaultValue when absent.
func (f Fields) Bool(key string, defaultValue bool) (bool, error) {
	v, ok := f[key]
	if !ok {
		return defaultValue, nil
	}
	b, ok := v.(bool)
	if !ok {
		return defaultValue, invalid(key, "boolean", v)
	}
	return b, nil
}

// Strings returns a string array field, or nil when absent.
func (f Fields) Strings(key string) ([]string, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(fmt.Sprintf("%s[%d]", key, i), "string", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalid(key, "array of strings", v)
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", c.ErrRequiredFieldMissing, key)
}

func invalid(key, want string, got any) error {
	return fmt.Errorf("%w: %s must be a %s, got %T", c.ErrInvalidField, key, want, got)
}
