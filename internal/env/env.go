package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Getter reads environment variables under a common prefix
type Getter struct {
	prefix string
}

// New creates a new environment variable getter with an optional prefix
func New(prefix string) *Getter {
	return &Getter{prefix: prefix}
}

// Key returns the full variable name for key
func (g *Getter) Key(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "_" + key
}

// Lookup returns the trimmed value of key and whether it was set to
// something non-blank.
func (g *Getter) Lookup(key string) (string, bool) {
	value, exists := os.LookupEnv(g.Key(key))
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (g *Getter) GetString(key, defaultValue string) string {
	value, ok := g.Lookup(key)
	if !ok {
		return defaultValue
	}
	return value
}

// GetBool parses key as a boolean. An unparsable value is an error rather
// than a silent default.
func (g *Getter) GetBool(key string, defaultValue bool) (bool, error) {
	value, ok := g.Lookup(key)
	if !ok {
		return defaultValue, nil
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("parsing %s: %w", g.Key(key), err)
	}
	return boolValue, nil
}
