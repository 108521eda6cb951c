package config

import (
	"os"
	"strconv"
	"strings"
)

// ParseBool accepts 1/true/yes/on and 0/false/no/off, case-insensitive.
// Anything else yields def.
func ParseBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// StringEnv reads a string environment variable; unset or blank yields def.
func StringEnv(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// BoolEnv reads a boolean environment variable.
func BoolEnv(name string, def bool) bool {
	return ParseBool(os.Getenv(name), def)
}

// IntEnv reads an integer environment variable; unset or invalid yields def.
func IntEnv(name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return def
	}
	return v
}

// FloatEnv reads a float environment variable; unset or invalid yields def.
func FloatEnv(name string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(name)), 64)
	if err != nil {
		return def
	}
	return v
}
