package handlers

import "strconv"

const (
	defaultListLimit    = 50
	defaultMessageLimit = 100
	maxMessageLimit     = 500
)

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
