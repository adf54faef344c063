package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseUuid accepts both the dashless form used by Mojang and the regular hyphenated one
func ParseUuid(value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if len(value) != 32 && len(value) != 36 {
		return uuid.Nil, fmt.Errorf("invalid uuid length %d: %q", len(value), value)
	}

	return uuid.Parse(value)
}

// MojangId formats the uuid in the canonical form used by the upstream: lowercased hex without dashes
func MojangId(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
