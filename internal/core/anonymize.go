package core

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// developmentSalt is used when no salt is configured outside production.
const developmentSalt = "default-salt"

const minProductionSaltLen = 32

// IPHasher turns submitter addresses into salted one-way hashes.
type IPHasher struct {
	salt       string
	production bool
}

// NewIPHasher validates the salt for the given mode. In development a
// missing salt is replaced by a fixed one and a warning is logged.
func NewIPHasher(salt string, production bool) (*IPHasher, error) {
	if salt == "" {
		if production {
			return nil, ErrMissingIPSalt
		}
		slog.Warn("IP_SALT not set, using default salt for development")
		salt = developmentSalt
	} else if production && len(salt) < minProductionSaltLen {
		return nil, ErrWeakIPSalt
	}
	return &IPHasher{salt: salt, production: production}, nil
}

// Hash returns the lowercase hex SHA-256 of ip followed by the salt.
func (h *IPHasher) Hash(ip string) string {
	sum := sha256.Sum256([]byte(ip + h.salt))
	return hex.EncodeToString(sum[:])
}

// AgeGroup buckets an age. Zero or negative means unknown and returns "".
func AgeGroup(age int) string {
	switch {
	case age <= 0:
		return ""
	case age < 18:
		return "0-17"
	case age <= 25:
		return "18-25"
	case age <= 35:
		return "26-35"
	case age <= 50:
		return "36-50"
	case age <= 65:
		return "51-65"
	default:
		return "65+"
	}
}

// ParseEffects splits a comma-separated list, trimming entries and
// dropping empty ones. The result is nil when nothing remains.
func ParseEffects(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
