package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const resetTokenBytes = 32

// DefaultResetTTLHours is how long a password reset link stays valid.
const DefaultResetTTLHours = 1

// GenerateResetToken returns 256 bits of crypto/rand entropy, hex encoded.
func GenerateResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)

	_, err := rand.Read(b)

	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// ExpirationDate returns now plus hours, using DefaultResetTTLHours when hours <= 0.
func ExpirationDate(hours int) time.Time {
	return expirationFrom(time.Now().UTC(), hours)
}

func expirationFrom(now time.Time, hours int) time.Time {
	if hours <= 0 {
		hours = DefaultResetTTLHours
	}
	return now.Add(time.Duration(hours) * time.Hour)
}

// IsTokenExpired is true when expiry is absent or strictly before now.
func IsTokenExpired(expiry *time.Time) bool {
	return isExpiredAt(expiry, time.Now())
}

func isExpiredAt(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return true
	}
	return expiry.Before(now)
}

// HashResetToken is the digest persisted in place of the raw token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
