package queue

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// NewEntryID returns a stable opaque identifier for a new queue entry.
func NewEntryID() string {
	return uuid.NewString()
}

var codeSpace = big.NewInt(10000)

// GenerateCode produces a 4-digit verification code. The code is a
// customer-facing convenience token, not a security credential; crypto/rand
// is used only so codes do not follow a guessable sequence across restarts.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// ValidCodeFormat reports whether the value looks like a verification code.
func ValidCodeFormat(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
