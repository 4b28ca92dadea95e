package controllers

import (
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
	"strings"
)

const (
	// SessionCodeLength is the length of a join code.
	SessionCodeLength = 6

	// SessionCodeChars are the characters join codes are made of.
	SessionCodeChars = "0123456789"
)

// GenerateSessionCode creates a random join code. Uniqueness is left to
// the store's create, which refuses an existing key.
func GenerateSessionCode() string {
	code := make([]byte, SessionCodeLength)
	for i := range SessionCodeLength {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(SessionCodeChars))))
		if err != nil {
			code[i] = SessionCodeChars[rand.IntN(len(SessionCodeChars))]
			continue
		}
		code[i] = SessionCodeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeSessionCode trims and lower-cases what a player typed and
// checks its length.
func NormalizeSessionCode(input string) (string, error) {
	code := strings.ToLower(strings.TrimSpace(input))
	if len(code) != SessionCodeLength {
		return "", ErrInvalidSessionCode
	}
	return code, nil
}
