// Package roomcode generates and validates the short codes that identify rooms.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// Length is the number of symbols in a room code.
	Length = 6
	// Alphabet excludes the visually ambiguous I, O, 1 and 0.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Generator produces candidate room codes.
type Generator func() (string, error)

// Normalize upper-cases a user supplied code. It does not validate it.
func Normalize(code string) string {
	return strings.ToUpper(code)
}

// Valid reports whether code, after normalization, is exactly Length symbols
// drawn from Alphabet.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if strings.IndexByte(Alphabet, c) < 0 {
			return false
		}
	}
	return true
}

// Generate returns a random code using crypto/rand.
func Generate() (string, error) {
	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}
