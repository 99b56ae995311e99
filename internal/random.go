package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

const secretRawSize = 32

// NewSecret returns a URL-safe random secret for exchange handoffs.
func NewSecret() (string, error) {
	raw := make([]byte, secretRawSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("secret generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewNumericCode returns a zero-padded random code with the given number of
// digits, suitable for SMS delivery.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digit count")
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
