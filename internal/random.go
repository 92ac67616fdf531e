package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// NewNumericCode returns a uniformly random code of exactly digits decimal
// digits, zero-padded, drawn from r (crypto/rand when nil).
func NewNumericCode(r io.Reader, digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", errors.New("invalid code digits")
	}
	if r == nil {
		r = rand.Reader
	}

	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(r, space)
	if err != nil {
		return "", fmt.Errorf("read random code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
