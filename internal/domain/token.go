package domain

import (
	"crypto/rand"
	"math/big"
)

const (
	tokenLength = 6
	tokenChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateToken returns a random 6-character redemption code. Uniqueness is
// the caller's concern (checked against storage with retry on collision).
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenChars)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = tokenChars[n.Int64()]
	}
	return string(buf), nil
}
