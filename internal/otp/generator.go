package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet excludes visually confusable characters (0/O, 1/I/L) so a code
// read from an email can be typed back without ambiguity.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode draws length characters uniformly from Alphabet using a
// cryptographically strong source. The code is the secret here, so a
// predictable sequence is not acceptable.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length: %d", length)
	}

	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}
