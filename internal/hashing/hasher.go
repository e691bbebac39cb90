package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Argon2Params are deliberately light: the input keyspace is a 6-character
// one-time code with a 5-minute lifetime, and hashing happens on the login
// hot path.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// Hasher produces the salted digest that stands in for a one-time code while
// it waits for verification. The salt is derived, not random: it mixes a
// stable per-account identifier with a fixed application secret, so a stored
// digest cannot be replayed for another account or another deployment.
type Hasher struct {
	params    Argon2Params
	appSecret string
}

func NewHasher(appSecret string) *Hasher {
	return &Hasher{
		params: Argon2Params{
			Memory:      16 * 1024,
			Iterations:  2,
			Parallelism: 1,
			KeyLength:   32,
		},
		appSecret: appSecret,
	}
}

// DeriveSalt computes the per-account salt from the account identifier and
// the application secret.
func (h *Hasher) DeriveSalt(accountID string) []byte {
	sum := sha256.Sum256([]byte(accountID + ":" + h.appSecret))
	return sum[:]
}

// HashCode digests code||email under the account-derived salt. Binding the
// email into the preimage means a challenge re-issued to a different address
// invalidates the old digest even within the same account.
func (h *Hasher) HashCode(code, email string, salt []byte) string {
	digest := argon2.IDKey(
		[]byte(code+email),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)
	return base64.RawURLEncoding.EncodeToString(digest)
}

// Verify recomputes the digest for the submitted code and compares it to the
// stored one in constant time.
func (h *Hasher) Verify(code, email string, salt []byte, expected string) bool {
	computed := h.HashCode(code, email, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}
