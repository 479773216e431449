package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hash modes accepted by NewHasher.
const (
	HashHMAC   = "hmac"
	HashBcrypt = "bcrypt"
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hashed, password string) bool
}

// NewHasher returns the hasher for mode. Both hashers verify hashes written by
// the other, so switching modes keeps existing users able to log in.
func NewHasher(mode, secret string) (Hasher, error) {
	h := hmacHasher{secret: []byte(secret)}
	switch mode {
	case "", HashHMAC:
		return h, nil
	case HashBcrypt:
		return bcryptHasher{fallback: h}, nil
	default:
		return nil, fmt.Errorf("unknown password hash mode %q", mode)
	}
}

// hmacHasher writes hex HMAC-SHA256 digests keyed with the server secret, the
// format of the seeded users.
type hmacHasher struct {
	secret []byte
}

func (h hmacHasher) Hash(password string) (string, error) {
	return h.sum(password), nil
}

func (h hmacHasher) Verify(hashed, password string) bool {
	if isBcrypt(hashed) {
		return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
	}
	return hmac.Equal([]byte(hashed), []byte(h.sum(password)))
}

func (h hmacHasher) sum(s string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

type bcryptHasher struct {
	fallback hmacHasher
}

func (b bcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b bcryptHasher) Verify(hashed, password string) bool {
	return b.fallback.Verify(hashed, password)
}

func isBcrypt(hashed string) bool {
	return strings.HasPrefix(hashed, "$2")
}
