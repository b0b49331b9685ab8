package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash of the password using a cost that balances security and performance.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares the bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashEmail derives the stored credential for an email: HMAC-SHA256 keyed with a
// server-side pepper, so the address cannot be recovered or brute-forced offline
// without the pepper.
func HashEmail(pepper, email string) string {
	h := hmac.New(sha256.New, []byte(pepper))
	h.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashToken returns the hex SHA-256 of a token identifier.
func HashToken(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
