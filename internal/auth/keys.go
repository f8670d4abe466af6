package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ongarde/ongarde/internal/ulid"
)

const (
	keyPrefix  = "ong-"
	bcryptCost = 12
	secretBits = 128 // §4.6 "cryptographically random secret body of ≥128 bits"
)

// ApiKey is the stored record for an issued key (§3). The secret itself
// is never stored; only its bcrypt hash is.
type ApiKey struct {
	ID         string // ULID, public, sortable
	Name       string
	Hash       string // bcrypt hash of the secret half of the plaintext
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Revoked reports whether the key has been revoked.
func (k *ApiKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Masked returns the key with everything but a short identifying
// fragment hidden, for the dashboard's list endpoint (§4.9). The secret
// is never recoverable; this only shows the public id prefix.
func (k *ApiKey) Masked() string {
	return keyPrefix + k.ID[:8] + "…"
}

// GenerateKey issues a new key: a ULID public id, a 128-bit random
// secret, and their bcrypt hash. The plaintext is returned exactly once
// (§3, §8 "plaintext is returned exactly once and is recoverable from
// no file or log") and is never itself stored.
func GenerateKey(name string) (plaintext string, rec *ApiKey, err error) {
	id := ulid.New()

	secret := make([]byte, secretBits/8)
	if _, err := rand.Read(secret); err != nil {
		return "", nil, fmt.Errorf("generating key secret: %w", err)
	}
	secretEncoded := base64.RawURLEncoding.EncodeToString(secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(secretEncoded), bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing key secret: %w", err)
	}

	plaintext = keyPrefix + id + "." + secretEncoded
	rec = &ApiKey{
		ID:        id,
		Name:      name,
		Hash:      string(hash),
		CreatedAt: time.Now(),
	}
	return plaintext, rec, nil
}

// parsePlaintext splits a presented key into its public id and secret
// halves. It does not verify anything; verification requires a stored
// hash looked up by id.
func parsePlaintext(plaintext string) (id, secret string, ok bool) {
	if !strings.HasPrefix(plaintext, keyPrefix) {
		return "", "", false
	}
	body := plaintext[len(keyPrefix):]
	dot := strings.IndexByte(body, '.')
	if dot < 0 {
		return "", "", false
	}
	return body[:dot], body[dot+1:], true
}

// verifySecret performs the constant-time bcrypt comparison §4.6 requires.
func verifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
