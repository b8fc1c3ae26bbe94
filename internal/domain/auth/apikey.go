package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the stored hash of a validated API key and the principal
// it authenticates as.
type APIKeyInfo struct {
	ID        string
	KeyHash   string
	Name      string
	Principal Principal
}

// Repository provides lookup of API keys by their HMAC hash. The seller flag
// of the returned principal is resolved against sellerGroup.
type Repository interface {
	FindByHash(ctx context.Context, hash, sellerGroup string) (*APIKeyInfo, error)
}

// HashAPIKey returns the hex-encoded HMAC-SHA256 of key under pepper.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
