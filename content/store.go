// Package content stores full article bodies outside the metadata
// repository. Articles reference their body by key.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	ErrNotFound         = errors.New("content not found")
	ErrInvalidSignature = errors.New("invalid content signature")
	ErrExpired          = errors.New("content link expired")
)

// DefaultURLExpiry is used when SignedURL is called with a non-positive
// expiry.
const DefaultURLExpiry = time.Hour

// MaxURLExpiry bounds signed URL lifetimes.
const MaxURLExpiry = 7 * 24 * time.Hour

// Object describes one stored body.
type Object struct {
	Key        string
	ModifiedAt time.Time
}

// Store is a blob store for article bodies.
type Store interface {
	// Put writes body under a fresh key for articleURL and returns the key.
	// Every call creates a new object; existing bodies are never replaced.
	Put(ctx context.Context, articleURL, body string) (string, error)
	// Get returns the body stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// SignedURL returns a time-limited URL from which key can be fetched.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Object, error)
}

// KeyFor returns a new key for a body of articleURL:
// articles/<first two hex chars>/<sha256 hex>-<uuid>.txt
func KeyFor(articleURL string) string {
	return KeyPrefix(articleURL) + uuid.NewString() + ".txt"
}

// KeyPrefix returns the part of every key for articleURL that depends only
// on the URL.
func KeyPrefix(articleURL string) string {
	sum := sha256.Sum256([]byte(articleURL))
	h := hex.EncodeToString(sum[:])
	return "articles/" + h[:2] + "/" + h + "-"
}

func clampExpiry(expiry time.Duration) time.Duration {
	if expiry <= 0 {
		return DefaultURLExpiry
	}
	return min(expiry, MaxURLExpiry)
}
