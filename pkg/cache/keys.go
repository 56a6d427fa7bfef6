package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// HashKey returns a fixed-length digest of an arbitrary key, for keys built
// from user supplied filters.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// BuildPattern creates a glob pattern matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}

// matchPattern reports whether key matches a Redis style glob.
func matchPattern(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
