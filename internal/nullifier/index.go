// Package nullifier implements the replay-protection index: an atomic
// set-if-absent over 32-byte nullifier values, backed by Redis. It is the
// cheapest gate in the Admission Controller's pipeline and therefore runs
// first, before any cryptographic work.
package nullifier

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkgate/internal/apperrors"
)

// Nullifier is a 32-byte uniqueness marker for a spent shielded output.
type Nullifier [32]byte

// ParseHex decodes a hex string into a Nullifier, rejecting anything that
// isn't exactly 64 hex characters.
func ParseHex(s string) (Nullifier, error) {
	var n Nullifier
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(n) {
		return n, apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("nullifier must be %d hex bytes: %w", len(n), err))
	}
	copy(n[:], raw)
	return n, nil
}

// Hex returns the lowercase hex encoding of n.
func (n Nullifier) Hex() string {
	return hex.EncodeToString(n[:])
}

const keyPrefix = "nullifier:"

// Index is the Redis-backed replay guard. The default expiry of 30 days is
// the horizon chosen so historical receipts cannot be recycled
// past any practical confirmation window.
type Index struct {
	redis *redis.Client
	ttl   time.Duration
}

// DefaultTTL is the 30-day replay-protection horizon.
const DefaultTTL = 30 * 24 * time.Hour

// New constructs an Index. A zero ttl uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{redis: client, ttl: ttl}
}

// CheckAndSet returns true exactly once per nullifier across all callers and
// all time (bounded by ttl); every subsequent call returns false. The
// operation is atomic via Redis SETNX, so concurrent callers racing on the
// same nullifier observe a single winner.
func (idx *Index) CheckAndSet(ctx context.Context, n Nullifier) (firstSeen bool, err error) {
	key := keyPrefix + n.Hex()
	ok, err := idx.redis.SetNX(ctx, key, "1", idx.ttl).Result()
	if err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("nullifier index unreachable: %w", err))
	}
	return ok, nil
}
