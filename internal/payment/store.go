// Package payment implements the Payment Store interface: lookup,
// reservation, confirmation, and release of payment records the external
// blockchain watcher writes, keyed by nullifier. The Admission Controller
// does not own this storage; it only coordinates over it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"zkgate/internal/apperrors"
	"zkgate/internal/nullifier"
)

// Status classifies the result of CheckPayment.
type Status int

const (
	// StatusOK means the payment exists, is unused, and is unreserved.
	StatusOK Status = iota
	StatusNotFound
	StatusAlreadyUsed
	StatusReserved
)

// Info is a payment record as written by the external watcher.
type Info struct {
	Amount      uint64
	TxID        string
	BlockHeight uint32
	CreatedAt   time.Time
	Used        bool
	UsedAt      *time.Time
}

const (
	paymentKeyPrefix  = "payment:"
	reservedKeyPrefix = "reserved:"
	allPaymentsSet    = "payments:all"
	unusedPaymentsSet = "payments:unused"
	reservedSet       = "payments:reserved"
	byHeightZSet      = "payments:by_height"
	chainHeightKey    = "chain:block_height"
)

// Store is the Redis-backed Payment Store.
type Store struct {
	redis          *redis.Client
	reservationTTL time.Duration
}

// New constructs a Store. A zero reservationTTL uses the 300s default.
func New(client *redis.Client, reservationTTL time.Duration) *Store {
	if reservationTTL <= 0 {
		reservationTTL = DefaultReservationTTL
	}
	return &Store{redis: client, reservationTTL: reservationTTL}
}

// DefaultReservationTTL is the default reservation lifetime.
const DefaultReservationTTL = 300 * time.Second

// Record writes a fresh, unused payment record. This is the external
// watcher's write path; the Admission Controller never calls it, but it is
// provided here (and used by tests/fixtures) because something in this
// process must own the Redis key shape the external watcher and this store agree on.
func (s *Store) Record(ctx context.Context, n nullifier.Nullifier, info Info) error {
	key := paymentKeyPrefix + n.Hex()
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"amount":       info.Amount,
		"tx_id":        info.TxID,
		"block_height": info.BlockHeight,
		"created_at":   info.CreatedAt.Unix(),
		"used":         "0",
	})
	pipe.SAdd(ctx, allPaymentsSet, n.Hex())
	pipe.SAdd(ctx, unusedPaymentsSet, n.Hex())
	pipe.ZAdd(ctx, byHeightZSet, redis.Z{Score: float64(info.BlockHeight), Member: n.Hex()})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("record payment: %w", err))
	}
	return nil
}

// SetChainHeight is the watcher's write path for the chain-height scalar.
func (s *Store) SetChainHeight(ctx context.Context, height uint32) error {
	if err := s.redis.Set(ctx, chainHeightKey, height, 0).Err(); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("set chain height: %w", err))
	}
	return nil
}

// GetCurrentBlockHeight returns the chain height the external watcher last
// wrote. An absent key is treated as Unavailable, not as zero confirmations:
// a missing scalar means the watcher hasn't caught up, not that no blocks
// exist.
func (s *Store) GetCurrentBlockHeight(ctx context.Context) (uint32, error) {
	val, err := s.redis.Get(ctx, chainHeightKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, apperrors.ErrUnavailable.Wrap(errors.New("chain height not yet published"))
	}
	if err != nil {
		return 0, apperrors.ErrUnavailable.Wrap(fmt.Errorf("get chain height: %w", err))
	}
	height, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, apperrors.ErrInternal.Wrap(fmt.Errorf("corrupt chain height value %q: %w", val, err))
	}
	return uint32(height), nil
}

// CheckPayment looks up a payment record and classifies its state.
// Distinguishing Reserved from AlreadyUsed lets callers tell "already
// consumed" apart from "someone else is mid-confirm".
func (s *Store) CheckPayment(ctx context.Context, n nullifier.Nullifier) (Info, Status, error) {
	key := paymentKeyPrefix + n.Hex()
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return Info{}, StatusNotFound, apperrors.ErrUnavailable.Wrap(fmt.Errorf("check payment: %w", err))
	}
	if len(fields) == 0 {
		return Info{}, StatusNotFound, nil
	}

	info, err := parseFields(fields)
	if err != nil {
		return Info{}, StatusNotFound, apperrors.ErrInternal.Wrap(err)
	}

	if info.Used {
		return info, StatusAlreadyUsed, nil
	}

	reserved, err := s.redis.Exists(ctx, reservedKeyPrefix+n.Hex()).Result()
	if err != nil {
		return info, StatusNotFound, apperrors.ErrUnavailable.Wrap(fmt.Errorf("check reservation: %w", err))
	}
	if reserved > 0 {
		return info, StatusReserved, nil
	}

	return info, StatusOK, nil
}

// ReservePayment atomically reserves a nullifier for the duration of the
// reservation TTL. Returns false if another caller already holds the
// reservation.
func (s *Store) ReservePayment(ctx context.Context, n nullifier.Nullifier) (acquired bool, err error) {
	key := reservedKeyPrefix + n.Hex()
	ok, err := s.redis.SetNX(ctx, key, "1", s.reservationTTL).Result()
	if err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("reserve payment: %w", err))
	}
	if ok {
		s.redis.SAdd(ctx, reservedSet, n.Hex())
	}
	return ok, nil
}

// ReleaseReservation removes a reservation without touching the used flag.
// It does not error on a missing reservation: releasing something already
// gone (expired, or never acquired) is a no-op, so a released reservation
// can always be safely re-acquired.
func (s *Store) ReleaseReservation(ctx context.Context, n nullifier.Nullifier) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, reservedKeyPrefix+n.Hex())
	pipe.SRem(ctx, reservedSet, n.Hex())
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("release reservation: %w", err))
	}
	return nil
}

// ConfirmPayment marks a payment used, idempotently. It is not blocked by a
// missing reservation, so a crash between reserve and confirm can be healed
// by a retried confirm.
func (s *Store) ConfirmPayment(ctx context.Context, n nullifier.Nullifier) error {
	key := paymentKeyPrefix + n.Hex()
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"used":    "1",
		"used_at": time.Now().Unix(),
	})
	pipe.Del(ctx, reservedKeyPrefix+n.Hex())
	pipe.SRem(ctx, reservedSet, n.Hex())
	pipe.SRem(ctx, unusedPaymentsSet, n.Hex())
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("confirm payment: %w", err))
	}
	return nil
}

func parseFields(fields map[string]string) (Info, error) {
	var info Info

	amount, err := strconv.ParseUint(fields["amount"], 10, 64)
	if err != nil {
		return info, fmt.Errorf("corrupt amount: %w", err)
	}
	info.Amount = amount

	info.TxID = fields["tx_id"]

	height, err := strconv.ParseUint(fields["block_height"], 10, 32)
	if err != nil {
		return info, fmt.Errorf("corrupt block_height: %w", err)
	}
	info.BlockHeight = uint32(height)

	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		info.CreatedAt = time.Unix(ts, 0)
	}

	info.Used = fields["used"] == "1"
	if usedAt, ok := fields["used_at"]; ok && usedAt != "" {
		if ts, err := strconv.ParseInt(usedAt, 10, 64); err == nil {
			t := time.Unix(ts, 0)
			info.UsedAt = &t
		}
	}

	return info, nil
}

// Confirmations computes chain_height − payment.block_height, saturating at
// zero, per the GLOSSARY.
func Confirmations(chainHeight uint32, blockHeight uint32) uint32 {
	if chainHeight < blockHeight {
		return 0
	}
	return chainHeight - blockHeight
}
