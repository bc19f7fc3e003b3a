// Package admission implements the Admission Controller hot path (spec
// §4.4): the ordered, side-effect-disciplined procedure that turns a
// receipt and a claimed nullifier into an allow/deny decision, coordinating
// the Nullifier Index, the Payment Store, and the Receipt Verifier.
package admission

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"zkgate/internal/apperrors"
	"zkgate/internal/nullifier"
	"zkgate/internal/payment"
	"zkgate/internal/receipt"
)

// Config carries the Admission Controller's policy thresholds.
type Config struct {
	RequirePayment    bool
	MinPaymentAmount  uint64
	MinConfirmations  uint32
	ExpectedImageID   receipt.ImageID
}

// Controller runs the admission procedure.
type Controller struct {
	nullifiers *nullifier.Index
	payments   *payment.Store
	verifier   *receipt.Verifier
	cfg        Config
	log        *zap.Logger
}

// New constructs a Controller.
func New(nullifiers *nullifier.Index, payments *payment.Store, verifier *receipt.Verifier, cfg Config, log *zap.Logger) *Controller {
	return &Controller{nullifiers: nullifiers, payments: payments, verifier: verifier, cfg: cfg, log: log}
}

// Request is the hot path's input.
type Request struct {
	ReceiptHex   string
	NullifierHex string
}

// Decision is the hot path's output: allow carries the nullifier to echo
// downstream; deny carries a single user-safe reason via the returned error.
type Decision struct {
	Allowed           bool
	EchoedNullifier   string
}

// Decide runs the full admission procedure. The
// returned error, when non-nil, is always an *apperrors.Error — callers map
// it to a transport status without inspecting the message.
func (c *Controller) Decide(ctx context.Context, req Request) (Decision, error) {
	// Step 1: parse nullifier.
	claimed, err := nullifier.ParseHex(req.NullifierHex)
	if err != nil {
		return Decision{}, err
	}

	// Step 2: replay check — cheapest gate, runs before any crypto work.
	firstSeen, err := c.nullifiers.CheckAndSet(ctx, claimed)
	if err != nil {
		return Decision{}, err
	}
	if !firstSeen {
		return Decision{}, apperrors.ErrReplay
	}

	// Step 3: payment check + reservation, if required by policy.
	paymentReserved := false
	if c.cfg.RequirePayment {
		if err := c.checkPayment(ctx, claimed); err != nil {
			return Decision{}, err
		}
		acquired, err := c.payments.ReservePayment(ctx, claimed)
		if err != nil {
			return Decision{}, err
		}
		if !acquired {
			return Decision{}, apperrors.ErrPaymentReserved
		}
		paymentReserved = true
	}

	// Step 4: receipt verification. Any failure releases the reservation
	// (best-effort) before denying.
	receiptBytes, err := decodeReceiptHex(req.ReceiptHex)
	if err != nil {
		c.releaseBestEffort(ctx, claimed, paymentReserved)
		return Decision{}, err
	}
	out, err := c.verifier.VerifyAndDecode(ctx, receiptBytes, c.cfg.ExpectedImageID)
	if err != nil {
		c.releaseBestEffort(ctx, claimed, paymentReserved)
		return Decision{}, err
	}

	// Step 5: nullifier linkage. Header and journal nullifier must match
	// byte-for-byte.
	if out.Nullifier != claimed {
		c.releaseBestEffort(ctx, claimed, paymentReserved)
		return Decision{}, apperrors.ErrNullifierMismatch
	}

	if !out.ComplianceResult {
		c.releaseBestEffort(ctx, claimed, paymentReserved)
		return Decision{}, apperrors.ErrComplianceFailed
	}

	// Step 6: confirm payment. Logged but non-fatal — the admission answer
	// must stay consistent with what was cryptographically proven; the
	// reservation heals via TTL if this fails.
	if paymentReserved {
		if err := c.payments.ConfirmPayment(ctx, claimed); err != nil {
			c.log.Error("confirm_payment failed after successful verification; relying on TTL to heal",
				zap.String("nullifier", claimed.Hex()), zap.Error(err))
		}
	}

	// Step 7: allow.
	return Decision{Allowed: true, EchoedNullifier: claimed.Hex()}, nil
}

// checkPayment implements the payment-policy deny conditions.
func (c *Controller) checkPayment(ctx context.Context, n nullifier.Nullifier) error {
	info, status, err := c.payments.CheckPayment(ctx, n)
	if err != nil {
		return err
	}
	switch status {
	case payment.StatusNotFound:
		return apperrors.ErrPaymentNotFound
	case payment.StatusAlreadyUsed:
		return apperrors.ErrPaymentUsed
	case payment.StatusReserved:
		return apperrors.ErrPaymentReserved
	}

	if info.Amount < c.cfg.MinPaymentAmount {
		return apperrors.ErrPaymentTooLow
	}

	chainHeight, err := c.payments.GetCurrentBlockHeight(ctx)
	if err != nil {
		return err
	}
	confirmations := payment.Confirmations(chainHeight, info.BlockHeight)
	if confirmations < c.cfg.MinConfirmations {
		return apperrors.ErrInsufficientConf
	}
	return nil
}

// releaseBestEffort releases a held reservation, logging but never
// propagating a failure — the caller is already on a denial path.
func (c *Controller) releaseBestEffort(ctx context.Context, n nullifier.Nullifier, reserved bool) {
	if !reserved {
		return
	}
	if err := c.payments.ReleaseReservation(ctx, n); err != nil {
		c.log.Error("release_reservation failed on denial path", zap.String("nullifier", n.Hex()), zap.Error(err))
	}
}

func decodeReceiptHex(s string) (receipt.Receipt, error) {
	if len(s) < 2 {
		return receipt.Receipt{}, apperrors.ErrInvalidArgument.Wrap(errors.New("receipt hex too short"))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return receipt.Receipt{}, apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("malformed receipt hex: %w", err))
	}
	if len(raw) < len(receipt.ImageID{}) {
		return receipt.Receipt{}, apperrors.ErrInvalidArgument.Wrap(errors.New("receipt too short to contain an image id"))
	}
	var imageID receipt.ImageID
	copy(imageID[:], raw[:len(imageID)])
	return receipt.Receipt{Inner: raw[len(imageID):], ImageID: imageID}, nil
}
