package admission_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/consensys/gnark-crypto/ecc"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zkgate/internal/admission"
	"zkgate/internal/apperrors"
	"zkgate/internal/nullifier"
	"zkgate/internal/payment"
	"zkgate/internal/receipt"
)

// The gnark fixture plumbing mirrors receipt_test.go exactly — both test
// real Groth16 proofs against the same journalCircuit shape, just wired
// through the full admission pipeline here instead of the verifier alone.

type testCircuit struct {
	JournalHash frontend.Variable `gnark:",public"`
}

func (c *testCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.JournalHash, c.JournalHash)
	return nil
}

func digestOf(journal []byte) *big.Int {
	sum := sha256.Sum256(journal)
	var e bn254fr.Element
	e.SetBytes(sum[:])
	return e.BigInt(new(big.Int))
}

type fakeKeyResolver struct {
	keys map[receipt.ImageID]groth16.VerifyingKey
}

func (f *fakeKeyResolver) ResolveVerifyingKey(_ context.Context, id receipt.ImageID) (groth16.VerifyingKey, error) {
	vk, ok := f.keys[id]
	if !ok {
		return nil, errNotFound
	}
	return vk, nil
}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "verifying key not found" }

var errNotFound = &notFoundErr{}

func setupCircuit(t *testing.T) (groth16.ProvingKey, groth16.VerifyingKey) {
	t.Helper()
	var circuit testCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	require.NoError(t, err)
	pk, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)
	return pk, vk
}

func proveJournal(t *testing.T, pk groth16.ProvingKey, journal []byte) groth16.Proof {
	t.Helper()
	var circuit testCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	require.NoError(t, err)
	assignment := &testCircuit{JournalHash: digestOf(journal)}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	require.NoError(t, err)
	proof, err := groth16.Prove(ccs, pk, w)
	require.NoError(t, err)
	return proof
}

// receiptHexFor builds the hex string the HTTP contract carries in
// x-zk-receipt: 32-byte image id followed by the receipt envelope.
func receiptHexFor(t *testing.T, proof groth16.Proof, imageID receipt.ImageID, journal []byte) string {
	t.Helper()
	r, err := receipt.EncodeReceipt(proof, imageID, journal)
	require.NoError(t, err)
	full := append(append([]byte{}, imageID[:]...), r.Inner...)
	return hex.EncodeToString(full)
}

type harness struct {
	controller *admission.Controller
	nullifiers *nullifier.Index
	payments   *payment.Store
	imageID    receipt.ImageID
	pk         groth16.ProvingKey
	mr         *miniredis.Miniredis
}

func newHarness(t *testing.T, requirePayment bool) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	idx := nullifier.New(client, time.Hour)
	payStore := payment.New(client, 300*time.Second)
	pk, vk := setupCircuit(t)

	imageID := receipt.ImageID{0xAB}
	resolver := &fakeKeyResolver{keys: map[receipt.ImageID]groth16.VerifyingKey{imageID: vk}}
	verifier := receipt.New(resolver)

	ctrl := admission.New(idx, payStore, verifier, admission.Config{
		RequirePayment:   requirePayment,
		MinPaymentAmount: 1000,
		MinConfirmations: 1,
		ExpectedImageID:  imageID,
	}, zap.NewNop())

	return &harness{controller: ctrl, nullifiers: idx, payments: payStore, imageID: imageID, pk: pk, mr: mr}
}

func (h *harness) makeReceipt(t *testing.T, n [32]byte, compliant bool) string {
	t.Helper()
	journal := receipt.EncodeJournal(receipt.Output{Nullifier: n, ComplianceResult: compliant})
	proof := proveJournal(t, h.pk, journal)
	return receiptHexFor(t, proof, h.imageID, journal)
}

func testNullifier(seed byte) [32]byte {
	var n [32]byte
	for i := range n {
		n[i] = seed
	}
	return n
}

func TestDecide_AllowsValidRequestWithoutPayment(t *testing.T) {
	h := newHarness(t, false)
	n := testNullifier(0x01)
	receiptHex := h.makeReceipt(t, n, true)

	decision, err := h.controller.Decide(context.Background(), admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, hex.EncodeToString(n[:]), decision.EchoedNullifier)
}

func TestDecide_DeniesReplay(t *testing.T) {
	h := newHarness(t, false)
	n := testNullifier(0x02)
	receiptHex := h.makeReceipt(t, n, true)
	req := admission.Request{ReceiptHex: receiptHex, NullifierHex: hex.EncodeToString(n[:])}

	_, err := h.controller.Decide(context.Background(), req)
	require.NoError(t, err)

	_, err = h.controller.Decide(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrReplay)
}

func TestDecide_DeniesMalformedNullifier(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.controller.Decide(context.Background(), admission.Request{
		ReceiptHex:   "aa",
		NullifierHex: "not-hex",
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestDecide_DeniesNullifierMismatchAndReleasesReservation(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	journalN := testNullifier(0x03)
	headerN := testNullifier(0x04)

	require.NoError(t, h.payments.Record(ctx, headerN, payment.Info{Amount: 5000, BlockHeight: 10}))
	require.NoError(t, h.payments.SetChainHeight(ctx, 11))

	receiptHex := h.makeReceipt(t, journalN, true)
	_, err := h.controller.Decide(ctx, admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(headerN[:]),
	})
	require.ErrorIs(t, err, apperrors.ErrNullifierMismatch)

	// Reservation must have been released so a retry isn't permanently
	// locked out behind this failed attempt.
	acquired, err := h.payments.ReservePayment(ctx, headerN)
	require.NoError(t, err)
	require.True(t, acquired, "reservation must be released on nullifier-mismatch denial")
}

func TestDecide_AllowsWithPayment_ConfirmsAndIsIdempotentAgainstReplay(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	n := testNullifier(0x05)

	require.NoError(t, h.payments.Record(ctx, n, payment.Info{Amount: 5000, BlockHeight: 10}))
	require.NoError(t, h.payments.SetChainHeight(ctx, 11))

	receiptHex := h.makeReceipt(t, n, true)
	decision, err := h.controller.Decide(ctx, admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	_, err = h.controller.Decide(ctx, admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.ErrorIs(t, err, apperrors.ErrReplay)

	_, status, err := h.payments.CheckPayment(ctx, n)
	require.NoError(t, err)
	require.Equal(t, payment.StatusAlreadyUsed, status)
}

func TestDecide_DeniesPaymentBelowMinimum(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	n := testNullifier(0x06)

	require.NoError(t, h.payments.Record(ctx, n, payment.Info{Amount: 1, BlockHeight: 10}))
	require.NoError(t, h.payments.SetChainHeight(ctx, 11))

	receiptHex := h.makeReceipt(t, n, true)
	_, err := h.controller.Decide(ctx, admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.ErrorIs(t, err, apperrors.ErrPaymentTooLow)
}

func TestDecide_DeniesInsufficientConfirmations(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	n := testNullifier(0x07)

	require.NoError(t, h.payments.Record(ctx, n, payment.Info{Amount: 5000, BlockHeight: 100}))
	require.NoError(t, h.payments.SetChainHeight(ctx, 100)) // zero confirmations

	receiptHex := h.makeReceipt(t, n, true)
	_, err := h.controller.Decide(ctx, admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.ErrorIs(t, err, apperrors.ErrInsufficientConf)
}

func TestDecide_DeniesComplianceFalse(t *testing.T) {
	h := newHarness(t, false)
	n := testNullifier(0x08)
	receiptHex := h.makeReceipt(t, n, false)

	_, err := h.controller.Decide(context.Background(), admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.ErrorIs(t, err, apperrors.ErrComplianceFailed)
}

func TestDecide_WrongImageIDIsDenied(t *testing.T) {
	h := newHarness(t, false)
	n := testNullifier(0x09)
	journal := receipt.EncodeJournal(receipt.Output{Nullifier: n, ComplianceResult: true})
	proof := proveJournal(t, h.pk, journal)

	wrongImage := receipt.ImageID{0xCD}
	receiptHex := receiptHexFor(t, proof, wrongImage, journal)

	_, err := h.controller.Decide(context.Background(), admission.Request{
		ReceiptHex:   receiptHex,
		NullifierHex: hex.EncodeToString(n[:]),
	})
	require.Error(t, err)
}
