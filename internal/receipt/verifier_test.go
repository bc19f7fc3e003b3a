package receipt_test

import (
	"context"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/stretchr/testify/require"

	"zkgate/internal/receipt"
)

// digestOf mirrors the production journal-to-field-element reduction so
// proofs built in this test verify against the real implementation.
func digestOf(journal []byte) *big.Int {
	sum := sha256.Sum256(journal)
	var e bn254fr.Element
	e.SetBytes(sum[:])
	return e.BigInt(new(big.Int))
}

// testCircuit mirrors the journalCircuit shape every generated guest program
// commits to: a single public input equal to a digest of the journal.
type testCircuit struct {
	JournalHash frontend.Variable `gnark:",public"`
}

func (c *testCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.JournalHash, c.JournalHash)
	return nil
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

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "verifying key not found" }

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

func TestVerifyAndDecode_RoundTrip(t *testing.T) {
	imageA := receipt.ImageID{0xA}
	pkA, vkA := setupCircuit(t)

	var nullifier [32]byte
	copy(nullifier[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))
	journal := receipt.EncodeJournal(receipt.Output{
		Nullifier:        nullifier,
		ComplianceResult: true,
		Metadata:         []byte("meta"),
	})

	proof := proveJournal(t, pkA, journal)
	r, err := receipt.EncodeReceipt(proof, imageA, journal)
	require.NoError(t, err)

	resolver := &fakeKeyResolver{keys: map[receipt.ImageID]groth16.VerifyingKey{imageA: vkA}}
	verifier := receipt.New(resolver)

	out, err := verifier.VerifyAndDecode(context.Background(), r, imageA)
	require.NoError(t, err)
	require.Equal(t, nullifier, out.Nullifier)
	require.True(t, out.ComplianceResult)
	require.Equal(t, []byte("meta"), out.Metadata)
}

func TestVerifyAndDecode_RejectsWrongImage(t *testing.T) {
	imageA := receipt.ImageID{0xA}
	imageB := receipt.ImageID{0xB}
	pkA, vkA := setupCircuit(t)

	var nullifier [32]byte
	journal := receipt.EncodeJournal(receipt.Output{Nullifier: nullifier, ComplianceResult: true})
	proof := proveJournal(t, pkA, journal)

	r, err := receipt.EncodeReceipt(proof, imageA, journal)
	require.NoError(t, err)

	// The receipt itself claims imageA; asking the verifier to check it
	// against imageB must be rejected before any cryptographic work.
	resolver := &fakeKeyResolver{keys: map[receipt.ImageID]groth16.VerifyingKey{imageA: vkA}}
	verifier := receipt.New(resolver)
	_, err = verifier.VerifyAndDecode(context.Background(), r, imageB)
	require.Error(t, err)
}

func TestEncodeDecodeJournal_RoundTrip(t *testing.T) {
	var n [32]byte
	copy(n[:], []byte("0123456789abcdef0123456789abcdef"))
	in := receipt.Output{Nullifier: n, ComplianceResult: false, Metadata: []byte("hello")}
	encoded := receipt.EncodeJournal(in)
	out, err := receipt.DecodeJournal(encoded)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeJournal_RejectsTruncated(t *testing.T) {
	_, err := receipt.DecodeJournal([]byte{1, 2, 3})
	require.Error(t, err)
}
