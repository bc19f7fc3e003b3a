// Package receipt implements the Receipt Verifier: checked deserialization
// of a zero-knowledge receipt, cryptographic verification tying the proof
// to a tenant's expected image identifier, and journal extraction into the
// tagged {nullifier, compliance_result, metadata} tuple.
//
// The cryptographic backend is gnark's Groth16 over BN254, following the
// usage shape in m1zr-ccoin's zkp.CircuitManager. A receipt's journal (the
// guest's plaintext public output) is bound to the proof by committing a
// single public input equal to a field-reduced hash of the journal bytes —
// the same "prove a digest of the journal" idiom RISC Zero's zkVM uses, made
// concrete here with gnark's own APIs.
package receipt

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	bn254fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"zkgate/internal/apperrors"
)

// ImageID identifies an exact guest program build.
type ImageID [32]byte

// Receipt is an opaque proof blob paired with the image identifier its
// prover claims to have been generated against.
type Receipt struct {
	Inner   []byte
	ImageID ImageID
}

// Output is the tagged tuple a guest program commits to its journal.
type Output struct {
	Nullifier        [32]byte
	ComplianceResult bool
	Metadata         []byte
}

// journalCircuit is the canonical shape every generated guest program commits
// to: one public input binding the proof to a digest of the plaintext
// journal. Define is never invoked for verification (only Setup/proving need
// R1CS); it exists to satisfy frontend.Circuit so the struct can be used as a
// witness assignment.
type journalCircuit struct {
	JournalHash frontend.Variable `gnark:",public"`
}

func (c *journalCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.JournalHash, c.JournalHash)
	return nil
}

// VerifyingKeyResolver resolves the Groth16 verifying key bound to a given
// image identifier. FileKeyResolver is the implementation cmd/admission
// wires: one verifying key loaded from disk and bound to the configured
// expected image. The Tenant → Image Registry does not implement it.
type VerifyingKeyResolver interface {
	ResolveVerifyingKey(ctx context.Context, imageID ImageID) (groth16.VerifyingKey, error)
}

// Verifier is the Receipt Verifier.
type Verifier struct {
	keys VerifyingKeyResolver
}

// New constructs a Verifier backed by the given key resolver.
func New(keys VerifyingKeyResolver) *Verifier {
	return &Verifier{keys: keys}
}

// encodeEnvelope packs a proof and its plaintext journal into Receipt.Inner's
// wire format: a 4-byte big-endian proof length, the proof bytes (gnark's
// native WriteTo encoding), then the raw journal bytes.
func encodeEnvelope(proof groth16.Proof, journal []byte) ([]byte, error) {
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	out := make([]byte, 4+proofBuf.Len()+len(journal))
	binary.BigEndian.PutUint32(out[:4], uint32(proofBuf.Len()))
	copy(out[4:], proofBuf.Bytes())
	copy(out[4+proofBuf.Len():], journal)
	return out, nil
}

func decodeEnvelope(inner []byte) (proofBytes, journal []byte, err error) {
	if len(inner) < 4 {
		return nil, nil, apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("receipt envelope too short"))
	}
	proofLen := binary.BigEndian.Uint32(inner[:4])
	if uint64(4)+uint64(proofLen) > uint64(len(inner)) {
		return nil, nil, apperrors.ErrInvalidArgument.Wrap(fmt.Errorf("receipt envelope truncated"))
	}
	proofBytes = inner[4 : 4+proofLen]
	journal = inner[4+proofLen:]
	return
}

// journalDigestElement reduces sha256(journal) into the BN254 scalar field,
// the same reduction gnark-crypto's fr.Element.SetBytes performs for any
// big-endian byte string wider than the field.
func journalDigestElement(journal []byte) bn254fr.Element {
	sum := sha256.Sum256(journal)
	var e bn254fr.Element
	e.SetBytes(sum[:])
	return e
}

// VerifyAndDecode implements the Receipt Verifier contract: deserialize,
// verify against expectedImageID, extract and decode the journal. A
// cryptographic failure and a post-verification decode failure are reported
// distinctly — the latter is fatal/Internal, not a deny,
// because it indicates an ABI mismatch rather than an attack.
func (v *Verifier) VerifyAndDecode(ctx context.Context, r Receipt, expectedImageID ImageID) (Output, error) {
	if r.ImageID != expectedImageID {
		return Output{}, apperrors.ErrProofInvalid.Wrap(fmt.Errorf("receipt claims image %x, expected %x", r.ImageID, expectedImageID))
	}

	proofBytes, journal, err := decodeEnvelope(r.Inner)
	if err != nil {
		return Output{}, err
	}

	vk, err := v.keys.ResolveVerifyingKey(ctx, expectedImageID)
	if err != nil {
		return Output{}, apperrors.ErrUnavailable.Wrap(fmt.Errorf("resolve verifying key: %w", err))
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return Output{}, apperrors.ErrProofInvalid.Wrap(fmt.Errorf("malformed proof: %w", err))
	}

	digest := journalDigestElement(journal)
	assignment := &journalCircuit{JournalHash: digest}
	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return Output{}, apperrors.ErrInternal.Wrap(fmt.Errorf("build witness: %w", err))
	}
	publicWitness, err := fullWitness.Public()
	if err != nil {
		return Output{}, apperrors.ErrInternal.Wrap(fmt.Errorf("extract public witness: %w", err))
	}

	// This is the step that ties the proof to expectedImageID: vk was
	// resolved specifically for that image, so a proof generated against a
	// different image's circuit fails here even if it is otherwise valid.
	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return Output{}, apperrors.ErrProofInvalid.Wrap(fmt.Errorf("proof verification failed: %w", err))
	}

	output, err := DecodeJournal(journal)
	if err != nil {
		// Crypto succeeded; the journal itself is malformed. Distinct,
		// fatal failure mode.
		return Output{}, apperrors.ErrInternal.Wrap(fmt.Errorf("journal decode failed after successful verification: %w", err))
	}

	return output, nil
}

// EncodeReceipt is the inverse of VerifyAndDecode's envelope parsing; used by
// tests and fixtures to build well-formed Receipt values.
func EncodeReceipt(proof groth16.Proof, imageID ImageID, journal []byte) (Receipt, error) {
	inner, err := encodeEnvelope(proof, journal)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Inner: inner, ImageID: imageID}, nil
}

// EncodeJournal packs the tagged output tuple into the journal wire format:
// 32-byte nullifier, 1-byte bool, 4-byte big-endian metadata length, then the
// metadata bytes.
func EncodeJournal(out Output) []byte {
	buf := make([]byte, 32+1+4+len(out.Metadata))
	copy(buf[:32], out.Nullifier[:])
	if out.ComplianceResult {
		buf[32] = 1
	}
	binary.BigEndian.PutUint32(buf[33:37], uint32(len(out.Metadata)))
	copy(buf[37:], out.Metadata)
	return buf
}

// DecodeJournal is the inverse of EncodeJournal.
func DecodeJournal(journal []byte) (Output, error) {
	var out Output
	if len(journal) < 37 {
		return out, fmt.Errorf("journal too short: %d bytes", len(journal))
	}
	copy(out.Nullifier[:], journal[:32])
	out.ComplianceResult = journal[32] == 1
	metaLen := binary.BigEndian.Uint32(journal[33:37])
	if uint64(37)+uint64(metaLen) != uint64(len(journal)) {
		return out, fmt.Errorf("journal metadata length mismatch: declared %d, have %d remaining", metaLen, len(journal)-37)
	}
	out.Metadata = journal[37:]
	return out, nil
}
