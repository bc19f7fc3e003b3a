package receipt

import (
	"context"
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"zkgate/internal/apperrors"
)

// FileKeyResolver resolves verifying keys from a single file on disk,
// loaded once at startup. This is the service-global deployment shape: one
// admission process serves one tenant's guest program, so there is exactly
// one verifying key to resolve regardless of which image id is asked for,
// as long as it matches the configured expected image.
type FileKeyResolver struct {
	imageID ImageID
	vk      groth16.VerifyingKey
}

// LoadFileKeyResolver reads a gnark-serialized Groth16 verifying key from
// path and binds it to imageID.
func LoadFileKeyResolver(path string, imageID ImageID) (*FileKeyResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verifying key file: %w", err)
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	return &FileKeyResolver{imageID: imageID, vk: vk}, nil
}

// ResolveVerifyingKey implements VerifyingKeyResolver.
func (r *FileKeyResolver) ResolveVerifyingKey(_ context.Context, imageID ImageID) (groth16.VerifyingKey, error) {
	if imageID != r.imageID {
		return nil, apperrors.ErrNotFound.Wrap(fmt.Errorf("no verifying key registered for image %x", imageID))
	}
	return r.vk, nil
}
