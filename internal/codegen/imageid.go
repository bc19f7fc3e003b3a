package codegen

import (
	"crypto/sha256"
	"sort"
)

// ImageID is the 32-byte cryptographic hash identifying an exact guest
// program build (GLOSSARY).
type ImageID [32]byte

// DeriveImageID computes the canonical image identifier for a built
// artifact. Grounded in gnark-crypto/groth16 hashing conventions
// (m1zr-ccoin uses sha256-derived digests for its own nullifier/commitment
// derivation) — here applied to the artifact bytes the Build Worker loads
// after invoking the external toolchain.
func DeriveImageID(artifact []byte) ImageID {
	return ImageID(sha256.Sum256(artifact))
}

// DeriveSourceFingerprint hashes the generated source tree deterministically
// (sorted by path), giving one digest for a whole tree. The Build Worker does
// not call it; built artifacts are not checked against it for staleness.
func DeriveSourceFingerprint(files map[string]string) [32]byte {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(files[p]))
		h.Write([]byte{0})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
