package release

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm is a supported digest function.
type Algorithm int

const (
	// AlgorithmSHA256 is SHA-256, the default for 64 hex characters.
	AlgorithmSHA256 Algorithm = iota + 1
	// AlgorithmSHA512 is SHA-512, the default for 128 hex characters.
	AlgorithmSHA512
	// AlgorithmBLAKE3 is BLAKE3 with 256-bit output; it must be requested with a "blake3:" prefix.
	AlgorithmBLAKE3
)

var (
	errEmptyDigest       = errors.New("digest is empty")
	errUnknownAlgorithm  = errors.New("unknown digest algorithm")
	errDigestLength      = errors.New("unexpected digest length")
	errDigestNotHex      = errors.New("digest is not hexadecimal")
	errAlgorithmMismatch = errors.New("digest algorithms differ")
)

// String returns the algorithm name as written in manifests.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmSHA256:
		return "sha256"
	case AlgorithmSHA512:
		return "sha512"
	case AlgorithmBLAKE3:
		return "blake3"
	default:
		return "unknown"
	}
}

// HexLen is the number of hex characters of a digest produced by the algorithm.
func (a Algorithm) HexLen() int {
	switch a {
	case AlgorithmSHA256, AlgorithmBLAKE3:
		return sha256.Size * 2
	case AlgorithmSHA512:
		return sha512.Size * 2
	default:
		return 0
	}
}

// New returns a fresh hash for the algorithm.
func (a Algorithm) New() hash.Hash {
	switch a {
	case AlgorithmSHA512:
		return sha512.New()
	case AlgorithmBLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// ParseAlgorithm converts a manifest algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sha256":
		return AlgorithmSHA256, nil
	case "sha512":
		return AlgorithmSHA512, nil
	case "blake3":
		return AlgorithmBLAKE3, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errUnknownAlgorithm)
	}
}

// Digest is a checksum in canonical lower-case hex form together with its algorithm.
type Digest struct {
	algorithm Algorithm
	hex       string
}

// ParseDigest validates a checksum string.
// Bare hex selects the algorithm by length (64 → sha256, 128 → sha512);
// "algo:hex" names it explicitly. Upper-case hex is canonicalised.
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Digest{}, errEmptyDigest
	}

	var (
		algorithm Algorithm
		value     = s
	)

	if name, rest, found := strings.Cut(s, ":"); found {
		parsed, err := ParseAlgorithm(name)
		if err != nil {
			return Digest{}, err
		}

		algorithm, value = parsed, rest
	} else {
		switch len(s) {
		case AlgorithmSHA256.HexLen():
			algorithm = AlgorithmSHA256
		case AlgorithmSHA512.HexLen():
			algorithm = AlgorithmSHA512
		default:
			return Digest{}, fmt.Errorf("%d characters: %w", len(s), errDigestLength)
		}
	}

	if len(value) != algorithm.HexLen() {
		return Digest{}, fmt.Errorf("%s wants %d characters, got %d: %w",
			algorithm, algorithm.HexLen(), len(value), errDigestLength)
	}

	if _, err := hex.DecodeString(value); err != nil {
		return Digest{}, fmt.Errorf("%w: %w", errDigestNotHex, err)
	}

	return Digest{
		algorithm: algorithm,
		hex:       strings.ToLower(value),
	}, nil
}

// Sum computes the digest of data with the given algorithm.
func Sum(algorithm Algorithm, data []byte) Digest {
	hasher := algorithm.New()
	// hash.Hash.Write never returns an error.
	_, _ = hasher.Write(data)

	return Digest{
		algorithm: algorithm,
		hex:       hex.EncodeToString(hasher.Sum(nil)),
	}
}

// Algorithm returns the digest algorithm.
func (d Digest) Algorithm() Algorithm {
	return d.algorithm
}

// Hex returns the lower-case hex digest without an algorithm prefix.
func (d Digest) Hex() string {
	return d.hex
}

// String returns "algo:hex".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}

	return d.algorithm.String() + ":" + d.hex
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d.hex == ""
}

// Compare reports whether two digests are identical.
// Digests of different algorithms are never comparable.
func (d Digest) Compare(other Digest) (bool, error) {
	if d.algorithm != other.algorithm {
		return false, fmt.Errorf("%s vs %s: %w", d.algorithm, other.algorithm, errAlgorithmMismatch)
	}

	return d.hex == other.hex, nil
}
