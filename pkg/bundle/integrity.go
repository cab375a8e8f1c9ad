// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	_ "crypto/sha256" // register SHA-256/384 for go-digest
	_ "crypto/sha512" // register SHA-512 for go-digest
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrIntegrityMismatch is returned when tarball bytes do not match the
	// published integrity string.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrUnsupportedIntegrity is returned for integrity strings that carry
	// no algorithm this package can verify.
	ErrUnsupportedIntegrity = errors.New("unsupported integrity")
)

var sriAlgorithms = map[string]digest.Algorithm{
	"sha256": digest.SHA256,
	"sha384": digest.SHA384,
	"sha512": digest.SHA512,
}

// IntegrityError describes a failed integrity check.
type IntegrityError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// ParseIntegrity converts a Subresource Integrity string ("sha512-<base64>")
// into a digest. When the string lists several hashes separated by spaces,
// the strongest supported one wins.
func ParseIntegrity(sri string) (digest.Digest, error) {
	var best digest.Digest
	for _, field := range strings.Fields(sri) {
		algo, encoded, ok := strings.Cut(field, "-")
		if !ok {
			continue
		}
		alg, known := sriAlgorithms[algo]
		if !known {
			continue
		}
		// Options after "?" are allowed by the SRI grammar and ignored.
		encoded, _, _ = strings.Cut(encoded, "?")
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrUnsupportedIntegrity, field, err)
		}
		d := digest.NewDigestFromEncoded(alg, hex.EncodeToString(raw))
		if err := d.Validate(); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrUnsupportedIntegrity, field, err)
		}
		if best == "" || alg.Size() > best.Algorithm().Size() {
			best = d
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedIntegrity, sri)
	}
	return best, nil
}

// VerifyIntegrity checks data against an SRI string.
func VerifyIntegrity(data []byte, sri string) error {
	expected, err := ParseIntegrity(sri)
	if err != nil {
		return err
	}
	verifier := expected.Verifier()
	if _, err := verifier.Write(data); err != nil {
		return fmt.Errorf("failed to hash tarball: %w", err)
	}
	if !verifier.Verified() {
		return &IntegrityError{Expected: expected, Actual: expected.Algorithm().FromBytes(data)}
	}
	return nil
}

// Integrity returns the sha512 SRI string for data, the form the npm
// registry publishes in dist.integrity.
func Integrity(data []byte) string {
	d := digest.SHA512.FromBytes(data)
	raw, err := hex.DecodeString(d.Encoded())
	if err != nil {
		panic(fmt.Sprintf("go-digest produced a non-hex digest %q", d))
	}
	return "sha512-" + base64.StdEncoding.EncodeToString(raw)
}
