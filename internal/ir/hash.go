package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEnvelope  = "stanhf/envelope/v1"  // histosys lo/hi vectors
	DomainFactor    = "stanhf/factor/v1"    // normsys lo/hi scalars
	DomainRelError  = "stanhf/relerror/v1"  // shapesys relative errors
	DomainStdev     = "stanhf/stdev/v1"     // staterror standard deviations
	DomainWorkspace = "stanhf/workspace/v1" // parsed input document
	DomainProgram   = "stanhf/program/v1"   // emitted program text + cards
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content hash of v under domain.
func Hash(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("Hash(%s): failed to marshal: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// HashBytes hashes raw bytes under domain. Used for documents that are
// already serialized (workspace files, program text).
func HashBytes(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// ConversionID identifies one conversion: the workspace content, the
// measurement and patch selections, and the generator version.
func ConversionID(workspaceHash, measurement, patch string) (string, error) {
	return Hash(DomainProgram, Object{
		"workspace":   String(workspaceHash),
		"measurement": String(measurement),
		"patch":       String(patch),
		"generator":   String(GeneratorVersion),
	})
}
