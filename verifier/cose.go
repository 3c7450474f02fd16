package verifier

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// proofClaims is the signed payload inside a proof envelope. The verifier
// binds an envelope to a circuit through the circuit claim; everything else
// in the payload is opaque to this layer.
type proofClaims struct {
	Circuit Circuit `json:"circuit"`
}

// COSEVerifier is a Gateway backed by an external prover service whose
// accept/reject decision arrives as a COSE_Sign1 envelope signed with a
// pinned ECDSA key. A proof is accepted when the envelope parses, the
// signature verifies against the pinned key, and the signed payload names
// the expected circuit.
type COSEVerifier struct {
	circuit Circuit
	key     *ecdsa.PublicKey
	alg     cose.Algorithm
}

// NewCOSEVerifier pins the verifier to the certificate's ECDSA public key for
// a single circuit. The signing algorithm is derived from the key's curve
// (P-256 → ES256, P-384 → ES384).
func NewCOSEVerifier(circuit Circuit, cert *x509.Certificate) (*COSEVerifier, error) {
	key, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate public key is not ECDSA")
	}
	var alg cose.Algorithm
	switch key.Curve {
	case elliptic.P256():
		alg = cose.AlgorithmES256
	case elliptic.P384():
		alg = cose.AlgorithmES384
	default:
		return nil, fmt.Errorf("unsupported ECDSA curve: %s", key.Curve.Params().Name)
	}
	return &COSEVerifier{circuit: circuit, key: key, alg: alg}, nil
}

// Verify implements Gateway.
func (v *COSEVerifier) Verify(circuit Circuit, proof []byte) error {
	if circuit != v.circuit {
		return fmt.Errorf("%w: verifier pinned to circuit %s, got %s", ErrVerificationFailed, v.circuit, circuit)
	}

	// Prover services emit untagged COSE_Sign1 (a bare 4-element array).
	// Parse it manually: [protected, unprotected, payload, signature]
	protected, payload, signature, err := splitCOSESign1(proof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	// Sig_structure for COSE_Sign1: ["Signature1", protected, external_aad, payload]
	// external_aad is empty for proof envelopes
	sigStructure := []any{
		"Signature1",
		protected,
		[]byte{},
		payload,
	}
	sigStructureBytes, err := cbor.Marshal(sigStructure)
	if err != nil {
		return fmt.Errorf("%w: marshal Sig_structure: %v", ErrVerificationFailed, err)
	}

	coseVerifier, err := cose.NewVerifier(v.alg, v.key)
	if err != nil {
		return fmt.Errorf("%w: create verifier: %v", ErrVerificationFailed, err)
	}
	if err := coseVerifier.Verify(sigStructureBytes, signature); err != nil {
		return fmt.Errorf("%w: signature: %v", ErrVerificationFailed, err)
	}

	var claims proofClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return fmt.Errorf("%w: parse payload claims: %v", ErrVerificationFailed, err)
	}
	if claims.Circuit != circuit {
		return fmt.Errorf("%w: payload attests circuit %q, expected %q", ErrVerificationFailed, claims.Circuit, circuit)
	}
	return nil
}

// splitCOSESign1 parses an untagged COSE_Sign1 4-element array and returns
// the protected header bytes, the payload and the signature.
func splitCOSESign1(coseBytes []byte) (protected, payload, signature []byte, err error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, nil, nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, nil, nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	protected, ok := coseArray[0].([]byte)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid protected headers")
	}
	payload, ok = coseArray[2].([]byte)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid payload")
	}
	signature, ok = coseArray[3].([]byte)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid signature")
	}
	return protected, payload, signature, nil
}

// ExtractProofPayload returns the signed payload bytes of a proof envelope
// without verifying the signature. Diagnostic use only.
func ExtractProofPayload(coseBytes []byte) ([]byte, error) {
	_, payload, _, err := splitCOSESign1(coseBytes)
	return payload, err
}

// LoadCertificate reads and parses a PEM-encoded certificate file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate file: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no CERTIFICATE block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
