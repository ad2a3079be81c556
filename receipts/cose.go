package receipts

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

// VerifyCOSESignature verifies the ES384 signature of an untagged COSE_Sign1
// receipt against the public key of the base64 DER certificate.
func VerifyCOSESignature(coseBytes marketapi.ReceiptCOSE, certB64 string) error {
	certDER, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return fmt.Errorf("decode certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}

	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}
	return verifyCOSE(coseBytes, ecdsaKey)
}

func verifyCOSE(coseBytes marketapi.ReceiptCOSE, key *ecdsa.PublicKey) error {
	msg, err := parsing.DecodeCOSESign1(coseBytes)
	if err != nil {
		return err
	}

	// Both Nitro and local receipts use ES384 with an empty external_aad.
	sigStructure, err := parsing.SigStructure(msg.Protected, msg.Payload)
	if err != nil {
		return err
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, key)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructure, msg.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}
