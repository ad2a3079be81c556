package main

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	log "github.com/inconshreveable/log15"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

// maxUserDataSize is the largest user data the NSM accepts.
const maxUserDataSize = 512

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// ReceiptSigner wraps a settlement receipt in a COSE_Sign1 envelope.
type ReceiptSigner interface {
	Mode() string
	Sign(receipt marketapi.SettlementReceipt) (marketapi.ReceiptCOSE, error)
}

// newReceiptSigner builds the signer for the configured mode. "none" returns nil.
func newReceiptSigner(cfg *Config) (ReceiptSigner, error) {
	switch cfg.ReceiptSigner {
	case signerLocal:
		keys, err := LoadOrCreateKeyManager(cfg.ReceiptKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key manager: %w", err)
		}
		signer, err := NewLocalSigner(keys)
		if err != nil {
			return nil, err
		}
		return signer, nil
	case signerNSM:
		attester, err := getEnclaveAttester()
		if err != nil {
			return nil, err
		}
		return NewEnclaveSigner(attester), nil
	default:
		return nil, nil
	}
}

// LocalSigner signs receipts with ES384 using the node key. The receipt
// document carries the signing certificate and no PCRs.
type LocalSigner struct {
	keys   *KeyManager
	signer cose.Signer
	now    func() time.Time
}

func NewLocalSigner(keys *KeyManager) (*LocalSigner, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES384, keys.privateKey)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}
	return &LocalSigner{keys: keys, signer: signer, now: time.Now}, nil
}

func (s *LocalSigner) Mode() string { return signerLocal }

func (s *LocalSigner) Sign(receipt marketapi.SettlementReceipt) (marketapi.ReceiptCOSE, error) {
	userData, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate receipt nonce: %w", err)
	}
	publicKey, err := x509.MarshalPKIXPublicKey(s.keys.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	payload, err := cbor.Marshal(parsing.ReceiptDocument{
		ModuleID:    marketapi.LocalModuleID,
		Digest:      "SHA384",
		Timestamp:   uint64(s.now().UnixMilli()),
		PCRs:        map[uint64][]byte{},
		Certificate: s.keys.Certificate.Raw,
		CABundle:    [][]byte{},
		PublicKey:   publicKey,
		UserData:    userData,
		Nonce:       []byte(nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt document: %w", err)
	}

	protected, err := cbor.Marshal(map[int64]int64{1: int64(cose.AlgorithmES384)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protected header: %w", err)
	}

	toBeSigned, err := parsing.SigStructure(protected, payload)
	if err != nil {
		return nil, err
	}
	signature, err := s.signer.Sign(rand.Reader, toBeSigned)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}

	coseBytes, err := parsing.EncodeCOSESign1(protected, payload, signature)
	if err != nil {
		return nil, err
	}
	return marketapi.ReceiptCOSE(coseBytes), nil
}

// EnclaveSigner asks the Nitro Security Module to attest the receipt. The
// NSM signs the attestation document itself.
type EnclaveSigner struct {
	attester EnclaveAttester
}

func NewEnclaveSigner(attester EnclaveAttester) *EnclaveSigner {
	return &EnclaveSigner{attester: attester}
}

func (s *EnclaveSigner) Mode() string { return signerNSM }

func (s *EnclaveSigner) Sign(receipt marketapi.SettlementReceipt) (marketapi.ReceiptCOSE, error) {
	if s.attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userData, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if len(userData) > maxUserDataSize {
		return nil, fmt.Errorf("receipt is %d bytes, NSM user data is limited to %d", len(userData), maxUserDataSize)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := s.attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		log.Error("NSM attestation failed", "auction", receipt.AuctionID, "err", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Debug("NSM receipt attestation generated", "auction", receipt.AuctionID, "bytes", len(attestationCBOR))
	return marketapi.ReceiptCOSE(attestationCBOR), nil
}

// generateSecureRandomBytes reads length bytes from crypto/rand. Inside an
// enclave the kernel pool is seeded by the NSM.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
