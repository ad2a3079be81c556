package main

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

func testReceipt() marketapi.SettlementReceipt {
	return marketapi.SettlementReceipt{
		Settlement: core.Settlement{
			AuctionID:      7,
			AssetID:        3,
			Seller:         testSeller,
			Winner:         testBob,
			FinalAmount:    dec("1.8"),
			Fee:            dec("0.045"),
			SellerProceeds: dec("1.755"),
			FeeBps:         250,
			Currency:       core.NativeCurrency,
			ReserveMet:     true,
			Refunded:       dec("0"),
			SettledAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			EventHash:      strings.Repeat("ab", 32),
		},
		Market:  "0xauctionmarket",
		Network: "test",
		Height:  12,
	}
}

func TestLocalSigner_SignAndParse(t *testing.T) {
	keys, err := NewKeyManager()
	assert.NoError(t, err)
	signer, err := NewLocalSigner(keys)
	assert.NoError(t, err)
	signedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return signedAt }

	coseBytes, err := signer.Sign(testReceipt())
	assert.NoError(t, err)

	doc, receipt, err := coseBytes.ParseSettlementReceipt()
	assert.NoError(t, err)
	check.Equal(t, marketapi.LocalModuleID, doc.ModuleID)
	check.Equal(t, "SHA384", doc.DigestAlgorithm)
	check.True(t, doc.PCRs.IsZero())
	check.True(t, doc.Timestamp.Equal(signedAt))
	check.Equal(t, 64, len(doc.Nonce))
	check.Equal(t, base64.StdEncoding.EncodeToString(keys.Certificate.Raw), doc.Certificate)

	want := testReceipt()
	check.Equal(t, want.AuctionID, receipt.AuctionID)
	check.Equal(t, want.Winner, receipt.Winner)
	check.Equal(t, want.FinalAmount, receipt.FinalAmount)
	check.Equal(t, want.EventHash, receipt.EventHash)
	check.Equal(t, want.Height, receipt.Height)
}

func TestLocalSigner_SignatureVerifies(t *testing.T) {
	keys, err := NewKeyManager()
	assert.NoError(t, err)
	signer, err := NewLocalSigner(keys)
	assert.NoError(t, err)

	coseBytes, err := signer.Sign(testReceipt())
	assert.NoError(t, err)

	msg, err := parsing.DecodeCOSESign1(coseBytes)
	assert.NoError(t, err)
	toBeSigned, err := parsing.SigStructure(msg.Protected, msg.Payload)
	assert.NoError(t, err)

	cert, err := x509.ParseCertificate(keys.Certificate.Raw)
	assert.NoError(t, err)
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, cert.PublicKey)
	assert.NoError(t, err)
	check.NoError(t, verifier.Verify(toBeSigned, msg.Signature))

	// Any change to the payload breaks the signature.
	tampered, err := parsing.SigStructure(msg.Protected, append([]byte{0x00}, msg.Payload...))
	assert.NoError(t, err)
	check.Error(t, verifier.Verify(tampered, msg.Signature))
}

func TestEnclaveSigner_Sign(t *testing.T) {
	mock := CreateMockEnclave(t)
	var seen enclave.AttestationOptions
	attest := mock.AttestFunc
	mock.AttestFunc = func(options enclave.AttestationOptions) ([]byte, error) {
		seen = options
		return attest(options)
	}

	signer := NewEnclaveSigner(mock)
	check.Equal(t, signerNSM, signer.Mode())

	coseBytes, err := signer.Sign(testReceipt())
	assert.NoError(t, err)
	check.Equal(t, 64, len(seen.Nonce))

	doc, receipt, err := coseBytes.ParseSettlementReceipt()
	assert.NoError(t, err)
	check.False(t, doc.PCRs.IsZero())
	check.Equal(t, core.AuctionID(7), receipt.AuctionID)
	check.Equal(t, string(seen.Nonce), doc.Nonce)
}

func TestEnclaveSigner_Errors(t *testing.T) {
	t.Run("nil attester", func(t *testing.T) {
		_, err := NewEnclaveSigner(nil).Sign(testReceipt())
		check.Error(t, err)
	})

	t.Run("attestation failure", func(t *testing.T) {
		mock := &MockEnclaveHandle{AttestFunc: func(enclave.AttestationOptions) ([]byte, error) {
			return nil, errors.New("nsm unavailable")
		}}
		_, err := NewEnclaveSigner(mock).Sign(testReceipt())
		assert.Error(t, err)
		check.True(t, strings.Contains(err.Error(), "nsm unavailable"))
	})

	t.Run("user data too large", func(t *testing.T) {
		receipt := testReceipt()
		receipt.Network = strings.Repeat("n", maxUserDataSize)
		_, err := NewEnclaveSigner(CreateMockEnclave(t)).Sign(receipt)
		assert.Error(t, err)
		check.True(t, strings.Contains(err.Error(), "limited to 512"))
	})
}

func TestNewReceiptSigner(t *testing.T) {
	cfg := newTestConfig()

	cfg.ReceiptSigner = signerNone
	signer, err := newReceiptSigner(cfg)
	assert.NoError(t, err)
	check.True(t, signer == nil)

	cfg.ReceiptSigner = signerLocal
	signer, err = newReceiptSigner(cfg)
	assert.NoError(t, err)
	assert.NotNil(t, signer)
	check.Equal(t, signerLocal, signer.Mode())
}

func TestNode_NoSignerOmitsReceipt(t *testing.T) {
	cfg := newTestConfig()
	cfg.ReceiptSigner = signerNone
	node := newTestNode(t, cfg)

	check.True(t, node.signReceipt(&core.Settlement{AuctionID: 1}, 1) == nil)
	check.Equal(t, signerNone, node.Deployment().ReceiptSigner)
}

func TestNode_SigningFailureOmitsReceipt(t *testing.T) {
	cfg := newTestConfig()
	mock := &MockEnclaveHandle{AttestFunc: func(enclave.AttestationOptions) ([]byte, error) {
		return nil, errors.New("nsm unavailable")
	}}
	node, err := NewNode(cfg, NewEnclaveSigner(mock), discardLogger())
	assert.NoError(t, err)

	check.True(t, node.signReceipt(&core.Settlement{AuctionID: 1}, 1) == nil)
}
