package receipts

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

func addr(a core.Address) *core.Address { return &a }

func amount(s string) *core.Amount {
	d := decimal.RequireFromString(s)
	return &d
}

func hasDetail(result *ReceiptValidationResult, substr string) bool {
	for _, d := range result.ValidationDetails {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}

func TestValidateReceipt_Local(t *testing.T) {
	signer := newSelfSigned(t)
	coseBytes := signer.sign(t, signOptions{}, testSettlementReceipt())

	tests := []struct {
		name  string
		input ReceiptValidationInput
		valid bool
		check func(t *testing.T, r *ReceiptValidationResult)
	}{
		{
			name:  "no expectations",
			input: ReceiptValidationInput{},
			valid: true,
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.Enclave)
				check.True(t, hasDetail(r, "signer key not pinned"))
			},
		},
		{
			name: "matching expectations and pinned key",
			input: ReceiptValidationInput{
				AuctionID:           1,
				Winner:              addr("0xbob"),
				Amount:              amount("1.80"),
				TrustedSignerKeyPEM: signer.publicKeyPEM(t),
			},
			valid: true,
		},
		{
			name:  "wrong auction",
			input: ReceiptValidationInput{AuctionID: 2},
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.AuctionValid)
				check.True(t, r.SignatureValid)
			},
		},
		{
			name:  "expected no sale",
			input: ReceiptValidationInput{Winner: addr("")},
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.WinnerValid)
				check.True(t, hasDetail(r, "expected none, receipt has 0xbob"))
			},
		},
		{
			name:  "wrong amount",
			input: ReceiptValidationInput{Amount: amount("1.7")},
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.AmountValid)
			},
		},
		{
			name:  "different pinned key",
			input: ReceiptValidationInput{TrustedSignerKeyPEM: newSelfSigned(t).publicKeyPEM(t)},
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.CertificateValid)
				check.True(t, r.SignatureValid)
			},
		},
		{
			name:  "enclave required",
			input: ReceiptValidationInput{RequireEnclave: true},
			check: func(t *testing.T, r *ReceiptValidationResult) {
				check.False(t, r.PCRsValid)
				check.False(t, r.CertificateValid)
				check.True(t, hasDetail(r, "enclave receipt required"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			input.ReceiptCOSE = coseBytes
			result, err := ValidateReceipt(&input)
			assert.NoError(t, err)
			check.Equal(t, tt.valid, result.IsValid())
			check.Equal(t, core.AuctionID(1), result.Receipt.AuctionID)
			if tt.check != nil {
				tt.check(t, result)
			}
		})
	}
}

func TestValidateReceipt_TamperedPayload(t *testing.T) {
	signer := newSelfSigned(t)
	original := signer.sign(t, signOptions{}, testSettlementReceipt())
	msg, err := parsing.DecodeCOSESign1(original)
	assert.NoError(t, err)

	// Re-sign a different receipt, then splice in the original signature.
	forged := testSettlementReceipt()
	forged.Winner = "0xmallory"
	other, err := parsing.DecodeCOSESign1(signer.sign(t, signOptions{}, forged))
	assert.NoError(t, err)
	spliced, err := parsing.EncodeCOSESign1(other.Protected, other.Payload, msg.Signature)
	assert.NoError(t, err)

	result, err := ValidateReceipt(&ReceiptValidationInput{ReceiptCOSE: marketapi.ReceiptCOSE(spliced)})
	assert.NoError(t, err)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())
	check.Equal(t, core.Address("0xmallory"), result.Receipt.Winner)
}

func TestValidateReceipt_Enclave(t *testing.T) {
	root, leaf := newCAChain(t)
	pcrs := map[uint64][]byte{
		0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
		1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
		2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
	}
	coseBytes := leaf.sign(t, signOptions{
		moduleID: "i-0123456789abcdef0-enc0123456789abcdef",
		pcrs:     pcrs,
		cabundle: [][]byte{root.cert.Raw},
	}, testSettlementReceipt())

	t.Run("known PCRs, untrusted root", func(t *testing.T) {
		result, err := ValidateReceipt(&ReceiptValidationInput{ReceiptCOSE: coseBytes, RequireEnclave: true})
		assert.NoError(t, err)
		check.True(t, result.Enclave)
		check.True(t, result.PCRsValid)
		check.True(t, result.SignatureValid)
		// The test root is not the Nitro root.
		check.False(t, result.CertificateValid)
		check.False(t, result.IsValid())
		check.True(t, hasDetail(result, "Matched PCR set: #0"))
	})

	t.Run("unknown PCRs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pcrs.json")
		data := `{"pcr_sets":[{"pcr0":"aa","pcr1":"bb","pcr2":"cc","commit_hash":"abc123"}]}`
		assert.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		result, err := ValidateReceipt(&ReceiptValidationInput{ReceiptCOSE: coseBytes, PCRConfigPath: path})
		assert.NoError(t, err)
		check.False(t, result.PCRsValid)
		check.True(t, hasDetail(result, "(no match)"))
	})

	t.Run("missing PCR config", func(t *testing.T) {
		_, err := ValidateReceipt(&ReceiptValidationInput{
			ReceiptCOSE:   coseBytes,
			PCRConfigPath: filepath.Join(t.TempDir(), "missing.json"),
		})
		check.Error(t, err)
	})
}

func TestValidateReceipt_Malformed(t *testing.T) {
	_, err := ValidateReceipt(&ReceiptValidationInput{ReceiptCOSE: marketapi.ReceiptCOSE("not cbor")})
	check.Error(t, err)
}

func TestValidateChain(t *testing.T) {
	root, leaf := newCAChain(t)
	roots := x509Pool(root)
	bundle := []string{base64.StdEncoding.EncodeToString(root.cert.Raw)}

	check.NoError(t, validateChain(leaf.certB64(), bundle, roots, signedAt))
	check.NoError(t, validateChain(leaf.certB64(), nil, roots, signedAt))

	// Leaf expired three hours after signing.
	check.Error(t, validateChain(leaf.certB64(), bundle, roots, signedAt.Add(4*time.Hour)))

	// Self-signed leaf does not chain to the root.
	check.Error(t, validateChain(newSelfSigned(t).certB64(), bundle, roots, signedAt))

	check.Error(t, validateChain("!!!", nil, roots, signedAt))
	check.Error(t, validateChain(leaf.certB64(), []string{"!!!"}, roots, signedAt))
}

func TestValidateCertificateChain_RejectsNonNitro(t *testing.T) {
	root, leaf := newCAChain(t)
	bundle := []string{root.certB64()}
	err := ValidateCertificateChain(leaf.certB64(), bundle, signedAt)
	assert.Error(t, err)
	check.True(t, strings.Contains(err.Error(), "certificate chain validation failed"))
}

func TestValidateLocalCertificate(t *testing.T) {
	signer := newSelfSigned(t)

	check.NoError(t, ValidateLocalCertificate(signer.certB64(), signedAt, ""))
	check.NoError(t, ValidateLocalCertificate(signer.certB64(), signedAt, signer.publicKeyPEM(t)))

	check.Error(t, ValidateLocalCertificate(signer.certB64(), signedAt.Add(-2*time.Hour), ""))
	check.Error(t, ValidateLocalCertificate(signer.certB64(), signedAt, "not pem"))
	check.Error(t, ValidateLocalCertificate(signer.certB64(), signedAt, newSelfSigned(t).publicKeyPEM(t)))

	_, leaf := newCAChain(t)
	check.Error(t, ValidateLocalCertificate(leaf.certB64(), signedAt, ""))
}
