package receipts

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

var signedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testSigner struct {
	key  *ecdsa.PrivateKey
	cert *x509.Certificate
}

// newSelfSigned returns a P-384 signer with a self-signed certificate valid
// around signedAt.
func newSelfSigned(t *testing.T) *testSigner {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	template := certTemplate("test receipt signer", false)
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	assert.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	assert.NoError(t, err)
	return &testSigner{key: key, cert: cert}
}

// newCAChain returns a root CA and a leaf signer issued by it.
func newCAChain(t *testing.T) (root *testSigner, leaf *testSigner) {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTemplate := certTemplate("test root", true)
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTemplate := certTemplate("test enclave", false)
	leafTemplate.NotAfter = signedAt.Add(3 * time.Hour)
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)
	leafCert, err := x509.ParseCertificate(leafDER)
	assert.NoError(t, err)

	return &testSigner{key: rootKey, cert: rootCert}, &testSigner{key: leafKey, cert: leafCert}
}

func certTemplate(cn string, ca bool) *x509.Certificate {
	serial, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             signedAt.Add(-time.Hour),
		NotAfter:              signedAt.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	if ca {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	return template
}

func (s *testSigner) certB64() string {
	return base64.StdEncoding.EncodeToString(s.cert.Raw)
}

func (s *testSigner) publicKeyPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	assert.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

type signOptions struct {
	moduleID string
	pcrs     map[uint64][]byte
	cabundle [][]byte
}

// sign builds a receipt document the way marketd does and signs it.
func (s *testSigner) sign(t *testing.T, opts signOptions, receipt marketapi.SettlementReceipt) marketapi.ReceiptCOSE {
	t.Helper()
	if opts.moduleID == "" {
		opts.moduleID = marketapi.LocalModuleID
	}
	if opts.pcrs == nil {
		opts.pcrs = map[uint64][]byte{}
	}
	if opts.cabundle == nil {
		opts.cabundle = [][]byte{}
	}

	userData, err := json.Marshal(receipt)
	assert.NoError(t, err)
	publicKey, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	assert.NoError(t, err)

	payload, err := cbor.Marshal(parsing.ReceiptDocument{
		ModuleID:    opts.moduleID,
		Digest:      "SHA384",
		Timestamp:   uint64(signedAt.UnixMilli()),
		PCRs:        opts.pcrs,
		Certificate: s.cert.Raw,
		CABundle:    opts.cabundle,
		PublicKey:   publicKey,
		UserData:    userData,
		Nonce:       []byte("test-nonce"),
	})
	assert.NoError(t, err)

	protected, err := cbor.Marshal(map[int64]int64{1: int64(cose.AlgorithmES384)})
	assert.NoError(t, err)
	toBeSigned, err := parsing.SigStructure(protected, payload)
	assert.NoError(t, err)

	signer, err := cose.NewSigner(cose.AlgorithmES384, s.key)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, toBeSigned)
	assert.NoError(t, err)

	coseBytes, err := parsing.EncodeCOSESign1(protected, payload, signature)
	assert.NoError(t, err)
	return marketapi.ReceiptCOSE(coseBytes)
}

func testSettlementReceipt() marketapi.SettlementReceipt {
	return marketapi.SettlementReceipt{
		Settlement: core.Settlement{
			AuctionID:      1,
			AssetID:        0,
			Seller:         "0xseller",
			Winner:         "0xbob",
			FinalAmount:    decimal.RequireFromString("1.8"),
			Fee:            decimal.RequireFromString("0.045"),
			SellerProceeds: decimal.RequireFromString("1.755"),
			FeeBps:         250,
			Currency:       core.NativeCurrency,
			ReserveMet:     true,
			Refunded:       decimal.Zero,
			SettledAt:      signedAt,
			EventHash:      "5d41402abc4b2a76b9719d911017c592",
		},
		Market:  "0xauctionmarket",
		Network: "test",
		Height:  9,
	}
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	assert.NoError(t, err)
	return b
}

func x509Pool(signers ...*testSigner) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, s := range signers {
		pool.AddCert(s.cert)
	}
	return pool
}
