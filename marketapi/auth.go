package marketapi

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftmarket/core"
)

// Request signature headers. The signature is a base64 COSE_Sign1 over the
// SHA-256 of the raw request body, keyed (kid) by the signing account. The
// signed-at header is bound to the signature as external data.
const (
	SignatureHeader = "X-Market-Signature"
	SignedAtHeader  = "X-Market-Signed-At"
)

// ErrUnauthenticated is returned for mutating calls that are not signed by a
// registered account key.
var ErrUnauthenticated = errors.New("request is not signed by a registered account")

// RequestSigner signs request bodies on behalf of one account with a P-256 key.
type RequestSigner struct {
	account core.Address
	signer  cose.Signer
}

// NewRequestSigner returns a signer acting as account.
func NewRequestSigner(account core.Address, key *ecdsa.PrivateKey) (*RequestSigner, error) {
	if account.IsZero() {
		return nil, fmt.Errorf("request signer: empty account")
	}
	if key == nil || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("request signer: account keys must be P-256")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("request signer: %w", err)
	}
	return &RequestSigner{account: account, signer: signer}, nil
}

// Account returns the address the signer acts as.
func (s *RequestSigner) Account() core.Address { return s.account }

// Sign returns the signature and signed-at header values for body.
func (s *RequestSigner) Sign(body []byte, at time.Time) (signature, signedAt string, err error) {
	signedAt = strconv.FormatInt(at.Unix(), 10)
	digest := sha256.Sum256(body)

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(s.account)
	msg.Payload = digest[:]
	if err := msg.Sign(rand.Reader, []byte(signedAt), s.signer); err != nil {
		return "", "", fmt.Errorf("sign request: %w", err)
	}

	raw, err := msg.MarshalCBOR()
	if err != nil {
		return "", "", fmt.Errorf("encode request signature: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), signedAt, nil
}

// ParseSignedAt decodes the signed-at header (unix seconds).
func ParseSignedAt(signedAt string) (time.Time, error) {
	secs, err := strconv.ParseInt(signedAt, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", SignedAtHeader, signedAt)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// VerifyRequest checks signature over body and returns the signing account.
// keyFor looks up the registered key of an account.
func VerifyRequest(body []byte, signature, signedAt string, keyFor func(core.Address) (*ecdsa.PublicKey, bool)) (core.Address, error) {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("decode request signature: %w", err)
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return "", fmt.Errorf("parse request signature: %w", err)
	}

	kid, ok := msg.Headers.Protected[cose.HeaderLabelKeyID].([]byte)
	if !ok || len(kid) == 0 {
		return "", fmt.Errorf("request signature has no key id")
	}
	account := core.Address(kid)

	key, ok := keyFor(account)
	if !ok {
		return "", fmt.Errorf("%w: no key registered for %s", ErrUnauthenticated, account)
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, key)
	if err != nil {
		return "", fmt.Errorf("key for %s: %w", account, err)
	}
	if err := msg.Verify([]byte(signedAt), verifier); err != nil {
		return "", fmt.Errorf("%w: bad signature for %s", ErrUnauthenticated, account)
	}

	digest := sha256.Sum256(body)
	if !bytes.Equal(msg.Payload, digest[:]) {
		return "", fmt.Errorf("%w: signature does not cover this request", ErrUnauthenticated)
	}
	return account, nil
}

// ParseAccountKey decodes a PEM "PUBLIC KEY" block holding a P-256 key.
func ParseAccountKey(pemData string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("account keys must be P-256 ECDSA")
	}
	return key, nil
}
