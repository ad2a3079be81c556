package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"time"
)

const receiptCertValidity = 365 * 24 * time.Hour

// KeyManager holds the node's P-384 receipt signing key and the self-signed
// certificate published inside every locally signed receipt.
type KeyManager struct {
	privateKey  *ecdsa.PrivateKey // Keep private - sensitive!
	PublicKey   *ecdsa.PublicKey
	Certificate *x509.Certificate
}

// NewKeyManager generates a fresh P-384 key pair
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return newKeyManager(privateKey)
}

// LoadOrCreateKeyManager reads an EC private key from path, or generates one
// and writes it there (mode 0600) when the file does not exist.
// An empty path always generates an ephemeral key.
func LoadOrCreateKeyManager(path string) (*KeyManager, error) {
	if path == "" {
		return NewKeyManager()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		km, err := NewKeyManager()
		if err != nil {
			return nil, err
		}
		if err := km.writePrivateKey(path); err != nil {
			return nil, err
		}
		return km, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("receipt key %s is not a PEM EC PRIVATE KEY", path)
	}
	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt key: %w", err)
	}
	if privateKey.Curve != elliptic.P384() {
		return nil, fmt.Errorf("receipt key must be P-384, got %s", privateKey.Curve.Params().Name)
	}
	return newKeyManager(privateKey)
}

func newKeyManager(privateKey *ecdsa.PrivateKey) (*KeyManager, error) {
	cert, err := selfSignedCertificate(privateKey)
	if err != nil {
		return nil, err
	}
	return &KeyManager{
		privateKey:  privateKey,
		PublicKey:   &privateKey.PublicKey,
		Certificate: cert,
	}, nil
}

func selfSignedCertificate(privateKey *ecdsa.PrivateKey) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate serial: %w", err)
	}

	now := time.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "marketd receipt signer"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(receiptCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create receipt certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func (km *KeyManager) writePrivateKey(path string) error {
	der, err := x509.MarshalECPrivateKey(km.privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write receipt key: %w", err)
	}
	return nil
}

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}
