package main

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestNewKeyManager(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)
	assert.NotNil(t, km)
	assert.NotNil(t, km.privateKey)
	assert.NotNil(t, km.PublicKey)
	assert.NotNil(t, km.Certificate)

	check.Equal(t, "marketd receipt signer", km.Certificate.Subject.CommonName)
	check.NoError(t, km.Certificate.CheckSignature(km.Certificate.SignatureAlgorithm, km.Certificate.RawTBSCertificate, km.Certificate.Signature))
}

func TestKeyManager_PublicKeyPEM(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	pemStr, err := km.PublicKeyPEM()
	assert.NoError(t, err)
	assert.NotEqual(t, pemStr, "")

	assert.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(pemStr), "-----END PUBLIC KEY-----"))

	block, _ := pem.Decode([]byte(pemStr))
	assert.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)

	_, err = x509.ParsePKIXPublicKey(block.Bytes)
	assert.NoError(t, err)
}

func TestKeyManager_UniqueKeys(t *testing.T) {
	km1, _ := NewKeyManager()
	km2, _ := NewKeyManager()

	pem1, _ := km1.PublicKeyPEM()
	pem2, _ := km2.PublicKeyPEM()
	assert.NotEqual(t, pem1, pem2)
}

func TestLoadOrCreateKeyManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt-key.pem")

	created, err := LoadOrCreateKeyManager(path)
	assert.NoError(t, err)

	info, err := os.Stat(path)
	assert.NoError(t, err)
	check.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadOrCreateKeyManager(path)
	assert.NoError(t, err)
	check.True(t, created.PublicKey.Equal(loaded.PublicKey))

	// Same key, fresh certificate.
	check.NotEqual(t, created.Certificate.SerialNumber.String(), loaded.Certificate.SerialNumber.String())
}

func TestLoadOrCreateKeyManager_Invalid(t *testing.T) {
	dir := t.TempDir()

	notPEM := filepath.Join(dir, "garbage.pem")
	assert.NoError(t, os.WriteFile(notPEM, []byte("not a key"), 0o600))
	_, err := LoadOrCreateKeyManager(notPEM)
	check.Error(t, err)

	wrongType := filepath.Join(dir, "cert.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})
	assert.NoError(t, os.WriteFile(wrongType, data, 0o600))
	_, err = LoadOrCreateKeyManager(wrongType)
	check.Error(t, err)
}

func TestLoadOrCreateKeyManager_Ephemeral(t *testing.T) {
	km1, err := LoadOrCreateKeyManager("")
	assert.NoError(t, err)
	km2, err := LoadOrCreateKeyManager("")
	assert.NoError(t, err)
	check.False(t, km1.PublicKey.Equal(km2.PublicKey))
}
