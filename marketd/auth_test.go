package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

func newAccountKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NoError(t, err)
	return key
}

func newSigner(t *testing.T, account core.Address, key *ecdsa.PrivateKey) *marketapi.RequestSigner {
	t.Helper()
	signer, err := marketapi.NewRequestSigner(account, key)
	assert.NoError(t, err)
	return signer
}

func publicKeyPEM(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	assert.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// signedPost sends body with the signature headers of signer at the given
// time and returns the HTTP status and raw response.
func signedPost(t *testing.T, ts *httptest.Server, signer *marketapi.RequestSigner, body []byte, at time.Time) (int, []byte) {
	t.Helper()
	signature, signedAt, err := signer.Sign(body, at)
	assert.NoError(t, err)
	return postWithSignature(t, ts, body, signature, signedAt)
}

func postWithSignature(t *testing.T, ts *httptest.Server, body []byte, signature, signedAt string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+rpcPath, bytes.NewReader(body))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(marketapi.SignatureHeader, signature)
	req.Header.Set(marketapi.SignedAtHeader, signedAt)

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	return resp.StatusCode, raw
}

// newProductionServer runs a node with every development switch off and the
// given account keys registered.
func newProductionServer(t *testing.T, keys map[core.Address]*ecdsa.PrivateKey) (*Node, *httptest.Server) {
	t.Helper()
	cfg := newTestConfig()
	cfg.DevFaucet = false
	cfg.DevClock = false
	cfg.DevAccounts = false
	cfg.AccountKeys = make(map[core.Address]*ecdsa.PublicKey, len(keys))
	for account, key := range keys {
		cfg.AccountKeys[account] = &key.PublicKey
	}
	return newTestServer(t, cfg)
}

func TestAuth_UnsignedOwnerCallsRejected(t *testing.T) {
	ownerKey := newAccountKey(t)
	_, ts := newProductionServer(t, map[core.Address]*ecdsa.PrivateKey{testOwner: ownerKey})

	var empty marketapi.EmptyReply
	err := rpcCall(t, ts, "market.SetPlatformFee", &marketapi.SetPlatformFeeArgs{Caller: testOwner, FeeBps: 1000}, &empty)
	check.Equal(t, "Unauthenticated", errorCode(err))

	var withdrawn marketapi.AmountReply
	err = rpcCall(t, ts, "donation.Withdraw", &marketapi.CallerArgs{Caller: testOwner}, &withdrawn)
	check.Equal(t, "Unauthenticated", errorCode(err))

	// Reads stay open.
	var fees marketapi.PlatformFeeReply
	assert.NoError(t, rpcCall(t, ts, "market.GetPlatformFee", &marketapi.EmptyArgs{}, &fees))
	check.Equal(t, core.DefaultPlatformFeeBps, fees.FeeBps)
}

func TestAuth_SignedCalls(t *testing.T) {
	ownerKey := newAccountKey(t)
	aliceKey := newAccountKey(t)
	_, ts := newProductionServer(t, map[core.Address]*ecdsa.PrivateKey{
		testOwner: ownerKey,
		testAlice: aliceKey,
	})
	owner := newSigner(t, testOwner, ownerKey)
	alice := newSigner(t, testAlice, aliceKey)
	now := time.Now()

	feeBody := func(caller core.Address, bps uint32) []byte {
		body, err := json2.EncodeClientRequest("market.SetPlatformFee", &marketapi.SetPlatformFeeArgs{Caller: caller, FeeBps: bps})
		assert.NoError(t, err)
		return body
	}
	platformFee := func() uint32 {
		var fees marketapi.PlatformFeeReply
		assert.NoError(t, rpcCall(t, ts, "market.GetPlatformFee", &marketapi.EmptyArgs{}, &fees))
		return fees.FeeBps
	}

	t.Run("owner signed", func(t *testing.T) {
		status, raw := signedPost(t, ts, owner, feeBody(testOwner, 1000), now)
		check.Equal(t, http.StatusOK, status)
		var empty marketapi.EmptyReply
		assert.NoError(t, json2.DecodeClientResponse(bytes.NewReader(raw), &empty))
		check.Equal(t, uint32(1000), platformFee())
	})

	t.Run("caller field omitted", func(t *testing.T) {
		status, raw := signedPost(t, ts, owner, feeBody("", 900), now.Add(time.Second))
		check.Equal(t, http.StatusOK, status)
		var empty marketapi.EmptyReply
		assert.NoError(t, json2.DecodeClientResponse(bytes.NewReader(raw), &empty))
		check.Equal(t, uint32(900), platformFee())
	})

	t.Run("signer names another caller", func(t *testing.T) {
		status, raw := signedPost(t, ts, alice, feeBody(testOwner, 50), now)
		check.Equal(t, http.StatusOK, status)
		var empty marketapi.EmptyReply
		err := json2.DecodeClientResponse(bytes.NewReader(raw), &empty)
		check.Equal(t, "Unauthorized", errorCode(err))
		check.Equal(t, uint32(900), platformFee())
	})

	t.Run("signed by non-owner", func(t *testing.T) {
		status, raw := signedPost(t, ts, alice, feeBody(testAlice, 50), now)
		check.Equal(t, http.StatusOK, status)
		var empty marketapi.EmptyReply
		err := json2.DecodeClientResponse(bytes.NewReader(raw), &empty)
		check.Equal(t, "Unauthorized", errorCode(err))
	})

	t.Run("replayed signature", func(t *testing.T) {
		body := feeBody(testOwner, 700)
		signature, signedAt, err := owner.Sign(body, now.Add(2*time.Second))
		assert.NoError(t, err)

		status, _ := postWithSignature(t, ts, body, signature, signedAt)
		check.Equal(t, http.StatusOK, status)
		status, _ = postWithSignature(t, ts, body, signature, signedAt)
		check.Equal(t, http.StatusUnauthorized, status)
		check.Equal(t, uint32(700), platformFee())
	})

	t.Run("body altered after signing", func(t *testing.T) {
		signature, signedAt, err := owner.Sign(feeBody(testOwner, 100), now.Add(3*time.Second))
		assert.NoError(t, err)
		status, _ := postWithSignature(t, ts, feeBody(testOwner, 0), signature, signedAt)
		check.Equal(t, http.StatusUnauthorized, status)
		check.Equal(t, uint32(700), platformFee())
	})

	t.Run("stale signature", func(t *testing.T) {
		status, _ := signedPost(t, ts, owner, feeBody(testOwner, 100), now.Add(-signatureMaxSkew-time.Minute))
		check.Equal(t, http.StatusUnauthorized, status)
		status, _ = signedPost(t, ts, owner, feeBody(testOwner, 100), now.Add(signatureMaxSkew+time.Minute))
		check.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("unregistered signer", func(t *testing.T) {
		mallory := newSigner(t, "0xmallory", newAccountKey(t))
		status, _ := signedPost(t, ts, mallory, feeBody("0xmallory", 100), now)
		check.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("dev calls stay gated", func(t *testing.T) {
		body, err := json2.EncodeClientRequest("ledger.Fund", &marketapi.FundArgs{Account: testOwner, Amount: dec("1")})
		assert.NoError(t, err)
		status, raw := signedPost(t, ts, owner, body, now.Add(4*time.Second))
		check.Equal(t, http.StatusOK, status)
		var bal marketapi.BalanceReply
		err = json2.DecodeClientResponse(bytes.NewReader(raw), &bal)
		check.Equal(t, "DevOnly", errorCode(err))
	})

	check.Equal(t, uint32(700), platformFee())
}

func TestRequestAuth_ForgetsExpiredSignatures(t *testing.T) {
	key := newAccountKey(t)
	auth := newRequestAuth(map[core.Address]*ecdsa.PublicKey{testAlice: &key.PublicKey})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	body := []byte(`{"method":"ledger.TransferToken"}`)
	signature, signedAt, err := newSigner(t, testAlice, key).Sign(body, now)
	assert.NoError(t, err)

	account, err := auth.verify(body, signature, signedAt)
	assert.NoError(t, err)
	check.Equal(t, testAlice, account)
	_, err = auth.verify(body, signature, signedAt)
	check.Equal(t, errReplayedSignature, err, cmpopts.EquateErrors())

	now = now.Add(2 * signatureMaxSkew)
	_, err = auth.verify(body, signature, signedAt)
	check.Equal(t, errStaleSignature, err, cmpopts.EquateErrors())

	fresh, freshAt, err := newSigner(t, testAlice, key).Sign(body, now)
	assert.NoError(t, err)
	_, err = auth.verify(body, fresh, freshAt)
	assert.NoError(t, err)
	check.Equal(t, 1, len(auth.seen))
}

func TestNodeCaller(t *testing.T) {
	node := newTestNode(t, newTestConfig())
	signed := httptest.NewRequest(http.MethodPost, rpcPath, nil)
	signed = signed.WithContext(withAccount(signed.Context(), testAlice))
	unsigned := httptest.NewRequest(http.MethodPost, rpcPath, nil)

	caller, err := node.caller(signed, "")
	assert.NoError(t, err)
	check.Equal(t, testAlice, caller)

	_, err = node.caller(signed, testBob)
	check.Equal(t, "Unauthorized", marketapi.ErrorCode(err))

	caller, err = node.caller(unsigned, testBob)
	assert.NoError(t, err)
	check.Equal(t, testBob, caller)

	_, err = node.caller(unsigned, "")
	check.Equal(t, "Unauthenticated", marketapi.ErrorCode(err))

	node.cfg.DevAccounts = false
	_, err = node.caller(unsigned, testBob)
	check.Equal(t, "Unauthenticated", marketapi.ErrorCode(err))
}

func TestLoadAccountKeys(t *testing.T) {
	key := newAccountKey(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "accounts.json")
	data, err := json.Marshal(map[core.Address]string{testOwner: publicKeyPEM(t, key)})
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(path, data, 0o600))

	keys, err := loadAccountKeys(path)
	assert.NoError(t, err)
	check.Equal(t, 1, len(keys))
	check.True(t, keys[testOwner].Equal(&key.PublicKey))

	v, err := getViper([]string{"--accounts-file", path})
	assert.NoError(t, err)
	cfg, err := loadConfig(v)
	assert.NoError(t, err)
	check.True(t, cfg.AccountKeys[testOwner].Equal(&key.PublicKey))

	bad := filepath.Join(dir, "bad.json")
	assert.NoError(t, os.WriteFile(bad, []byte(`{"0xowner":"not a key"}`), 0o600))
	_, err = loadAccountKeys(bad)
	check.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(empty, []byte(`{"":"x"}`), 0o600))
	_, err = loadAccountKeys(empty)
	check.Error(t, err)

	_, err = loadAccountKeys(filepath.Join(dir, "missing.json"))
	check.Error(t, err)
}
