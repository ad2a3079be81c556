package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/rpc/v2/json2"
	log "github.com/inconshreveable/log15"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/ledger"
	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

const (
	testOwner  core.Address = "0xdeployer"
	testSeller core.Address = "0xseller"
	testAlice  core.Address = "0xalice"
	testBob    core.Address = "0xbob"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// CreateMockEnclave returns an attester that wraps the user data in an
// NSM-shaped COSE_Sign1 document with fixed PCRs and a dummy signature.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			payload, err := cbor.Marshal(parsing.ReceiptDocument{
				ModuleID:  "i-0123456789abcdef0-enc0123456789abcdef",
				Digest:    "SHA384",
				Timestamp: 1_700_000_000_000,
				PCRs: map[uint64][]byte{
					0: bytes.Repeat([]byte{0x3b}, 48),
					1: bytes.Repeat([]byte{0x4b}, 48),
					2: bytes.Repeat([]byte{0x2b}, 48),
				},
				Certificate: []byte("test-certificate-data"),
				CABundle:    [][]byte{[]byte("test-ca-cert")},
				PublicKey:   []byte("test-public-key-data"),
				UserData:    options.UserData,
				Nonce:       options.Nonce,
			})
			if err != nil {
				return nil, err
			}
			return parsing.EncodeCOSESign1([]byte{0xa1, 0x01, 0x38, 0x22}, payload, []byte{0x04, 0x05, 0x06})
		},
	}
}

func newTestConfig() *Config {
	return &Config{
		Listen:         "tcp:127.0.0.1:0",
		MaxWorkers:     4,
		Owner:          testOwner,
		MarketAddress:  "0xauctionmarket",
		PlatformFeeBps: core.DefaultPlatformFeeBps,
		ReceiptSigner:  signerLocal,
		NativeUSDPrice: decimal.RequireFromString("2000"),
		TokenUSDPrice:  decimal.RequireFromString("0.5"),
		DevFaucet:      true,
		DevClock:       true,
		DevAccounts:    true,
		Network:        "test",
		LogLevel:       log.LvlInfo,
		LogFormat:      "terminal",
		TokenSupply:    ledger.DefaultTokenSupply,
		NFTBaseURI:     "https://api.example.com/token/",
	}
}

func discardLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func newTestNode(t *testing.T, cfg *Config) *Node {
	t.Helper()
	signer, err := newReceiptSigner(cfg)
	assert.NoError(t, err)
	node, err := NewNode(cfg, signer, discardLogger())
	assert.NoError(t, err)
	return node
}

// newTestServer starts an httptest server in front of a fresh node.
func newTestServer(t *testing.T, cfg *Config) (*Node, *httptest.Server) {
	t.Helper()
	node := newTestNode(t, cfg)
	server, err := NewServer(node, cfg.MaxWorkers, discardLogger())
	assert.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return node, ts
}

// rpcCall performs one JSON-RPC 2.0 call and decodes the reply.
func rpcCall(t *testing.T, ts *httptest.Server, method string, args, reply any) error {
	t.Helper()
	body, err := json2.EncodeClientRequest(method, args)
	assert.NoError(t, err)

	resp, err := http.Post(ts.URL+rpcPath, "application/json", bytes.NewReader(body))
	assert.NoError(t, err)
	defer resp.Body.Close()

	return json2.DecodeClientResponse(resp.Body, reply)
}

// errorCode extracts the wire code carried in a JSON-RPC error.
func errorCode(err error) string {
	var rpcErr *json2.Error
	if !errors.As(err, &rpcErr) {
		return ""
	}
	code, _ := rpcErr.Data.(string)
	return code
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
