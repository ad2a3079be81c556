package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

const (
	// signatureMaxSkew bounds how far a signed-at header may drift from the
	// node's wall clock. Signatures are remembered for as long.
	signatureMaxSkew = 5 * time.Minute

	maxSignedBodySize = 1 << 20
)

var (
	errStaleSignature    = errors.New("request signature outside the accepted time window")
	errReplayedSignature = errors.New("request signature already used")
)

// loadAccountKeys reads a JSON object mapping account addresses to PEM
// encoded P-256 public keys.
func loadAccountKeys(path string) (map[core.Address]*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var raw map[core.Address]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	keys := make(map[core.Address]*ecdsa.PublicKey, len(raw))
	for account, pemData := range raw {
		if account.IsZero() {
			return nil, fmt.Errorf("accounts file: empty address")
		}
		key, err := marketapi.ParseAccountKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("accounts file: %s: %w", account, err)
		}
		keys[account] = key
	}
	return keys, nil
}

// requestAuth verifies request signatures against the registered account
// keys and rejects replays inside the skew window.
type requestAuth struct {
	keys map[core.Address]*ecdsa.PublicKey
	now  func() time.Time

	mu   sync.Mutex
	seen map[[sha256.Size]byte]time.Time
}

func newRequestAuth(keys map[core.Address]*ecdsa.PublicKey) *requestAuth {
	return &requestAuth{keys: keys, now: time.Now, seen: make(map[[sha256.Size]byte]time.Time)}
}

func (a *requestAuth) keyFor(account core.Address) (*ecdsa.PublicKey, bool) {
	key, ok := a.keys[account]
	return key, ok
}

func (a *requestAuth) verify(body []byte, signature, signedAt string) (core.Address, error) {
	at, err := marketapi.ParseSignedAt(signedAt)
	if err != nil {
		return "", err
	}
	now := a.now()
	if at.Before(now.Add(-signatureMaxSkew)) || at.After(now.Add(signatureMaxSkew)) {
		return "", errStaleSignature
	}

	account, err := marketapi.VerifyRequest(body, signature, signedAt, a.keyFor)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256([]byte(signature))
	a.mu.Lock()
	defer a.mu.Unlock()
	for d, t := range a.seen {
		if t.Before(now.Add(-signatureMaxSkew)) {
			delete(a.seen, d)
		}
	}
	if _, ok := a.seen[digest]; ok {
		return "", errReplayedSignature
	}
	a.seen[digest] = at
	return account, nil
}

type accountKey struct{}

func withAccount(ctx context.Context, account core.Address) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

func accountFrom(ctx context.Context) (core.Address, bool) {
	account, ok := ctx.Value(accountKey{}).(core.Address)
	return account, ok
}

// authenticate verifies signed requests and attaches the signing account to
// the request context. Unsigned requests pass through unauthenticated; the
// services decide whether they may act.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := r.Header.Get(marketapi.SignatureHeader)
		if signature == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize+1))
		if err != nil {
			http.Error(w, "failed to read request", http.StatusBadRequest)
			return
		}
		if len(body) > maxSignedBodySize {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}

		account, err := s.node.auth.verify(body, signature, r.Header.Get(marketapi.SignedAtHeader))
		if err != nil {
			s.log.Info("rejected request signature", "path", r.URL.Path, "err", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		r = r.WithContext(withAccount(r.Context(), account))
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// caller resolves the account a mutating call acts for. A signed request
// acts for its signer, and a caller field naming anyone else is rejected.
// Unsigned requests are accepted only on dev-accounts nodes, which trust the
// caller field as sent.
func (n *Node) caller(r *http.Request, claimed core.Address) (core.Address, error) {
	if r != nil {
		if account, ok := accountFrom(r.Context()); ok {
			if !claimed.IsZero() && claimed != account {
				return "", fmt.Errorf("%w: request signed by %s names caller %s", core.ErrUnauthorized, account, claimed)
			}
			return account, nil
		}
	}
	if n.cfg.DevAccounts && !claimed.IsZero() {
		return claimed, nil
	}
	return "", marketapi.ErrUnauthenticated
}
