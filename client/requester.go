package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/cloudx-io/nftmarket/marketapi"
)

// DefaultTimeout bounds a single request when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrNodeBusy is returned when the node's worker pool is full.
var ErrNodeBusy = errors.New("node busy: no workers available")

// Error is a rejection reported by the node. It unwraps to the matching
// sentinel (core, ledger, donation or marketapi) so callers can use errors.Is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return marketapi.ErrorForCode(e.Code) }

// ErrorCode returns the wire code carried by err, or "".
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// EndpointRequester sends JSON-RPC 2.0 requests to one endpoint.
type EndpointRequester interface {
	SendRequest(ctx context.Context, method string, args, reply any) error
}

type requester struct {
	uri    string
	http   *http.Client
	signer *marketapi.RequestSigner
}

// Option configures a requester.
type Option func(*requester)

// WithSigner signs every request as the signer's account. Nodes without
// dev-accounts reject unsigned mutating calls.
func WithSigner(signer *marketapi.RequestSigner) Option {
	return func(r *requester) { r.signer = signer }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *requester) { r.http = c }
}

// NewEndpointRequester returns a requester for the node's RPC endpoint. uri
// may be the node root ("http://127.0.0.1:9650") or the full "/rpc" path.
func NewEndpointRequester(uri string, opts ...Option) EndpointRequester {
	uri = strings.TrimSuffix(uri, "/")
	if !strings.HasSuffix(uri, "/rpc") {
		uri += "/rpc"
	}
	r := &requester{uri: uri, http: &http.Client{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *requester) SendRequest(ctx context.Context, method string, args, reply any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.signer != nil {
		signature, signedAt, err := r.signer.Sign(body, time.Now())
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		req.Header.Set(marketapi.SignatureHeader, signature)
		req.Header.Set(marketapi.SignedAtHeader, signedAt)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%s: %w", method, ErrNodeBusy)
	case http.StatusUnauthorized:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{Code: marketapi.ErrorCode(marketapi.ErrUnauthenticated), Message: strings.TrimSpace(string(msg))}
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			code, _ := rpcErr.Data.(string)
			return &Error{Code: code, Message: rpcErr.Message}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
