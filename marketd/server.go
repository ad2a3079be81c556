package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	log "github.com/inconshreveable/log15"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/nftmarket/marketapi"
)

const (
	// Version is reported by --version and /health.
	Version = "v0.3.0"

	rpcPath           = "/rpc"
	healthPath        = "/health"
	requestIDHeader   = "X-Request-Id"
	readHeaderTimeout = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server serves the node's JSON-RPC services over HTTP.
type Server struct {
	node    *Node
	handler http.Handler
	log     log.Logger
}

// NewServer registers the market, ledger and donation services and wraps
// them in the worker pool.
func NewServer(node *Node, maxWorkers int, logger log.Logger) (*Server, error) {
	rpcServer := rpc.NewServer()
	codec := json2.NewCodec()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")

	services := []struct {
		svc  any
		name string
	}{
		{&MarketService{node: node}, marketapi.MarketService},
		{&LedgerService{node: node}, marketapi.LedgerService},
		{&DonationService{node: node}, marketapi.DonationService},
	}
	for _, s := range services {
		if err := rpcServer.RegisterService(s.svc, s.name); err != nil {
			return nil, fmt.Errorf("register %s service: %w", s.name, err)
		}
	}

	s := &Server{node: node, log: logger}

	mux := http.NewServeMux()
	mux.Handle(rpcPath, rpcServer)
	mux.HandleFunc(healthPath, s.handleHealth)

	s.handler = s.workerPool(s.recoverPanics(s.authenticate(mux)), maxWorkers)
	logger.Info("worker pool initialized", "maxWorkers", maxWorkers)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// workerPool bounds concurrent requests. A request that finds no free
// worker is rejected immediately with 503.
func (s *Server) workerPool(next http.Handler, maxWorkers int) http.Handler {
	semaphore := make(chan struct{}, maxWorkers)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case semaphore <- struct{}{}:
			defer func() { <-semaphore }()
			next.ServeHTTP(w, r)
		default:
			s.log.Info("no workers available, rejecting request (pool full)", "path", r.URL.Path)
			http.Error(w, "no workers available", http.StatusServiceUnavailable)
		}
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered in request handler", "request", id, "panic", rec)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()

		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request served", "request", id, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var height uint64
	var blockTime time.Time
	s.node.host.View(func() {
		height = s.node.host.Height()
		blockTime = s.node.host.Now()
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":       "pong",
		"message":    "market node is healthy",
		"version":    Version,
		"height":     height,
		"block_time": blockTime,
	})
}

// Serve runs the HTTP server on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() { errc <- httpServer.Serve(listener) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// listen opens "tcp:<host:port>" or "vsock:<port>".
func listen(target string) (net.Listener, error) {
	network, addr, ok := strings.Cut(target, ":")
	if !ok {
		return nil, fmt.Errorf("invalid listen address %q (want tcp:<host:port> or vsock:<port>)", target)
	}

	switch network {
	case "tcp":
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return l, nil
	case "vsock":
		port, err := strconv.ParseUint(addr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vsock port %q: %w", addr, err)
		}
		l, err := vsock.Listen(uint32(port), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported listener network %q", network)
	}
}

func run(args []string) error {
	v, err := getViper(args)
	if err != nil {
		return fmt.Errorf("couldn't get config: %w", err)
	}
	if v.GetBool(versionKey) {
		fmt.Printf("marketd@%s\n", Version)
		return nil
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log.Root().SetHandler(cfg.logHandler(os.Stderr))
	logger := log.New("module", "marketd")
	if cfg.DevAccounts {
		logger.Warn("dev-accounts enabled: unsigned requests act as any caller they name")
	} else if len(cfg.AccountKeys) == 0 {
		logger.Warn("no account keys registered; mutating calls will be rejected", "flag", accountsFileKey)
	}

	signer, err := newReceiptSigner(cfg)
	if err != nil {
		return fmt.Errorf("receipt signer %s: %w", cfg.ReceiptSigner, err)
	}

	node, err := NewNode(cfg, signer, logger)
	if err != nil {
		return err
	}
	if cfg.DeploymentFile != "" {
		if err := writeDeployment(cfg.DeploymentFile, node.Deployment()); err != nil {
			return err
		}
		logger.Info("deployment info saved", "file", cfg.DeploymentFile)
	}

	server, err := NewServer(node, cfg.MaxWorkers, logger)
	if err != nil {
		return err
	}

	listener, err := listen(cfg.Listen)
	if err != nil {
		return err
	}
	defer func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("failed to close listener", "err", err)
		}
	}()
	logger.Info("market node listening", "addr", cfg.Listen, "rpc", rpcPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, listener)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Crit("marketd exited", "err", err)
		os.Exit(1)
	}
}
