package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tokensale/core"
	"tokensale/crypto"
	"tokensale/observability"
	"tokensale/observability/logging"
	"tokensale/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeSaleInactive   = -32030
	codeSaleLimit      = -32031
	codeSaleConflict   = -32032
)

// ServerConfig controls the HTTP surface of the JSON-RPC server.
type ServerConfig struct {
	// JWTSecret signs bearer tokens for state-changing methods. Mutating
	// methods are refused when empty.
	JWTSecret string
	JWTIssuer string

	RateLimit           middleware.RateLimit
	MaxRequestBodyBytes int64
	ReadHeaderTimeout   time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	LogRequests         bool
}

type Server struct {
	node   *core.Node
	cfg    ServerConfig
	auth   *middleware.Authenticator
	obs    *middleware.Observability
	logger *slog.Logger
	tracer trace.Tracer
	router chi.Router
}

func NewServer(node *core.Node, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = maxRequestBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	s := &Server{
		node:   node,
		cfg:    cfg,
		auth:   middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
		obs:    middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: cfg.LogRequests}, logger),
		logger: logger.With(slog.String("component", "rpc")),
		tracer: otel.Tracer("tokensale/rpc"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	limiter := middleware.NewRateLimiter(s.cfg.RateLimit)
	limiter.OnThrottle(func(client string) {
		observability.RPC().RecordThrottle("rate_limit")
		s.logger.Warn("rpc request throttled", slog.String("client", client))
	})

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, s.obs.Registry()}
	r.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	r.With(s.obs.Middleware("rpc"), limiter.Middleware).Post("/", s.handle)
	r.With(limiter.Middleware).Get("/ws", s.handleEventsWS)
	return r
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "sale-rpc")
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.logger.Info("starting JSON-RPC server", slog.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(s *Server, w http.ResponseWriter, r *http.Request, req *RPCRequest)

type method struct {
	handler handlerFunc
	// authorized methods require a bearer token whose subject matches the
	// caller named in the params.
	authorized bool
}

var methods = map[string]method{
	"sale_status":              {handler: (*Server).handleSaleStatus},
	"sale_rate":                {handler: (*Server).handleSaleRate},
	"sale_isWhitelisted":       {handler: (*Server).handleSaleIsWhitelisted},
	"sale_events":              {handler: (*Server).handleSaleEvents},
	"token_balanceOf":          {handler: (*Server).handleTokenBalanceOf},
	"sale_buyTokens":           {handler: (*Server).handleSaleBuyTokens, authorized: true},
	"sale_contribute":          {handler: (*Server).handleSaleContribute, authorized: true},
	"sale_setWallet":           {handler: (*Server).handleSaleSetWallet, authorized: true},
	"sale_addToWhitelist":      {handler: (*Server).handleSaleAddToWhitelist, authorized: true},
	"sale_setBuyerRate":        {handler: (*Server).handleSaleSetBuyerRate, authorized: true},
	"sale_finalize":            {handler: (*Server).handleSaleFinalize, authorized: true},
	"sale_beginContinuousSale": {handler: (*Server).handleSaleBeginContinuous, authorized: true},
	"sale_setRate":             {handler: (*Server).handleSaleSetRate, authorized: true},
	"sale_pauseToken":          {handler: (*Server).handleSalePauseToken, authorized: true},
	"sale_unpauseToken":        {handler: (*Server).handleSaleUnpauseToken, authorized: true},
	"sale_transferOwnership":   {handler: (*Server).handleSaleTransferOwnership, authorized: true},
	"token_transfer":           {handler: (*Server).handleTokenTransfer, authorized: true},
	"token_burn":               {handler: (*Server).handleTokenBurn, authorized: true},
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	entry, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), req.Method, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", req.Method),
	))
	defer span.End()
	r = r.WithContext(ctx)

	recorder := &codeRecorder{ResponseWriter: w}
	start := time.Now()
	if entry.authorized {
		if authErr := s.requireCaller(r, req); authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			s.finish(ctx, span, req.Method, codeUnauthorized, start)
			return
		}
	}
	entry.handler(s, recorder, r, req)
	s.finish(ctx, span, req.Method, recorder.code, start)
}

func (s *Server) finish(ctx context.Context, span trace.Span, method string, code int, start time.Time) {
	observability.RPC().Observe(method, code, time.Since(start))
	if code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("rpc error %d", code))
		s.logger.Debug("rpc call failed",
			slog.String("method", method),
			slog.Int("code", code),
			slog.String("requestid", middleware.RequestID(ctx)))
	}
}

// requireCaller validates the bearer token and checks that its subject is the
// caller named in the first parameter object.
func (s *Server) requireCaller(r *http.Request, req *RPCRequest) *RPCError {
	if !s.auth.Enabled() {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication secret not configured"}
	}
	header := r.Header.Get("Authorization")
	subject, err := s.auth.Subject(header)
	if err != nil {
		attr := logging.MaskField("authorization", header)
		s.logger.Warn("rpc authentication failed", slog.String("method", req.Method), attr, slog.Any("error", err))
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	caller, err := callerOf(req)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	subjectAddr, err := crypto.ParseAddress(subject)
	if err != nil || subjectAddr != caller {
		return &RPCError{Code: codeUnauthorized, Message: "token subject does not match caller"}
	}
	return nil
}

func callerOf(req *RPCRequest) ([20]byte, error) {
	if len(req.Params) != 1 {
		return [20]byte{}, errors.New("parameter object required")
	}
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		return [20]byte{}, errors.New("invalid parameter object")
	}
	if strings.TrimSpace(payload.Caller) == "" {
		return [20]byte{}, errors.New("caller required")
	}
	addr, err := crypto.ParseAddress(payload.Caller)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid caller: %v", err)
	}
	return addr, nil
}

// codeRecorder captures the JSON-RPC error code written by a handler.
type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (c *codeRecorder) Write(p []byte) (int, error) {
	if c.code == 0 && bytes.Contains(p, []byte(`"error":`)) {
		var resp struct {
			Error *RPCError `json:"error"`
		}
		if err := json.Unmarshal(p, &resp); err == nil && resp.Error != nil {
			c.code = resp.Error.Code
		}
	}
	return c.ResponseWriter.Write(p)
}
