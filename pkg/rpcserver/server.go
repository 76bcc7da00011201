package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/smartcontractkit/solana-txsender/pkg/relay"
)

const (
	// MaxBodyBytes bounds a request body. A base58 transaction at the packet limit is under 2KiB.
	MaxBodyBytes = 64 * 1024

	shutdownTimeout = 5 * time.Second
)

type Sender interface {
	Health(ctx context.Context) string
	SendTransaction(ctx context.Context, encoded string, params relay.SendTransactionParams) (string, error)
	InflightCount() int
}

type HealthReporter interface {
	HealthReport() map[string]error
}

var _ services.Service = (*Server)(nil)

// Server exposes the transaction sender over Solana-compatible JSON-RPC.
type Server struct {
	services.StateMachine
	lggr   logger.SugaredLogger
	addr   string
	sender Sender
	health HealthReporter
	router *gin.Engine

	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

func New(lggr logger.Logger, addr string, sender Sender, health HealthReporter) *Server {
	s := &Server{
		lggr:   logger.Sugared(logger.Named(lggr, "RPCServer")),
		addr:   addr,
		sender: sender,
		health: health,
	}

	rpcServer := jsonrpc.NewServer(
		jsonrpc.WithServerMethodNameFormatter(jsonrpc.NewMethodNameFormatter(false, jsonrpc.LowerFirstCharCase)),
		jsonrpc.WithServerErrors(rpcErrors()),
		jsonrpc.WithMaxRequestSize(MaxBodyBytes),
		jsonrpc.WithTracer(newTracer(s.lggr)),
	)
	rpcServer.Register("Solana", &handler{lggr: s.lggr, sender: sender})

	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)
	router.POST("/", gin.WrapH(rpcServer))
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router = router
	return s
}

func (s *Server) Name() string {
	return s.lggr.Name()
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(_ context.Context) error {
	return s.StartOnce("RPCServer", func() error {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
		s.listener = ln
		s.srv = &http.Server{
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.done = make(chan struct{})

		go func() {
			defer close(s.done)
			if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.lggr.Errorw("rpc server stopped", "err", err)
			}
		}()
		s.lggr.Infow("rpc server listening", "addr", ln.Addr().String())
		return nil
	})
}

func (s *Server) Close() error {
	return s.StopOnce("RPCServer", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.srv.Shutdown(ctx)
		<-s.done
		return err
	})
}

func (s *Server) HealthReport() map[string]error {
	return map[string]error{s.Name(): s.Healthy()}
}

// Addr is the bound listen address, only valid after Start.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.lggr.Debugw("http request", "method", c.Request.Method, "path", c.Request.URL.Path,
		"status", c.Writer.Status(), "elapsed", time.Since(start))
}

type healthResponse struct {
	Services map[string]string `json:"services"`
	Inflight int               `json:"inflight"`
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.HealthReport()
	status := http.StatusOK
	resp := healthResponse{
		Services: make(map[string]string, len(report)),
		Inflight: s.sender.InflightCount(),
	}
	for name, err := range report {
		if err != nil {
			status = http.StatusServiceUnavailable
			resp.Services[name] = err.Error()
			continue
		}
		resp.Services[name] = "ok"
	}
	c.JSON(status, resp)
}
