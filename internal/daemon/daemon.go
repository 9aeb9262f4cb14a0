package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorum-sim/generals/internal/quorum"
	"github.com/quorum-sim/generals/internal/rpc"
)

// Peer is the runtime of one general: its quorum state and the HTTP
// server the rest of the quorum reaches it on.
type Peer struct {
	Config Config
	Node   *quorum.Node
	Server *rpc.Server
	Log    zerolog.Logger

	closeLog func() error
	cancel   context.CancelFunc
}

// NewPeer wires a general with the given id. primary is the id the
// launcher designated; the general starts with no neighbours and waits
// for the primary's membership broadcast.
func NewPeer(cfg Config, id, primary int) (*Peer, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid general id %d", id)
	}
	logger, closeLog, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	logger = logger.With().Str("component", "peer").Logger()

	node := quorum.NewNode(quorum.Config{
		ID:      id,
		Primary: primary,
		Book:    cfg.Book(),
		Client:  rpc.NewClient(cfg.CallTimeout()),
		Logger:  logger,
	})

	srv := rpc.NewServer(node, logger.With().Int("peer", id).Logger(), cfg.CommandTimeout())
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Peer{
		Config:   cfg,
		Node:     node,
		Server:   srv,
		Log:      logger,
		closeLog: closeLog,
	}, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (p *Peer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	addr := p.Node.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:      p.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: p.Config.CommandTimeout() + 5*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			p.Log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	p.Log.Info().
		Int("peer", p.Node.ID()).
		Int("primary", p.Node.PrimaryID()).
		Str("addr", addr).
		Msg("general serving")

	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all peer resources.
func (p *Peer) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.closeLog != nil {
		_ = p.closeLog()
	}
}
