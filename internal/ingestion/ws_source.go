package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"attribution-engine/internal/observability"
)

// WSSourceConfig configures the WebSocket collector source.
type WSSourceConfig struct {
	// Endpoint is the collector feed URL (ws:// or wss://).
	Endpoint string
	// Header is sent with every handshake, e.g. Authorization.
	Header http.Header
	// DefaultTenant is used for frames without a tenantId.
	DefaultTenant string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSSourceConfig returns default WebSocket configuration.
func DefaultWSSourceConfig(endpoint string) WSSourceConfig {
	return WSSourceConfig{
		Endpoint:          endpoint,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSource reads touchpoint frames from a collector WebSocket feed and
// reconnects with exponential backoff when the connection drops.
type WSSource struct {
	config WSSourceConfig
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSSource creates a WebSocket source. The connection is opened by Subscribe.
func NewWSSource(cfg WSSourceConfig, logger *slog.Logger) (*WSSource, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("websocket: endpoint required")
	}
	def := DefaultWSSourceConfig(cfg.Endpoint)
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WSSource{
		config: cfg,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Name implements TouchpointSource.
func (s *WSSource) Name() string { return "websocket" }

// Subscribe dials the feed and starts the read and ping loops.
// The initial dial must succeed; later drops are retried until Close or ctx cancellation.
func (s *WSSource) Subscribe(ctx context.Context) (<-chan *Envelope, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("source closed")
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	out := make(chan *Envelope, 256)

	s.wg.Add(1)
	go s.readLoop(ctx, out)

	s.wg.Add(1)
	go s.pingLoop(ctx)

	return out, nil
}

// connect establishes WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.config.Endpoint, s.config.Header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// readLoop reads frames and emits envelopes, reconnecting on read errors.
func (s *WSSource) readLoop(ctx context.Context, out chan<- *Envelope) {
	defer s.wg.Done()
	defer close(out)

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect(ctx, &reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}
			s.logger.Warn("websocket read failed, reconnecting", "error", err, "delay", reconnectDelay)

			s.connMu.Lock()
			if s.conn == conn {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay
		observability.RecordSourceMessage(s.Name())

		items, err := DecodePayload(message, s.config.DefaultTenant)
		if err != nil {
			observability.RecordIngestError("decode")
			s.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		for _, in := range items {
			select {
			case out <- &Envelope{TenantID: in.TenantID, Input: in, Source: s.Name()}:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// reconnect waits *delay, redials and doubles *delay up to the maximum.
// Returns false when the source is shutting down.
func (s *WSSource) reconnect(ctx context.Context, delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(*delay):
	}

	observability.RecordSourceReconnect(s.Name())

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err := s.connect(dialCtx)
	cancel()
	if err == nil {
		return true
	}

	s.logger.Warn("websocket reconnect failed", "error", err)
	*delay *= 2
	if *delay > s.config.MaxReconnectDelay {
		*delay = s.config.MaxReconnectDelay
	}
	return true
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *WSSource) pingLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			// Unblock readLoop.
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
			}
			s.connMu.Unlock()
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				// A dead connection surfaces as a read error in readLoop.
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
			s.connMu.Unlock()
		}
	}
}

// Close closes the WebSocket connection and waits for the loops to exit.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return nil
}

var _ TouchpointSource = (*WSSource)(nil)
