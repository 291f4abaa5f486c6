package pumpfun

// stream.go: descubrimiento de tokens nuevos vía websocket.
//
// Se suscribe a subscribeNewToken, enriquece cada mint con el MetadataProvider
// y emite DiscoveryEvent. Si la conexión cae, reconecta con backoff
// exponencial (2^n s, máx 30s) hasta MaxReconnects intentos seguidos.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/ports"
)

const (
	defaultURL           = "wss://pumpportal.fun/api/data"
	defaultMaxReconnects = 10
	defaultBaseBackoff   = time.Second
	defaultMaxBackoff    = 30 * time.Second
	defaultConcurrency   = 4
	defaultReadTimeout   = 60 * time.Second
	defaultPingInterval  = 20 * time.Second
	writeTimeout         = 10 * time.Second
	metadataTimeout      = 5 * time.Second
)

// ErrReconnectsExhausted se devuelve cuando se agotan los reintentos.
var ErrReconnectsExhausted = errors.New("pumpfun: max reconnection attempts reached")

// Config configura el stream.
type Config struct {
	URL           string
	MaxReconnects int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	Concurrency   int // fetches de metadata en paralelo
	ReadTimeout   time.Duration
	PingInterval  time.Duration
}

// Stream es la fuente de descubrimiento de pump.fun.
type Stream struct {
	cfg    Config
	meta   ports.MetadataProvider
	dialer *websocket.Dialer
}

// NewStream crea un Stream.
func NewStream(cfg Config, meta ports.MetadataProvider) *Stream {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Stream{cfg: cfg, meta: meta, dialer: websocket.DefaultDialer}
}

// Run bloquea hasta que ctx se cancela o se agotan los reintentos.
func (s *Stream) Run(ctx context.Context, emit func(domain.DiscoveryEvent)) error {
	attempts := 0
	for {
		connected, err := s.session(ctx, emit)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempts = 0
		}
		if attempts >= s.cfg.MaxReconnects {
			return fmt.Errorf("pumpfun.Run: %w: %v", ErrReconnectsExhausted, err)
		}
		attempts++
		delay := s.backoff(attempts)
		slog.Warn("pumpfun: disconnected, reconnecting",
			"err", err,
			"attempt", attempts,
			"delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Stream) backoff(attempt int) time.Duration {
	d := s.cfg.BaseBackoff << attempt
	if d <= 0 || d > s.cfg.MaxBackoff {
		return s.cfg.MaxBackoff
	}
	return d
}

// session mantiene una conexión hasta que falla. connected indica si llegó a
// suscribirse, para resetear el contador de reintentos.
func (s *Stream) session(ctx context.Context, emit func(domain.DiscoveryEvent)) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("pumpfun: subscribed", "url", s.cfg.URL)

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.keepalive(sessCtx, conn)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	defer g.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		launch, ok := parseMessage(data)
		if !ok {
			continue
		}
		g.Go(func() error {
			s.enrich(sessCtx, launch, emit)
			return nil
		})
	}
}

// keepalive manda pings y cierra la conexión cuando ctx termina, lo que
// desbloquea ReadMessage.
func (s *Stream) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				slog.Debug("pumpfun: ping failed", "err", err)
				return
			}
		}
	}
}

func (s *Stream) enrich(ctx context.Context, launch newToken, emit func(domain.DiscoveryEvent)) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	meta, err := s.meta.TokenMetadata(ctx, launch.Mint)
	if err != nil {
		slog.Info("pumpfun: could not fetch token info", "mint", launch.Mint, "err", err)
		return
	}
	if meta.Symbol == "" || meta.Symbol == "UNKNOWN" {
		meta.Symbol = launch.Symbol
	}
	if meta.Name == "" || meta.Name == "Unknown Token" {
		meta.Name = launch.Name
	}
	if !meta.MintRevoked {
		slog.Debug("pumpfun: token has mutable mint authority", "mint", launch.Mint)
	}

	slog.Info("pumpfun: new token",
		"symbol", meta.Symbol,
		"liquidity", fmt.Sprintf("$%.0f", meta.LiquidityUSD),
		"market_cap", fmt.Sprintf("$%.0f", meta.MarketCapUSD),
	)
	emit(domain.DiscoveryEvent{Token: meta, Source: domain.SourcePumpFun, Timestamp: time.Now()})
}

// newToken es el anuncio mínimo de un mint nuevo.
type newToken struct {
	Mint   string
	Symbol string
	Name   string
}

type wireMessage struct {
	// formato pumpportal
	TxType string `json:"txType"`
	Mint   string `json:"mint"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`

	// formato {"method":"newToken","data":{...}}
	Method string `json:"method"`
	Data   *struct {
		TokenAddress string `json:"tokenAddress"`
		Symbol       string `json:"symbol"`
		Name         string `json:"name"`
	} `json:"data"`
}

// parseMessage reconoce anuncios de creación; el resto (acks, trades) se ignora.
func parseMessage(data []byte) (newToken, bool) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Debug("pumpfun: unparseable message", "err", err)
		return newToken{}, false
	}
	switch {
	case m.TxType == "create" && m.Mint != "":
		return newToken{Mint: m.Mint, Symbol: m.Symbol, Name: m.Name}, true
	case m.Method == "newToken" && m.Data != nil && m.Data.TokenAddress != "":
		return newToken{Mint: m.Data.TokenAddress, Symbol: m.Data.Symbol, Name: m.Data.Name}, true
	default:
		return newToken{}, false
	}
}
