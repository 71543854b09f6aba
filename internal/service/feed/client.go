// Package feed streams live trade prints over a websocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"FinSim/internal/domain/models"
	drepo "FinSim/internal/domain/repository"
	"FinSim/pkg/logger"
	"FinSim/pkg/util"

	"github.com/gorilla/websocket"
)

// SourceName tags bars aggregated from this feed.
const SourceName = "live"

// Config configures the trade stream.
type Config struct {
	URL            string
	APIKey         string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	BufferSize     int
}

// Client implements MarketStream over the Polygon stocks socket. Finnhub
// style {"type":"trade","data":[...]} frames are accepted as well.
type Client struct {
	cfg Config
	log *logger.Logger

	mu        sync.Mutex // guards conn and connected
	writeMu   sync.Mutex // one writer at a time on the socket
	conn      *websocket.Conn
	connected bool
	dropped   int64
}

// New creates a new MarketStream.
func New(cfg Config, l *logger.Logger) drepo.MarketStream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Client{cfg: cfg, log: l}
}

// Connect dials the socket and authenticates.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.cfg.APIKey != "" {
		if err := c.write(map[string]string{"action": "auth", "params": c.cfg.APIKey}); err != nil {
			_ = c.Close()
			return fmt.Errorf("feed auth: %w", err)
		}
	}
	c.log.Info("feed connected", logger.String("url", c.cfg.URL))
	return nil
}

// Subscribe subscribes to trades of the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("feed not connected")
	}
	channels := make([]string, len(c.cfg.Symbols))
	for i, s := range c.cfg.Symbols {
		channels[i] = "T." + util.NormalizeSymbol(s)
	}
	if err := c.write(map[string]string{"action": "subscribe", "params": strings.Join(channels, ",")}); err != nil {
		return fmt.Errorf("subscribe %v: %w", c.cfg.Symbols, err)
	}
	c.log.Info("feed subscribed", logger.Strings("symbols", c.cfg.Symbols))
	return nil
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("feed conn nil")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// Read streams ticks and errors until ctx is done or the socket fails.
// Ticks are dropped when the consumer falls behind.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, c.cfg.BufferSize)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	go c.pingLoop(readCtx, conn)

	go func() {
		defer cancel()
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("feed conn nil")
			return
		}
		for {
			if readCtx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			for _, t := range decodeFrame(b) {
				select {
				case ticks <- t:
				default:
					c.dropped++
					if c.dropped%1000 == 1 {
						c.log.Warn("feed dropping ticks", logger.Int64("dropped", c.dropped))
					}
				}
			}
		}
	}()

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
		}
	}
}

// Reconnect closes, waits the reconnect delay, then connects and subscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

type polygonEvent struct {
	Ev  string  `json:"ev"`
	Sym string  `json:"sym"`
	P   float64 `json:"p"`
	S   float64 `json:"s"`
	T   int64   `json:"t"` // ms
}

type finnhubFrame struct {
	Type string        `json:"type"`
	Data []models.Tick `json:"data"`
}

// decodeFrame extracts trade prints from one socket frame. Status and
// unknown frames yield nothing.
func decodeFrame(b []byte) []*models.Tick {
	var events []polygonEvent
	if err := json.Unmarshal(b, &events); err == nil {
		out := make([]*models.Tick, 0, len(events))
		for _, e := range events {
			if e.Ev != "T" || e.Sym == "" {
				continue
			}
			out = append(out, &models.Tick{
				Symbol:    e.Sym,
				Price:     e.P,
				Volume:    e.S,
				Millis:    e.T,
				Timestamp: util.WallClock(time.UnixMilli(e.T)),
			})
		}
		return out
	}

	var f finnhubFrame
	if err := json.Unmarshal(b, &f); err != nil || f.Type != "trade" {
		return nil
	}
	out := make([]*models.Tick, 0, len(f.Data))
	for i := range f.Data {
		t := f.Data[i]
		t.Timestamp = util.WallClock(time.UnixMilli(t.Millis))
		out = append(out, &t)
	}
	return out
}
