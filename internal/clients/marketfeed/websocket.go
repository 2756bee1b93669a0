// Package marketfeed provides the live market data WebSocket client.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/wealthsentinel/sentinel/internal/marketdata"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// TickHandler receives each raw tick read from the feed.
type TickHandler func(marketdata.RawTick)

// Client subscribes to a market data WebSocket feed and forwards ticks to a
// handler. The connection reconnects with exponential backoff on failure.
type Client struct {
	url       string
	watchlist []string
	handler   TickHandler
	log       zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool

	stopChan chan struct{}
	stopped  bool
}

// New creates a new market feed client.
func New(url string, watchlist []string, handler TickHandler, log zerolog.Logger) *Client {
	return &Client{
		url:       url,
		watchlist: watchlist,
		handler:   handler,
		log:       log.With().Str("component", "market_feed").Logger(),
		stopChan:  make(chan struct{}),
	}
}

// Start establishes the connection and begins the read loop. A failed initial
// connection is not fatal; the client keeps retrying in the background.
func (c *Client) Start() error {
	c.log.Info().Str("url", c.url).Msg("Starting market feed client")

	if err := c.connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial feed connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	return nil
}

// Stop gracefully shuts down the feed connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopChan)
	return c.disconnect()
}

// IsConnected reports whether the feed connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	if err := c.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		c.conn = nil
		c.connCtx = nil
		c.cancelFunc = nil
		c.connected = false
		return fmt.Errorf("failed to subscribe to feed: %w", err)
	}

	c.log.Info().Msg("Connected to market feed")
	return nil
}

func (c *Client) disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing feed connection: %w", err)
	}
	return nil
}

// subscribe sends the watchlist subscription message.
// Feed protocol: {"subscribe": ["AAPL", ...]}
func (c *Client) subscribe(ctx context.Context) error {
	msg := map[string][]string{"subscribe": c.watchlist}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}
	return nil
}

func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Msg("Feed connection closed normally")
			} else if ctx.Err() == nil {
				c.log.Error().Err(err).Msg("Unexpected feed read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(message); err != nil {
			// One malformed tick never stops the stream.
			c.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle feed message")
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var tick marketdata.RawTick
	if err := json.Unmarshal(message, &tick); err != nil {
		return fmt.Errorf("failed to parse tick: %w", err)
	}
	c.handler(tick)
	return nil
}

// reconnectLoop retries the connection with exponential backoff.
func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		c.log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Scheduling feed reconnect")

		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Feed reconnect failed")
			continue
		}

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}

	c.log.Error().Int("attempts", maxReconnectAttempts).Msg("Giving up on feed reconnection")
}
