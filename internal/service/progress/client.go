package progress

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viaforteexpress/campaign-engine/internal/domain"
	"github.com/viaforteexpress/campaign-engine/pkg/logger"
)

// ConnState is the observer client's connection state
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

const (
	defaultReconnectDelay = 3 * time.Second
	defaultPingInterval   = 30 * time.Second
)

// ProgressHandler receives one campaign projection per progress message
type ProgressHandler func(progress *domain.CampaignProgress)

// ClientConfig tunes the observer client
type ClientConfig struct {
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client is an observer of campaign progress over a websocket connection.
// It runs an explicit reconnection state machine: connected, then on any
// unclean close disconnected with a reason, then reconnecting after a fixed
// delay. A close with code 1000 is an intentional shutdown and ends the
// client without reconnecting. Subscriptions survive reconnects; the client
// resubscribes after every successful dial and receives a fresh snapshot.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	config  ClientConfig
	handler ProgressHandler
	logger  logger.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ConnState
	lastErr       error
	subscriptions map[string]struct{}
}

// NewClient creates an observer client for the given websocket URL
func NewClient(url string, handler ProgressHandler, log logger.Logger, config *ClientConfig) *Client {
	cfg := ClientConfig{
		ReconnectDelay: defaultReconnectDelay,
		PingInterval:   defaultPingInterval,
	}
	if config != nil {
		if config.ReconnectDelay > 0 {
			cfg.ReconnectDelay = config.ReconnectDelay
		}
		if config.PingInterval > 0 {
			cfg.PingInterval = config.PingInterval
		}
	}
	if handler == nil {
		handler = func(*domain.CampaignProgress) {}
	}
	return &Client{
		url:           url,
		dialer:        websocket.DefaultDialer,
		config:        cfg,
		handler:       handler,
		logger:        log,
		state:         StateDisconnected,
		subscriptions: make(map[string]struct{}),
	}
}

// State reports the client's current connection state
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError reports the reason for the most recent disconnect, if any
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers interest in a campaign. If the client is connected the
// subscription is sent immediately; it is replayed after every reconnect.
func (c *Client) Subscribe(campaignID string) error {
	c.mu.Lock()
	c.subscriptions[campaignID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeControl(conn, inboundMessage{
		Type:    MessageTypeSubscribe,
		Payload: campaignPayload(campaignID),
	})
}

// Unsubscribe removes interest in a campaign
func (c *Client) Unsubscribe(campaignID string) error {
	c.mu.Lock()
	delete(c.subscriptions, campaignID)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeControl(conn, inboundMessage{
		Type:    MessageTypeUnsubscribe,
		Payload: campaignPayload(campaignID),
	})
}

// Run drives the connection until the context is cancelled or the server
// closes the connection cleanly
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return err
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.recordError(err)
			c.logger.WithField("error", err.Error()).Warn("Observer dial failed")
			if !c.waitReconnect(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.setConn(conn)
		c.setState(StateConnected)
		c.resubscribe(conn)

		clean := c.readLoop(ctx, conn)
		c.setConn(nil)

		if clean {
			c.setState(StateDisconnected)
			return nil
		}
		if !c.waitReconnect(ctx) {
			return ctx.Err()
		}
	}
}

// readLoop consumes messages until the connection drops. It returns true for
// a clean, intentional close (code 1000), which stops the state machine.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	for {
		var msg outboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Info("Observer connection closed by server")
				return true
			}
			c.recordError(err)
			c.logger.WithField("error", err.Error()).Warn("Observer connection lost")
			return false
		}

		switch msg.Type {
		case MessageTypeProgress:
			if msg.Data != nil {
				c.handler(msg.Data)
			}
		case MessageTypePong:
			// Liveness confirmed; nothing to do
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeControl(conn, inboundMessage{Type: MessageTypePing}); err != nil {
				return
			}
		}
	}
}

// waitReconnect enters the reconnecting state and waits out the fixed delay.
// It returns false when the context is cancelled first.
func (c *Client) waitReconnect(ctx context.Context) bool {
	c.setState(StateReconnecting)

	timer := time.NewTimer(c.config.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.setState(StateDisconnected)
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) resubscribe(conn *websocket.Conn) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.writeControl(conn, inboundMessage{
			Type:    MessageTypeSubscribe,
			Payload: campaignPayload(id),
		}); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"campaign_id": id,
				"error":       err.Error(),
			}).Warn("Failed to resubscribe after reconnect")
			return
		}
	}
}

func (c *Client) writeControl(conn *websocket.Conn, msg inboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) setState(state ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

func campaignPayload(campaignID string) subscriptionPayload {
	return subscriptionPayload{CampaignID: campaignID}
}
