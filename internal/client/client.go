package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/server" // Reuse message types
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

// ErrDisconnected is returned for requests that were pending when the
// connection went away
var ErrDisconnected = errors.New("disconnected from server")

// RemoteError is an error message returned by the server
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a RemoteError with the given code
func IsCode(err error, code string) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == code
}

// Client represents a WebSocket client for the blackjack table
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan *server.Message
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	userID    string
	closeOnce sync.Once

	// pending maps request ids to the channel awaiting the reply
	pending map[string]chan *server.Message

	// Event handlers for messages nobody is waiting on
	eventHandlers map[server.MessageType][]EventHandler
}

// EventHandler is a function that handles incoming events
type EventHandler func(*server.Message)

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL:     serverURL,
		send:          make(chan *server.Message, 256),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		pending:       make(map[string]chan *server.Message),
		eventHandlers: make(map[server.MessageType][]EventHandler),
	}
}

// WebSocketURL converts a server base URL into its /ws endpoint
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	wsURL, err := WebSocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// UserID returns the authenticated user, if any
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SendMessage queues a message for the server
func (c *Client) SendMessage(msg *server.Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrDisconnected
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Request sends a message and waits for the reply carrying the same
// request id. Error replies are returned as *RemoteError.
func (c *Client) Request(ctx context.Context, mt server.MessageType, data any) (*server.Message, error) {
	msg, err := server.NewMessage(mt, data)
	if err != nil {
		return nil, err
	}
	msg.RequestID = uuid.NewString()

	reply := make(chan *server.Message, 1)
	c.mu.Lock()
	c.pending[msg.RequestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	if err := c.SendMessage(msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-reply:
		if resp.Type == server.MessageTypeError {
			var data server.ErrorData
			if err := resp.Decode(&data); err != nil {
				return nil, fmt.Errorf("malformed error reply: %w", err)
			}
			return nil, &RemoteError{Code: data.Code, Message: data.Message}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s reply: %w", mt, ctx.Err())
	case <-c.ctx.Done():
		return nil, ErrDisconnected
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.cancel()
	}()

	for {
		var msg server.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "type", msg.Type, "request", msg.RequestID)
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *server.Message) {
	c.mu.RLock()
	reply, waiting := c.pending[msg.RequestID]
	handlers := c.eventHandlers[msg.Type]
	c.mu.RUnlock()

	if waiting && msg.RequestID != "" {
		select {
		case reply <- msg:
		default:
		}
		return
	}

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", msg.Type)
		return
	}
	for _, handler := range handlers {
		handler(msg)
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// AddEventHandler adds an event handler for a specific message type
func (c *Client) AddEventHandler(messageType server.MessageType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], handler)
}

// Auth identifies the user. The response carries the balance and any round
// left unfinished by an earlier session.
func (c *Client) Auth(ctx context.Context, userID string) (server.AuthResponseData, error) {
	return c.authenticate(ctx, server.AuthData{UserID: userID})
}

// AuthToken identifies the client with a token issued by the server's
// identity service
func (c *Client) AuthToken(ctx context.Context, token string) (server.AuthResponseData, error) {
	return c.authenticate(ctx, server.AuthData{Token: token})
}

func (c *Client) authenticate(ctx context.Context, data server.AuthData) (server.AuthResponseData, error) {
	var resp server.AuthResponseData
	if err := c.call(ctx, server.MessageTypeAuth, data, &resp); err != nil {
		return resp, err
	}

	c.mu.Lock()
	c.userID = resp.UserID
	c.mu.Unlock()
	return resp, nil
}

// StartRound places a bet and deals a new round
func (c *Client) StartRound(ctx context.Context, bet int64) (game.Snapshot, error) {
	var snap game.Snapshot
	err := c.call(ctx, server.MessageTypeStartRound, server.StartRoundData{BetAmount: bet}, &snap)
	return snap, err
}

// Hit draws a card for the player
func (c *Client) Hit(ctx context.Context, roundID string) (game.Snapshot, error) {
	return c.roundCall(ctx, server.MessageTypeHit, roundID)
}

// Stand ends the player's turn
func (c *Client) Stand(ctx context.Context, roundID string) (game.Snapshot, error) {
	return c.roundCall(ctx, server.MessageTypeStand, roundID)
}

// DoubleDown doubles the bet and draws exactly one card
func (c *Client) DoubleDown(ctx context.Context, roundID string) (game.Snapshot, error) {
	return c.roundCall(ctx, server.MessageTypeDoubleDown, roundID)
}

// GetRound fetches the current state of a round
func (c *Client) GetRound(ctx context.Context, roundID string) (game.Snapshot, error) {
	return c.roundCall(ctx, server.MessageTypeGetRound, roundID)
}

// GetStats fetches the user's aggregate statistics
func (c *Client) GetStats(ctx context.Context) (server.StatsData, error) {
	var stats server.StatsData
	err := c.call(ctx, server.MessageTypeGetStats, struct{}{}, &stats)
	return stats, err
}

func (c *Client) roundCall(ctx context.Context, mt server.MessageType, roundID string) (game.Snapshot, error) {
	var snap game.Snapshot
	err := c.call(ctx, mt, server.RoundActionData{RoundID: roundID}, &snap)
	return snap, err
}

func (c *Client) call(ctx context.Context, mt server.MessageType, data, out any) error {
	resp, err := c.Request(ctx, mt, data)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", resp.Type, err)
	}
	return nil
}

// WaitForMessage waits for an unsolicited message of a specific type
func (c *Client) WaitForMessage(messageType server.MessageType, timeout time.Duration) (*server.Message, error) {
	responseChan := make(chan *server.Message, 1)

	c.AddEventHandler(messageType, func(msg *server.Message) {
		select {
		case responseChan <- msg:
		default:
		}
	})

	select {
	case msg := <-responseChan:
		return msg, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for %s", messageType)
	case <-c.ctx.Done():
		return nil, ErrDisconnected
	}
}
