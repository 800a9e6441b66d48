package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/metrics"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn        *websocket.Conn
	send        chan *Message
	userID      string
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	closeOnce   sync.Once
	gameService *GameService
	validator   auth.Validator
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, gameService *GameService, validator auth.Validator) *Connection {
	if validator == nil {
		validator = auth.Trusted{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:        conn,
		send:        make(chan *Message, 256),
		logger:      logger.WithPrefix("conn"),
		ctx:         ctx,
		cancel:      cancel,
		gameService: gameService,
		validator:   validator,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	metrics.ConnectionOpened()
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection shuts down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		metrics.ConnectionClosed()
		c.cancel()
		c.mu.Lock()
		close(c.send)
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		go func() { _ = c.Close() }()
		return ErrConnectionClosed
	}
}

// SetUser associates this connection with a user
func (c *Connection) SetUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// User returns the authenticated user id
func (c *Connection) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Upper bound on a single round action
	requestTimeout = 10 * time.Second
)

var (
	ErrConnectionClosed = websocket.ErrCloseSent
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "user", c.User())

	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidRequest, "Failed to parse auth data")
			return
		}
		c.handleAuth(ctx, msg.RequestID, data)

	case MessageTypeStartRound:
		var data StartRoundData
		if err := msg.Decode(&data); err != nil {
			c.sendError(msg.RequestID, CodeInvalidRequest, "Failed to parse start round data")
			return
		}
		snap, err := c.gameService.StartRound(ctx, c.User(), data.BetAmount)
		c.sendRound(msg.RequestID, snap, err)

	case MessageTypeHit, MessageTypeStand, MessageTypeDoubleDown, MessageTypeGetRound:
		var data RoundActionData
		if err := msg.Decode(&data); err != nil || data.RoundID == "" {
			c.sendError(msg.RequestID, CodeInvalidRequest, "round_id is required")
			return
		}
		snap, err := c.roundAction(ctx, msg.Type, data.RoundID)
		c.sendRound(msg.RequestID, snap, err)

	case MessageTypeGetStats:
		stats, err := c.gameService.Stats(ctx, c.User())
		if err != nil {
			c.sendServiceError(msg.RequestID, err)
			return
		}
		c.reply(MessageTypeStats, msg.RequestID, stats)

	default:
		c.sendError(msg.RequestID, CodeInvalidRequest, "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) roundAction(ctx context.Context, mt MessageType, roundID string) (game.Snapshot, error) {
	userID := c.User()
	switch mt {
	case MessageTypeHit:
		return c.gameService.Hit(ctx, userID, roundID)
	case MessageTypeStand:
		return c.gameService.Stand(ctx, userID, roundID)
	case MessageTypeDoubleDown:
		return c.gameService.DoubleDown(ctx, userID, roundID)
	default:
		return c.gameService.Round(ctx, userID, roundID)
	}
}

func (c *Connection) handleAuth(ctx context.Context, requestID string, data AuthData) {
	c.logger.Info("Auth request", "user", data.UserID, "token", data.Token != "")

	credential := data.Token
	if credential == "" {
		credential = data.UserID
	}
	if credential == "" {
		c.sendError(requestID, CodeUnauthenticated, "user_id or token required")
		return
	}

	identity, err := c.validator.Validate(ctx, credential)
	if err != nil {
		c.logger.Warn("Auth rejected", "user", data.UserID, "error", err)
		c.sendServiceError(requestID, err)
		return
	}
	userID := identity.UserID

	balance, err := c.gameService.Login(ctx, userID)
	if err != nil {
		c.sendServiceError(requestID, err)
		return
	}
	c.SetUser(userID)

	resp := AuthResponseData{Success: true, UserID: userID, Balance: balance}
	if snap, ok, err := c.gameService.ActiveRound(ctx, userID); err == nil && ok {
		resp.ActiveRound = &snap
	}
	c.reply(MessageTypeAuthResponse, requestID, resp)
}

func (c *Connection) sendRound(requestID string, snap game.Snapshot, err error) {
	if err != nil {
		c.sendServiceError(requestID, err)
		return
	}
	c.reply(MessageTypeRoundState, requestID, snap)
}

func (c *Connection) sendServiceError(requestID string, err error) {
	data := NewErrorData(err)
	if data.Code == CodeInternal {
		c.logger.Error("Request failed", "user", c.User(), "error", err)
	}
	c.sendError(requestID, data.Code, data.Message)
}

// sendError sends an error message to the client
func (c *Connection) sendError(requestID, code, message string) {
	c.reply(MessageTypeError, requestID, ErrorData{Code: code, Message: message})
}

func (c *Connection) reply(mt MessageType, requestID string, data any) {
	msg, err := NewMessage(mt, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", mt, "error", err)
		return
	}
	msg.RequestID = requestID
	if err := c.SendMessage(msg); err != nil && !errors.Is(err, ErrConnectionClosed) {
		c.logger.Debug("Failed to send message", "type", mt, "error", err)
	}
}
