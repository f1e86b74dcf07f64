package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain"
	"github.com/randybritsch/c4-mcp-app-sub000/domain/entities"
	"github.com/randybritsch/c4-mcp-app-sub000/usecase"
)

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

type envelope interface {
	messageType() MessageType
}

func (b BaseMessage) messageType() MessageType {
	return b.Type
}

// Client is a middleman between the websocket connection and the hub. It is
// also the usecase.Emitter of every command started on its connection.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	correlationID string
	session       *entities.Session

	pingPeriod time.Duration
	pongWait   time.Duration

	// Guards send against use after close.
	mu     sync.Mutex
	closed bool

	// Tracks command goroutines so tests can wait for them.
	commands sync.WaitGroup

	logger *zap.Logger
}

var _ usecase.Emitter = (*Client)(nil)

func newClient(hub *Hub, conn *websocket.Conn, correlationID string, session *entities.Session) *Client {
	ping := hub.config.HeartbeatInterval
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan WriteData, sendBufferSize),
		correlationID: correlationID,
		session:       session,
		pingPeriod:    ping,
		pongWait:      (ping * 10) / 9,
		logger: hub.logger.With(
			zap.String("correlationID", correlationID),
			zap.String("deviceID", session.DeviceID)),
	}
}

// readPump pumps messages from the websocket connection to the dispatcher.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			c.handleMessage(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound envelope. Protocol errors are answered
// with an error envelope and never close the connection.
func (c *Client) handleMessage(data []byte) {
	msg, err := ParseInbound(data)
	if err != nil {
		c.logger.Warn("Failed to parse message", zap.Error(err))
		c.hub.metrics.Envelope("in", "invalid")
		c.sendMessage(CreateErrorFromErr(err))
		return
	}

	c.logger.Debug("WebSocket message received", zap.String("type", string(msg.Type)))

	switch msg.Type {
	case MessageTypeAudioStart:
		c.session.StartAudio(msg.Format, msg.SampleRate())
		c.sendMessage(CreateAudioReadyMessage())

	case MessageTypeAudioChunk:
		chunk, err := msg.AudioData()
		if err != nil {
			c.sendMessage(CreateErrorFromErr(err))
			break
		}
		c.session.AppendAudio(chunk)

	case MessageTypeAudioEnd:
		// Finalized here so a following audio-start cannot race the command.
		audio, _ := c.session.FinalizeAudio()
		c.startCommand(entities.SourceVoice, func(ctx context.Context, cmd usecase.Command) {
			c.hub.commands.ProcessUtterance(ctx, cmd, audio)
		})

	case MessageTypeTextCommand:
		if !c.hub.config.AllowTextCommands {
			c.sendMessage(CreateErrorMessage(domain.CodeTextCommandsDisabled, "Text commands are disabled", nil))
			break
		}
		text, err := msg.TranscriptText()
		if err != nil {
			c.sendMessage(CreateErrorFromErr(err))
			break
		}
		c.startCommand(entities.SourceText, func(ctx context.Context, cmd usecase.Command) {
			c.hub.commands.ProcessText(ctx, cmd, text)
		})

	case MessageTypeClarificationChoice:
		index, err := msg.Choice()
		if err != nil {
			c.sendMessage(CreateErrorFromErr(err))
			break
		}
		c.startCommand(entities.SourceClarification, func(ctx context.Context, cmd usecase.Command) {
			c.hub.commands.ProcessChoice(ctx, cmd, index)
		})

	case MessageTypeRemoteControl:
		button := msg.ButtonName()
		c.startCommand(entities.SourceRemote, func(ctx context.Context, cmd usecase.Command) {
			c.hub.commands.ProcessRemote(ctx, cmd, button)
		})

	case MessageTypePing:
		c.sendMessage(CreatePongMessage())

	default:
		c.hub.metrics.Envelope("in", "unknown")
		c.sendMessage(CreateErrorFromErr(UnknownTypeError(msg.Type)))
		return
	}

	c.hub.metrics.Envelope("in", string(msg.Type))
}

// startCommand runs fn off the read pump. Commands are not cancelled when
// the client goes away; their late events are dropped by sendMessage.
func (c *Client) startCommand(source entities.CommandSource, fn func(ctx context.Context, cmd usecase.Command)) {
	cmd := usecase.Command{
		Session:       c.session,
		CorrelationID: c.correlationID,
		Source:        source,
		Emit:          c,
	}

	c.commands.Add(1)
	go func() {
		defer c.commands.Done()
		fn(context.Background(), cmd)
	}()
}

// sendMessage queues an envelope for the write pump. It never blocks: once
// the connection is closed, or its buffer is full, the envelope is dropped.
func (c *Client) sendMessage(msg envelope) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal envelope", zap.String("type", string(msg.messageType())), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		c.hub.metrics.Envelope("out", string(msg.messageType()))
	default:
		c.logger.Warn("Send buffer full, dropping envelope", zap.String("type", string(msg.messageType())))
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) Processing(stage string) {
	c.sendMessage(CreateProcessingMessage(stage))
}

func (c *Client) Transcript(text string, confidence float64) {
	c.sendMessage(CreateTranscriptMessage(text, confidence))
}

func (c *Client) Intent(plan entities.Plan) {
	c.sendMessage(CreateIntentMessage(plan))
}

func (c *Client) ClarificationRequired(transcript string, plan entities.Plan, clarification entities.Clarification) {
	c.sendMessage(CreateClarificationRequiredMessage(transcript, plan, clarification))
}

func (c *Client) CommandComplete(result interface{}, transcript string, plan entities.Plan) {
	c.sendMessage(CreateCommandCompleteMessage(result, transcript, plan))
}

func (c *Client) RoomContext(room *entities.RoomContext, reason string) {
	c.sendMessage(CreateRoomContextMessage(room, reason))
}

func (c *Client) RemoteContext(remote *entities.RemoteContext, reason string) {
	c.sendMessage(CreateRemoteContextMessage(remote, reason))
}

func (c *Client) Error(code, message string, details interface{}) {
	c.sendMessage(CreateErrorMessage(code, message, details))
}
