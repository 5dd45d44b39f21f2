package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/textroom/server/internal/v1/actor"
	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/metrics"
	"github.com/textroom/server/internal/v1/types"
	"github.com/textroom/server/internal/v1/wire"
)

// writeWait bounds a single socket write.
const writeWait = 10 * time.Second

// wsConnection defines the interface for WebSocket connection operations.
// In production it is satisfied by *websocket.Conn; tests substitute mocks
// to simulate errors and disconnections.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetPingHandler(h func(appData string) error)
	Close() error
}

// --- Client commands ---

type clientCommand interface{ clientCommand() }

type clientFrameCmd struct {
	messageType int
	data        []byte
	reply       actor.Reply[struct{}]
}
type clientSendCmd struct {
	data  []byte
	reply actor.Reply[struct{}]
}
type clientPongCmd struct {
	at    time.Time
	reply actor.Reply[struct{}]
}
type clientSendPingCmd struct {
	now   time.Time
	reply actor.Reply[bool]
}
type clientLeaveCmd struct{ reply actor.Reply[struct{}] }
type clientCloseCmd struct{ reply actor.Reply[struct{}] }

func (clientFrameCmd) clientCommand()    {}
func (clientSendCmd) clientCommand()     {}
func (clientPongCmd) clientCommand()     {}
func (clientSendPingCmd) clientCommand() {}
func (clientLeaveCmd) clientCommand()    {}
func (clientCloseCmd) clientCommand()    {}

// Client is one participant's socket session. The command loop owns the
// outbound sink; the read pump and the ping worker are auxiliary goroutines
// that only address the actor through its mailbox.
type Client struct {
	id   types.ClientID
	me   wire.Participant
	conn wsConnection
	room *RoomHandle
	mb   *actor.Mailbox[clientCommand]

	pingInterval time.Duration

	// Actor-owned state; touched only from the command loop.
	lastPong     time.Time
	socketClosed bool
	detached     bool

	stopPing chan struct{}
	stopOnce sync.Once
}

// NewClient binds a freshly upgraded socket to a room and starts the
// command loop, the read pump, and the ping worker.
func NewClient(conn wsConnection, id types.ClientID, me wire.Participant, room *RoomHandle, pingInterval time.Duration) *Client {
	c := &Client{
		id:           id,
		me:           me,
		conn:         conn,
		room:         room,
		mb:           actor.NewMailbox[clientCommand](),
		pingInterval: pingInterval,
		lastPong:     time.Now(),
		stopPing:     make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		c.mb.Post(clientPongCmd{at: time.Now(), reply: actor.NewReply[struct{}]()})
		return nil
	})
	// The peer is expected to answer our pings, not the converse; inbound
	// pings are dropped instead of echoed.
	conn.SetPingHandler(func(string) error { return nil })

	metrics.IncConnection()

	go c.run()
	go c.readPump()
	go c.pingLoop()
	return c
}

// ID returns the client identifier allocated by the room.
func (c *Client) ID() types.ClientID {
	return c.id
}

// Me returns the participant identity bound at join.
func (c *Client) Me() wire.Participant {
	return c.me
}

// PostSend queues a raw frame for delivery to the participant.
func (c *Client) PostSend(data []byte) {
	c.mb.Post(clientSendCmd{data: data, reply: actor.NewReply[struct{}]()})
}

// PostLeave queues a clean leave, as issued by the room on a ban.
func (c *Client) PostLeave() {
	c.mb.Post(clientLeaveCmd{reply: actor.NewReply[struct{}]()})
}

// PostClose queues a full shutdown.
func (c *Client) PostClose() {
	c.mb.Post(clientCloseCmd{reply: actor.NewReply[struct{}]()})
}

// SendPing asks the actor to probe liveness; false means the client is
// gone and the ping worker should stop.
func (c *Client) SendPing(ctx context.Context, now time.Time) (bool, error) {
	cmd := clientSendPingCmd{now: now, reply: actor.NewReply[bool]()}
	if err := c.mb.Send(ctx, cmd); err != nil {
		return false, err
	}
	return cmd.reply.Await(ctx)
}

// OnMessageReceived hands one inbound frame to the actor and waits for it
// to be processed, so socket frames apply in arrival order.
func (c *Client) OnMessageReceived(ctx context.Context, messageType int, data []byte) error {
	cmd := clientFrameCmd{messageType: messageType, data: data, reply: actor.NewReply[struct{}]()}
	if err := c.mb.Send(ctx, cmd); err != nil {
		return err
	}
	_, err := cmd.reply.Await(ctx)
	return err
}

// run is the command loop; it owns every mutation of the client state.
func (c *Client) run() {
	ctx := context.Background()
	for {
		cmd, ok := c.mb.Receive()
		if !ok {
			logging.Debug(ctx, "Client actor stopped", zap.Uint64("client_id", uint64(c.id)))
			return
		}
		c.handle(ctx, cmd)
	}
}

func (c *Client) handle(ctx context.Context, cmd clientCommand) {
	switch v := cmd.(type) {
	case clientFrameCmd:
		c.onFrame(ctx, v.messageType, v.data)
		v.reply.Resolve(struct{}{})
	case clientSendCmd:
		c.write(ctx, v.data)
		v.reply.Resolve(struct{}{})
	case clientPongCmd:
		c.lastPong = v.at
		v.reply.Resolve(struct{}{})
	case clientSendPingCmd:
		v.reply.Resolve(c.sendPing(ctx, v.now))
	case clientLeaveCmd:
		c.detachState(ctx)
		v.reply.Resolve(struct{}{})
	case clientCloseCmd:
		c.close(ctx)
		v.reply.Resolve(struct{}{})
	}
}

// readPump reads the socket until it closes or errors, feeding each frame
// through the command loop, then issues a full shutdown.
func (c *Client) readPump() {
	ctx := context.Background()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if err := c.OnMessageReceived(ctx, messageType, data); err != nil {
			break
		}
	}
	c.PostClose()
}

// pingLoop ticks every pingInterval and stops once the actor reports the
// client dead or detached.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case now := <-ticker.C:
			alive, err := c.SendPing(context.Background(), now)
			if err != nil || !alive {
				return
			}
		}
	}
}

func (c *Client) onFrame(ctx context.Context, messageType int, data []byte) {
	switch messageType {
	case websocket.TextMessage:
		c.dispatch(ctx, data)
	case websocket.CloseMessage:
		logging.Debug(ctx, "Client sent close frame", zap.Uint64("client_id", uint64(c.id)))
	default:
		// Binary and continuation frames carry nothing for us.
	}
}

// dispatch decodes one text frame and routes the request. The secret is
// compared locally against the shared immutable room secret; room effects
// are fire-and-forget so a slow room never blocks the socket.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	start := time.Now()

	req, err := wire.DecodeRequest(data)
	if err != nil {
		c.respond(ctx, wire.ErrorResponse(wire.RecoverTransaction(data), err.Error()))
		metrics.SocketRequests.WithLabelValues("unknown", "decode_error").Inc()
		return
	}

	status := "ok"
	defer func() {
		metrics.SocketRequests.WithLabelValues(req.Textroom, status).Inc()
		metrics.RequestProcessingDuration.WithLabelValues(req.Textroom).Observe(time.Since(start).Seconds())
	}()

	if c.detached {
		c.respond(ctx, wire.RoomDestroyedResponse(req.Transaction))
		status = "destroyed"
		return
	}

	switch req.Textroom {
	case wire.RequestMessage:
		c.room.PostSendMessage(c.me, req.Type, req.Text)

	case wire.RequestAnnouncement:
		if req.Secret != c.room.Secret() {
			c.respond(ctx, wire.SecretMismatchResponse(req.Transaction))
			status = "secret_mismatch"
			return
		}
		c.room.PostAnnounce(c.me, req.Type, req.Text)

	case wire.RequestBan:
		if req.Secret != c.room.Secret() {
			c.respond(ctx, wire.SecretMismatchResponse(req.Transaction))
			status = "secret_mismatch"
			return
		}
		var from string
		if c.me.HasUsername() {
			from = *c.me.Username
		}
		c.room.PostBan(from, req.Username)

	case wire.RequestLeave:
		// Confirm before the sink closes.
		c.respond(ctx, wire.LeftResponse(req.Transaction))
		c.detachState(ctx)
	}
}

func (c *Client) respond(ctx context.Context, resp wire.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error(ctx, "Failed to marshal response", zap.Error(err))
		return
	}
	c.write(ctx, data)
}

// write puts one text frame on the sink; a failed write transitions the
// client to closed.
func (c *Client) write(ctx context.Context, data []byte) {
	if c.socketClosed {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Warn(ctx, "Socket write failed, closing client",
			zap.Uint64("client_id", uint64(c.id)), zap.Error(err))
		c.close(ctx)
	}
}

// sendPing reports whether the client is still alive. A pong gap beyond
// twice the ping interval closes the client.
func (c *Client) sendPing(ctx context.Context, now time.Time) bool {
	if c.socketClosed {
		return false
	}
	if now.Sub(c.lastPong) > 2*c.pingInterval {
		logging.Info(ctx, "Client ping timeout",
			zap.Uint64("client_id", uint64(c.id)),
			zap.Duration("since_pong", now.Sub(c.lastPong)))
		c.close(ctx)
		return false
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, now.Add(writeWait)); err != nil {
		c.close(ctx)
		return false
	}
	return true
}

// detachState drops the room's reference to this client, cancels the ping
// worker, and closes the sink; the closing socket also ends the read pump.
// Idempotent; the client is terminal afterwards.
func (c *Client) detachState(ctx context.Context) {
	if c.detached {
		return
	}
	c.detached = true
	c.room.PostRemoveClient(c.id)
	c.shutdownSocket(ctx)
}

// close is the full shutdown: detach plus mailbox closure, so the command
// loop drains and exits.
func (c *Client) close(ctx context.Context) {
	c.detachState(ctx)
	c.shutdownSocket(ctx)
	c.mb.Close()
}

func (c *Client) shutdownSocket(ctx context.Context) {
	c.socketClosed = true
	c.stopOnce.Do(func() {
		close(c.stopPing)
		if err := c.conn.Close(); err != nil {
			logging.Debug(ctx, "Socket close", zap.Error(err))
		}
		metrics.DecConnection()
	})
}
