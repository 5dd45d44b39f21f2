package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/textroom/server/internal/v1/actor"
	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/metrics"
	"github.com/textroom/server/internal/v1/types"
	"github.com/textroom/server/internal/v1/wire"
)

// Registry error kinds. The HTTP layer maps them to the protocol's
// response messages and status codes.
var (
	ErrRoomExists     = errors.New("room already exists")
	ErrRoomNotFound   = errors.New("room not found")
	ErrSecretMismatch = errors.New("secret does not match")
)

// --- Hub commands ---

type hubCommand interface{ hubCommand() }

type hubCreateRoomCmd struct {
	cfg   RoomConfig
	reply actor.Reply[error]
}
type hubStatusCmd struct{ reply actor.Reply[[]wire.RoomInfo] }
type hubGetRoomCmd struct {
	uid   types.RoomID
	reply actor.Reply[*RoomHandle]
}
type hubDestroyRoomCmd struct {
	uid    types.RoomID
	secret string
	reply  actor.Reply[error]
}
type hubDetachRoomCmd struct {
	uid   types.RoomID
	reply actor.Reply[struct{}]
}
type hubRoomCountCmd struct{ reply actor.Reply[int] }
type hubShutdownCmd struct{ reply actor.Reply[struct{}] }

func (hubCreateRoomCmd) hubCommand()  {}
func (hubStatusCmd) hubCommand()      {}
func (hubGetRoomCmd) hubCommand()     {}
func (hubDestroyRoomCmd) hubCommand() {}
func (hubDetachRoomCmd) hubCommand()  {}
func (hubRoomCountCmd) hubCommand()   {}
func (hubShutdownCmd) hubCommand()    {}

// Hub is the service actor: the registry of active rooms keyed by uid.
// Every uid in the registry corresponds to a non-destroyed room actor, and
// at most one entry per uid exists at any time.
type Hub struct {
	mb           *actor.Mailbox[hubCommand]
	pingInterval time.Duration
}

// NewHub starts the service actor.
func NewHub(pingInterval time.Duration) *Hub {
	h := &Hub{
		mb:           actor.NewMailbox[hubCommand](),
		pingInterval: pingInterval,
	}
	go h.run()
	return h
}

// PingInterval returns the liveness probe interval handed to each client.
func (h *Hub) PingInterval() time.Duration {
	return h.pingInterval
}

// CreateRoom registers a new room; ErrRoomExists if the uid is taken.
func (h *Hub) CreateRoom(ctx context.Context, cfg RoomConfig) error {
	cmd := hubCreateRoomCmd{cfg: cfg, reply: actor.NewReply[error]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return err
	}
	return awaitErr(ctx, cmd.reply)
}

// Status snapshots every room sequentially; ordering follows registry
// iteration and is otherwise unspecified.
func (h *Hub) Status(ctx context.Context) ([]wire.RoomInfo, error) {
	cmd := hubStatusCmd{reply: actor.NewReply[[]wire.RoomInfo]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.Await(ctx)
}

// GetRoom resolves a uid to its room handle; ErrRoomNotFound otherwise.
func (h *Hub) GetRoom(ctx context.Context, uid types.RoomID) (*RoomHandle, error) {
	cmd := hubGetRoomCmd{uid: uid, reply: actor.NewReply[*RoomHandle]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return nil, ErrRoomNotFound
	}
	room, err := cmd.reply.Await(ctx)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// DestroyRoom validates the secret and tears the room down. The registry
// entry is removed immediately; the room's own detach callback then finds
// nothing to do, which is fine.
func (h *Hub) DestroyRoom(ctx context.Context, uid types.RoomID, secret string) error {
	cmd := hubDestroyRoomCmd{uid: uid, secret: secret, reply: actor.NewReply[error]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return ErrRoomNotFound
	}
	return awaitErr(ctx, cmd.reply)
}

// PostDetachRoom is the fire-and-forget self-removal a destroyed room
// sends back. Missing entries are tolerated.
func (h *Hub) PostDetachRoom(uid types.RoomID) {
	h.mb.Post(hubDetachRoomCmd{uid: uid, reply: actor.NewReply[struct{}]()})
}

// RoomCount reports the registry size; used by the readiness probe.
func (h *Hub) RoomCount(ctx context.Context) (int, error) {
	cmd := hubRoomCountCmd{reply: actor.NewReply[int]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return 0, err
	}
	return cmd.reply.Await(ctx)
}

// Shutdown destroys every room and stops the service actor.
func (h *Hub) Shutdown(ctx context.Context) error {
	cmd := hubShutdownCmd{reply: actor.NewReply[struct{}]()}
	if err := h.mb.Send(ctx, cmd); err != nil {
		return err
	}
	_, err := cmd.reply.Await(ctx)
	return err
}

func awaitErr(ctx context.Context, reply actor.Reply[error]) error {
	result, err := reply.Await(ctx)
	if err != nil {
		return err
	}
	return result
}

// --- Hub actor ---

type hubActor struct {
	hub   *Hub
	rooms map[types.RoomID]*RoomHandle
}

func (h *Hub) run() {
	ctx := context.Background()
	state := &hubActor{
		hub:   h,
		rooms: make(map[types.RoomID]*RoomHandle),
	}
	for {
		cmd, ok := h.mb.Receive()
		if !ok {
			logging.Info(ctx, "Hub stopped")
			return
		}
		state.handle(ctx, cmd)
	}
}

func (s *hubActor) handle(ctx context.Context, cmd hubCommand) {
	switch c := cmd.(type) {
	case hubCreateRoomCmd:
		c.reply.Resolve(s.createRoom(ctx, c.cfg))
	case hubStatusCmd:
		c.reply.Resolve(s.status(ctx))
	case hubGetRoomCmd:
		c.reply.Resolve(s.rooms[c.uid])
	case hubDestroyRoomCmd:
		c.reply.Resolve(s.destroyRoom(ctx, c.uid, c.secret))
	case hubDetachRoomCmd:
		s.detachRoom(ctx, c.uid)
		c.reply.Resolve(struct{}{})
	case hubRoomCountCmd:
		c.reply.Resolve(len(s.rooms))
	case hubShutdownCmd:
		s.shutdown(ctx)
		c.reply.Resolve(struct{}{})
	}
}

func (s *hubActor) createRoom(ctx context.Context, cfg RoomConfig) error {
	if _, exists := s.rooms[cfg.UID]; exists {
		return ErrRoomExists
	}
	room := NewRoom(cfg, s.hub.PostDetachRoom)
	s.rooms[cfg.UID] = room

	metrics.ActiveRooms.Inc()
	logging.Info(ctx, "Hub: room registered",
		zap.String("room", string(cfg.UID)),
		zap.String("secret", logging.RedactSecret(cfg.Secret)))
	return nil
}

func (s *hubActor) status(ctx context.Context) []wire.RoomInfo {
	result := make([]wire.RoomInfo, 0, len(s.rooms))
	for _, room := range s.rooms {
		info, err := room.Status(ctx)
		if err != nil {
			// Room actor already gone; its detach is still in flight.
			continue
		}
		result = append(result, info)
	}
	return result
}

func (s *hubActor) destroyRoom(ctx context.Context, uid types.RoomID, secret string) error {
	room, ok := s.rooms[uid]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Secret() != secret {
		return ErrSecretMismatch
	}
	room.PostDestroy()
	s.detachRoom(ctx, uid)
	return nil
}

func (s *hubActor) detachRoom(ctx context.Context, uid types.RoomID) {
	if _, ok := s.rooms[uid]; !ok {
		return
	}
	delete(s.rooms, uid)
	metrics.ActiveRooms.Dec()
	logging.Info(ctx, "Hub: room detached", zap.String("room", string(uid)))
}

func (s *hubActor) shutdown(ctx context.Context) {
	for uid, room := range s.rooms {
		room.PostDestroy()
		delete(s.rooms, uid)
		metrics.ActiveRooms.Dec()
	}
	logging.Info(ctx, "Hub: shutdown complete")
	s.hub.mb.Close()
}
