package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/types"
	"github.com/textroom/server/internal/v1/wire"
)

// Room management action names, matched against the trailing path segment.
const (
	actionCreate           = "create"
	actionDestroy          = "destroy"
	actionStatus           = "status"
	actionJoin             = "join"
	actionCount            = "count"
	actionLastAnnouncement = "lastAnnouncement"
	actionParticipants     = "participants"
	actionPhoto            = "photo"
)

// Protocol error messages, rendered verbatim in the {"message": ...} body.
const (
	msgSecretMismatch   = "Secret does not match"
	msgRoomNotFound     = "Room not found"
	msgRoomNotAvailable = "Room is not available"
	msgNotFound         = "Not found"
)

// Dispatcher routes the room management surface. Room uids may contain
// slashes, so routes cannot be declared statically; instead every request
// is split at its last path separator into a room uid and an action.
type Dispatcher struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewDispatcher builds the dispatcher around a hub. allowedOrigins gates
// the WebSocket handshake; "*" admits any origin.
func NewDispatcher(hub *Hub, allowedOrigins []string) *Dispatcher {
	return &Dispatcher{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if candidate == "*" || candidate == origin {
				return true
			}
		}
		return false
	}
}

// Handle is the fallback route. It dispatches on the segment after the
// last '/'; everything before it is the room uid, slashes included.
func (d *Dispatcher) Handle(c *gin.Context) {
	path := c.Request.URL.Path
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	uid, action := types.RoomID(path[:idx]), path[idx+1:]

	// Only the global status listing works without a room; every other
	// action needs a non-empty uid in front of it.
	if uid == "" && action != actionStatus {
		fail(c, http.StatusNotFound, msgNotFound)
		return
	}

	switch action {
	case actionCreate:
		d.create(c, uid)
	case actionDestroy:
		d.destroy(c, uid)
	case actionStatus:
		if uid == "" {
			d.globalStatus(c)
			return
		}
		d.roomStatus(c, uid)
	case actionJoin:
		d.join(c, uid)
	case actionCount:
		d.count(c, uid)
	case actionLastAnnouncement:
		d.lastAnnouncement(c, uid)
	case actionParticipants:
		d.participants(c, uid)
	case actionPhoto:
		d.photo(c, uid)
	default:
		fail(c, http.StatusNotFound, msgNotFound)
	}
}

func (d *Dispatcher) create(c *gin.Context, uid types.RoomID) {
	params, err := wire.ParseCreateParams(c.Request.URL.Query())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	cfg := RoomConfig{
		UID:       uid,
		Secret:    params.Secret,
		Post:      params.Post,
		PostTypes: params.PostTypes,
	}
	if err := d.hub.CreateRoom(c.Request.Context(), cfg); err != nil {
		fail(c, http.StatusBadRequest, msgRoomNotAvailable)
		return
	}
	c.Status(http.StatusOK)
}

func (d *Dispatcher) destroy(c *gin.Context, uid types.RoomID) {
	params, err := wire.ParseDestroyParams(c.Request.URL.Query())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	err = d.hub.DestroyRoom(c.Request.Context(), uid, params.Secret)
	switch {
	case errors.Is(err, ErrSecretMismatch):
		fail(c, http.StatusUnauthorized, msgSecretMismatch)
	case err != nil:
		fail(c, http.StatusNotFound, msgRoomNotFound)
	default:
		c.Status(http.StatusOK)
	}
}

func (d *Dispatcher) globalStatus(c *gin.Context) {
	rooms, err := d.hub.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (d *Dispatcher) roomStatus(c *gin.Context, uid types.RoomID) {
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	info, err := room.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, info)
}

// join upgrades the connection and binds a new client actor to the room.
// After the upgrade succeeds errors can no longer be reported over HTTP;
// they surface as an immediate socket close instead.
func (d *Dispatcher) join(c *gin.Context, uid types.RoomID) {
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	params := wire.ParseJoinParams(c.Request.URL.Query())

	id, err := room.NextID(c.Request.Context())
	if err != nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return
	}

	conn, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed",
			zap.String("room", string(uid)), zap.Error(err))
		return
	}

	client := NewClient(conn, id, params.Participant(), room, d.hub.PingInterval())
	if err := room.AddClient(c.Request.Context(), client, params.ImageURL); err != nil {
		// The room died between lookup and attach; the client tears itself
		// down the same way a destroyed-room join does.
		client.PostClose()
	}
}

func (d *Dispatcher) count(c *gin.Context, uid types.RoomID) {
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	count, err := room.Count(c.Request.Context())
	if err != nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (d *Dispatcher) lastAnnouncement(c *gin.Context, uid types.RoomID) {
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	params := wire.ParseLastAnnouncementParams(c.Request.URL.Query())
	announcements, err := room.LastAnnouncement(c.Request.Context(), params.Types)
	if err != nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, announcements)
}

func (d *Dispatcher) participants(c *gin.Context, uid types.RoomID) {
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	participants, err := room.Participants(c.Request.Context())
	if err != nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return
	}
	c.JSON(http.StatusOK, participants)
}

func (d *Dispatcher) photo(c *gin.Context, uid types.RoomID) {
	params, err := wire.ParsePhotoParams(c.Request.URL.Query())
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	room, ok := d.lookup(c, uid)
	if !ok {
		return
	}
	url, found, err := room.Photo(c.Request.Context(), params.Username)
	if err != nil || !found {
		fail(c, http.StatusNotFound, msgNotFound)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// lookup resolves the room or writes the 404 itself. A mailbox closed
// between registry hit and command delivery also reads as not found.
func (d *Dispatcher) lookup(c *gin.Context, uid types.RoomID) (*RoomHandle, bool) {
	room, err := d.hub.GetRoom(c.Request.Context(), uid)
	if err != nil || room == nil {
		fail(c, http.StatusNotFound, msgRoomNotFound)
		return nil, false
	}
	return room, true
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}
