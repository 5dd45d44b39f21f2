// Package session implements the textroom actors: the hub (room registry),
// the room actor, and the per-socket client actor. Each actor is a single
// goroutine that owns its state exclusively and consumes typed commands from
// a bounded mailbox; callers talk to it through a handle exposing awaiting
// and fire-and-forget sends. No locks are taken on the hot path — ordering
// within an actor is a consequence of sequential consumption.
package session

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/textroom/server/internal/v1/actor"
	"github.com/textroom/server/internal/v1/logging"
	"github.com/textroom/server/internal/v1/metrics"
	"github.com/textroom/server/internal/v1/types"
	"github.com/textroom/server/internal/v1/webhook"
	"github.com/textroom/server/internal/v1/wire"
)

// RoomConfig is the immutable configuration a room is created with.
type RoomConfig struct {
	UID       types.RoomID
	Secret    string
	Post      string
	PostTypes []string
}

// --- Room commands ---

type roomCommand interface{ roomCommand() }

type roomStatusCmd struct{ reply actor.Reply[wire.RoomInfo] }
type roomCountCmd struct{ reply actor.Reply[int] }
type roomParticipantsCmd struct{ reply actor.Reply[[]wire.Participant] }
type roomPhotoCmd struct {
	username string
	reply    actor.Reply[photoResult]
}
type roomLastAnnouncementCmd struct {
	types []string
	reply actor.Reply[map[string]string]
}
type roomNextIDCmd struct{ reply actor.Reply[types.ClientID] }
type roomAddClientCmd struct {
	client   *Client
	imageURL string
	reply    actor.Reply[struct{}]
}
type roomRemoveClientCmd struct {
	id    types.ClientID
	reply actor.Reply[struct{}]
}
type roomAnnounceCmd struct {
	sender           wire.Participant
	announcementType string
	text             string
	reply            actor.Reply[struct{}]
}
type roomSendMessageCmd struct {
	sender      wire.Participant
	messageType string
	text        string
	reply       actor.Reply[struct{}]
}
type roomBanCmd struct {
	from   string
	victim string
	reply  actor.Reply[struct{}]
}
type roomDestroyCmd struct{ reply actor.Reply[struct{}] }

type photoResult struct {
	url string
	ok  bool
}

func (roomStatusCmd) roomCommand()           {}
func (roomCountCmd) roomCommand()            {}
func (roomParticipantsCmd) roomCommand()     {}
func (roomPhotoCmd) roomCommand()            {}
func (roomLastAnnouncementCmd) roomCommand() {}
func (roomNextIDCmd) roomCommand()           {}
func (roomAddClientCmd) roomCommand()        {}
func (roomRemoveClientCmd) roomCommand()     {}
func (roomAnnounceCmd) roomCommand()         {}
func (roomSendMessageCmd) roomCommand()      {}
func (roomBanCmd) roomCommand()              {}
func (roomDestroyCmd) roomCommand()          {}

// RoomHandle is the outward face of a room actor: the uid, the shared
// immutable secret, and the command mailbox. Handles are cheap to copy and
// safe for concurrent use.
type RoomHandle struct {
	ID     types.RoomID
	secret string
	mb     *actor.Mailbox[roomCommand]
}

// Secret returns the moderator token. It is published immutably at creation
// so client actors can compare it locally without a command round-trip.
func (r *RoomHandle) Secret() string {
	return r.secret
}

// Status returns the room snapshot.
func (r *RoomHandle) Status(ctx context.Context) (wire.RoomInfo, error) {
	cmd := roomStatusCmd{reply: actor.NewReply[wire.RoomInfo]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return wire.RoomInfo{}, err
	}
	return cmd.reply.Await(ctx)
}

// Count returns the current participant count.
func (r *RoomHandle) Count(ctx context.Context) (int, error) {
	cmd := roomCountCmd{reply: actor.NewReply[int]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return 0, err
	}
	return cmd.reply.Await(ctx)
}

// Participants returns the participant identities, in no particular order.
func (r *RoomHandle) Participants(ctx context.Context) ([]wire.Participant, error) {
	cmd := roomParticipantsCmd{reply: actor.NewReply[[]wire.Participant]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.Await(ctx)
}

// Photo returns the image URL registered for a username at join time.
func (r *RoomHandle) Photo(ctx context.Context, username string) (string, bool, error) {
	cmd := roomPhotoCmd{username: username, reply: actor.NewReply[photoResult]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return "", false, err
	}
	res, err := cmd.reply.Await(ctx)
	return res.url, res.ok, err
}

// LastAnnouncement returns the most recent announcement text per requested
// type; absent types are omitted from the result.
func (r *RoomHandle) LastAnnouncement(ctx context.Context, announcementTypes []string) (map[string]string, error) {
	cmd := roomLastAnnouncementCmd{types: announcementTypes, reply: actor.NewReply[map[string]string]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.reply.Await(ctx)
}

// NextID allocates the next client identifier. IDs strictly increase and
// are never reused.
func (r *RoomHandle) NextID(ctx context.Context) (types.ClientID, error) {
	cmd := roomNextIDCmd{reply: actor.NewReply[types.ClientID]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return 0, err
	}
	return cmd.reply.Await(ctx)
}

// AddClient registers a client and broadcasts its join event.
func (r *RoomHandle) AddClient(ctx context.Context, client *Client, imageURL string) error {
	cmd := roomAddClientCmd{client: client, imageURL: imageURL, reply: actor.NewReply[struct{}]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return err
	}
	_, err := cmd.reply.Await(ctx)
	return err
}

// Destroy tears the room down. Idempotent.
func (r *RoomHandle) Destroy(ctx context.Context) error {
	cmd := roomDestroyCmd{reply: actor.NewReply[struct{}]()}
	if err := r.mb.Send(ctx, cmd); err != nil {
		return err
	}
	_, err := cmd.reply.Await(ctx)
	return err
}

// PostRemoveClient is the fire-and-forget removal a detaching client sends
// back to its room.
func (r *RoomHandle) PostRemoveClient(id types.ClientID) {
	r.mb.Post(roomRemoveClientCmd{id: id, reply: actor.NewReply[struct{}]()})
}

// PostAnnounce publishes an announcement without awaiting it.
func (r *RoomHandle) PostAnnounce(sender wire.Participant, announcementType, text string) {
	r.mb.Post(roomAnnounceCmd{sender: sender, announcementType: announcementType, text: text, reply: actor.NewReply[struct{}]()})
}

// PostSendMessage publishes a chat message without awaiting it.
func (r *RoomHandle) PostSendMessage(sender wire.Participant, messageType, text string) {
	r.mb.Post(roomSendMessageCmd{sender: sender, messageType: messageType, text: text, reply: actor.NewReply[struct{}]()})
}

// PostBan bans every participant whose username equals victim.
func (r *RoomHandle) PostBan(from, victim string) {
	r.mb.Post(roomBanCmd{from: from, victim: victim, reply: actor.NewReply[struct{}]()})
}

// PostDestroy fires the destroy without awaiting it.
func (r *RoomHandle) PostDestroy() {
	r.mb.Post(roomDestroyCmd{reply: actor.NewReply[struct{}]()})
}

// --- Room actor ---

// roomActor is the state owned exclusively by the room goroutine.
type roomActor struct {
	cfg       RoomConfig
	name      string
	mb        *actor.Mailbox[roomCommand]
	clients   map[types.ClientID]*Client
	photos    map[string]string
	announced map[string]string
	msgCount  uint64
	nextID    types.ClientID
	destroyed bool
	postTypes set.Set[string]
	poster    *webhook.Poster
	detach    func(types.RoomID)
}

// NewRoom creates the room actor and returns its handle. The detach
// callback is invoked (fire-and-forget, by the actor) when the room
// destroys itself so the hub can drop its registry entry; it must tolerate
// the entry being gone already.
func NewRoom(cfg RoomConfig, detach func(types.RoomID)) *RoomHandle {
	mb := actor.NewMailbox[roomCommand]()
	handle := &RoomHandle{ID: cfg.UID, secret: cfg.Secret, mb: mb}

	r := &roomActor{
		cfg:       cfg,
		name:      cfg.UID.Name(),
		mb:        mb,
		clients:   make(map[types.ClientID]*Client),
		photos:    make(map[string]string),
		announced: make(map[string]string),
		postTypes: set.New(cfg.PostTypes...),
		detach:    detach,
	}
	if cfg.Post != "" {
		r.poster = webhook.NewPoster(cfg.Post)
	}

	go r.run()
	return handle
}

func (r *roomActor) run() {
	ctx := context.Background()
	logging.Info(ctx, "Room created",
		zap.String("room", string(r.cfg.UID)),
		zap.String("post", r.cfg.Post))

	// Creation side effect: mirror the room birth, regardless of postTypes.
	r.postModeration(wire.RoomCreated(r.name))

	for {
		cmd, ok := r.mb.Receive()
		if !ok {
			logging.Info(ctx, "Room actor stopped", zap.String("room", string(r.cfg.UID)))
			return
		}
		r.handle(ctx, cmd)
	}
}

func (r *roomActor) handle(ctx context.Context, cmd roomCommand) {
	switch c := cmd.(type) {
	case roomStatusCmd:
		c.reply.Resolve(r.status())
	case roomCountCmd:
		c.reply.Resolve(len(r.clients))
	case roomParticipantsCmd:
		c.reply.Resolve(r.participants())
	case roomPhotoCmd:
		url, ok := r.photos[c.username]
		c.reply.Resolve(photoResult{url: url, ok: ok})
	case roomLastAnnouncementCmd:
		c.reply.Resolve(r.lastAnnouncements(c.types))
	case roomNextIDCmd:
		r.nextID++
		c.reply.Resolve(r.nextID)
	case roomAddClientCmd:
		r.addClient(ctx, c.client, c.imageURL)
		c.reply.Resolve(struct{}{})
	case roomRemoveClientCmd:
		r.removeClient(ctx, c.id)
		c.reply.Resolve(struct{}{})
	case roomAnnounceCmd:
		r.announce(c.sender, c.announcementType, c.text)
		c.reply.Resolve(struct{}{})
	case roomSendMessageCmd:
		r.sendMessage(c.sender, c.messageType, c.text)
		c.reply.Resolve(struct{}{})
	case roomBanCmd:
		r.ban(ctx, c.from, c.victim)
		c.reply.Resolve(struct{}{})
	case roomDestroyCmd:
		r.destroy(ctx)
		c.reply.Resolve(struct{}{})
	}
}

func (r *roomActor) status() wire.RoomInfo {
	return wire.RoomInfo{
		Room:         string(r.cfg.UID),
		Participants: r.participants(),
		Messages:     r.msgCount,
	}
}

func (r *roomActor) participants() []wire.Participant {
	result := make([]wire.Participant, 0, len(r.clients))
	for _, client := range r.clients {
		result = append(result, client.me)
	}
	return result
}

func (r *roomActor) lastAnnouncements(announcementTypes []string) map[string]string {
	result := make(map[string]string, len(announcementTypes))
	for _, t := range announcementTypes {
		if text, ok := r.announced[t]; ok {
			result[t] = text
		}
	}
	return result
}

func (r *roomActor) addClient(ctx context.Context, client *Client, imageURL string) {
	if r.destroyed {
		// A join raced the destroy; the client never made it in.
		client.PostClose()
		return
	}
	if client.me.HasUsername() && imageURL != "" {
		r.photos[*client.me.Username] = imageURL
	}
	r.clients[client.id] = client
	// The join event is broadcast after insertion so the joiner sees its
	// own join and the count reflects the post-insertion size.
	r.broadcast(wire.NewJoinEvent(client.me, len(r.clients)))

	metrics.RoomParticipants.WithLabelValues(string(r.cfg.UID)).Set(float64(len(r.clients)))
	logging.Info(ctx, "Room: client added",
		zap.String("room", string(r.cfg.UID)),
		zap.Uint64("client_id", uint64(client.id)),
		zap.Int("size", len(r.clients)))
}

func (r *roomActor) removeClient(ctx context.Context, id types.ClientID) {
	client, ok := r.clients[id]
	if !ok {
		return
	}
	delete(r.clients, id)
	// Departures always announce a leave carrying the post-removal count,
	// whether they came from a clean leave, a ban, or a ping timeout.
	r.broadcast(wire.NewLeaveEvent(client.me, len(r.clients)))

	metrics.RoomParticipants.WithLabelValues(string(r.cfg.UID)).Set(float64(len(r.clients)))
	logging.Info(ctx, "Room: client removed",
		zap.String("room", string(r.cfg.UID)),
		zap.Uint64("client_id", uint64(id)),
		zap.Int("size", len(r.clients)))
}

func (r *roomActor) announce(sender wire.Participant, announcementType, text string) {
	if !sender.HasUsername() {
		return
	}
	now := wire.Now()
	r.msgCount++
	r.announced[announcementType] = text
	r.postUser(wire.Message{
		Textroom: wire.Announcement,
		Room:     r.name,
		Type:     announcementType,
		Text:     text,
		Date:     now,
		From:     *sender.Username,
	}, announcementType)
	r.broadcast(wire.NewAnnouncementEvent(now, text, announcementType))
}

func (r *roomActor) sendMessage(sender wire.Participant, messageType, text string) {
	if !sender.HasUsername() || !sender.HasDisplay() {
		return
	}
	now := wire.Now()
	r.msgCount++
	r.postUser(wire.Message{
		Textroom: wire.ChatMessage,
		Room:     r.name,
		Type:     messageType,
		Text:     text,
		Date:     now,
		From:     *sender.Username,
	}, messageType)
	r.broadcast(wire.NewMessageEvent(*sender.Username, *sender.Display, now, text, messageType))
}

func (r *roomActor) ban(ctx context.Context, from, victim string) {
	logging.Info(ctx, "Room: ban requested",
		zap.String("room", string(r.cfg.UID)),
		zap.String("from", from),
		zap.String("victim", victim))

	banned, err := json.Marshal(wire.NewBannedEvent())
	if err != nil {
		logging.Error(ctx, "Failed to marshal banned event", zap.Error(err))
		return
	}
	for _, client := range r.clients {
		if client.me.HasUsername() && *client.me.Username == victim {
			client.PostSend(banned)
			client.PostLeave()
		}
	}
	// Moderation posts bypass the postTypes filter.
	r.postModeration(wire.Ban(r.name, victim, from))
}

func (r *roomActor) destroy(ctx context.Context) {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.broadcast(wire.NewDestroyedEvent())
	// Each client sees the destroyed event first, then its sink closes.
	for _, client := range r.clients {
		client.PostLeave()
	}
	r.clients = make(map[types.ClientID]*Client)
	r.detach(r.cfg.UID)

	metrics.RoomParticipants.DeleteLabelValues(string(r.cfg.UID))
	logging.Info(ctx, "Room destroyed", zap.String("room", string(r.cfg.UID)))

	r.postModeration(wire.RoomDestroyed(r.name))

	// Commands already queued still drain; anything sent afterwards fails
	// with the broken-channel condition callers read as "room gone".
	r.mb.Close()
}

// broadcast serializes the event once and fire-and-forgets it to every
// attached client. Write failures surface inside the client actor, which
// closes itself and sends its own RemoveClient back here.
func (r *roomActor) broadcast(event wire.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal broadcast event", zap.Error(err))
		return
	}
	for _, client := range r.clients {
		client.PostSend(data)
	}
	metrics.BroadcastEvents.WithLabelValues(eventName(event)).Inc()
}

func eventName(event wire.Event) string {
	switch event.(type) {
	case wire.AnnouncementEvent:
		return wire.EventAnnouncement
	case wire.BannedEvent:
		return wire.EventBanned
	case wire.DestroyedEvent:
		return wire.EventDestroyed
	case wire.JoinEvent:
		return wire.EventJoined
	case wire.LeaveEvent:
		return wire.EventLeft
	case wire.MessageEvent:
		return wire.EventMessage
	default:
		return "unknown"
	}
}

// postUser mirrors a user-originated message, subject to the postTypes
// filter: an empty filter admits everything.
func (r *roomActor) postUser(message wire.Message, messageType string) {
	if r.poster == nil {
		return
	}
	if r.postTypes.Len() > 0 && !r.postTypes.Has(messageType) {
		return
	}
	r.poster.Post(message)
}

// postModeration mirrors a moderation message unconditionally.
func (r *roomActor) postModeration(message wire.Message) {
	if r.poster == nil {
		return
	}
	r.poster.Post(message)
}
