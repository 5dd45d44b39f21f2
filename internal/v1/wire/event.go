package wire

// Event kinds, the values of the "textroom" discriminator on outbound
// events broadcast to every client in a room.
const (
	EventAnnouncement = "announcement"
	EventBanned       = "banned"
	EventDestroyed    = "destroyed"
	EventJoined       = "join"
	EventLeft         = "leave"
	EventMessage      = "message"
)

// Participant is an end-user identity. Neither field is unique; ban
// targets are matched on Username. Absent fields serialize as null.
type Participant struct {
	Username *string `json:"username"`
	Display  *string `json:"display"`
}

// HasUsername reports whether the participant carries a username.
func (p Participant) HasUsername() bool {
	return p.Username != nil
}

// HasDisplay reports whether the participant carries a display name.
func (p Participant) HasDisplay() bool {
	return p.Display != nil
}

// Event is the marker for outbound room events; each kind has its own
// struct so the JSON schema of one kind never leaks into another.
type Event interface {
	event()
}

// AnnouncementEvent carries a moderator announcement.
type AnnouncementEvent struct {
	Textroom string    `json:"textroom"`
	Date     Timestamp `json:"date"`
	Text     string    `json:"text"`
	Type     string    `json:"type"`
}

// BannedEvent is sent to a client that has just been banned.
type BannedEvent struct {
	Textroom string `json:"textroom"`
}

// DestroyedEvent is the last event a room ever broadcasts.
type DestroyedEvent struct {
	Textroom string `json:"textroom"`
}

// JoinEvent announces a new participant; Participants is the room size
// immediately after the join.
type JoinEvent struct {
	Textroom     string  `json:"textroom"`
	Username     *string `json:"username"`
	Display      *string `json:"display"`
	Participants int     `json:"participants"`
}

// LeaveEvent announces a departure; Participants is the room size
// immediately after the removal.
type LeaveEvent struct {
	Textroom     string  `json:"textroom"`
	Username     *string `json:"username"`
	Display      *string `json:"display"`
	Participants int     `json:"participants"`
}

// MessageEvent carries a user chat message.
type MessageEvent struct {
	Textroom string    `json:"textroom"`
	From     string    `json:"from"`
	Display  string    `json:"display"`
	Date     Timestamp `json:"date"`
	Text     string    `json:"text"`
	Type     string    `json:"type"`
}

func (AnnouncementEvent) event() {}
func (BannedEvent) event()       {}
func (DestroyedEvent) event()    {}
func (JoinEvent) event()         {}
func (LeaveEvent) event()        {}
func (MessageEvent) event()      {}

// NewAnnouncementEvent stamps the discriminator on an announcement event.
func NewAnnouncementEvent(date Timestamp, text, announcementType string) AnnouncementEvent {
	return AnnouncementEvent{Textroom: EventAnnouncement, Date: date, Text: text, Type: announcementType}
}

// NewBannedEvent returns the banned event.
func NewBannedEvent() BannedEvent {
	return BannedEvent{Textroom: EventBanned}
}

// NewDestroyedEvent returns the destroyed event.
func NewDestroyedEvent() DestroyedEvent {
	return DestroyedEvent{Textroom: EventDestroyed}
}

// NewJoinEvent returns the join event for a participant.
func NewJoinEvent(me Participant, participants int) JoinEvent {
	return JoinEvent{Textroom: EventJoined, Username: me.Username, Display: me.Display, Participants: participants}
}

// NewLeaveEvent returns the leave event for a participant.
func NewLeaveEvent(me Participant, participants int) LeaveEvent {
	return LeaveEvent{Textroom: EventLeft, Username: me.Username, Display: me.Display, Participants: participants}
}

// NewMessageEvent returns the chat message event.
func NewMessageEvent(from, display string, date Timestamp, text, messageType string) MessageEvent {
	return MessageEvent{Textroom: EventMessage, From: from, Display: display, Date: date, Text: text, Type: messageType}
}
