package wire

// Webhook payload categories and moderation types.
const (
	Moderate          = "moderate"
	Announcement      = "announcement"
	ChatMessage       = "message"
	TypeBan           = "ban"
	TypeRoomCreated   = "room_created"
	TypeRoomDestroyed = "room_destroyed"
)

// Message is the webhook payload mirrored to the external system of
// record. Room is the final path segment of the room uid, not the full
// hierarchical id.
type Message struct {
	Textroom string    `json:"textroom"`
	Room     string    `json:"room"`
	Type     string    `json:"type"`
	Text     string    `json:"text"`
	Date     Timestamp `json:"date"`
	From     string    `json:"from"`
}

// RoomCreated is the moderation post emitted when a room actor starts.
func RoomCreated(room string) Message {
	return Message{
		Textroom: Moderate,
		Room:     room,
		Type:     TypeRoomCreated,
		Date:     Now(),
	}
}

// RoomDestroyed is the final moderation post of a destroyed room.
func RoomDestroyed(room string) Message {
	return Message{
		Textroom: Moderate,
		Room:     room,
		Type:     TypeRoomDestroyed,
		Date:     Now(),
	}
}

// Ban is the moderation post recording a ban; text carries the victim's
// username and from the requester's (possibly empty).
func Ban(room, victim, from string) Message {
	return Message{
		Textroom: Moderate,
		Room:     room,
		Type:     TypeBan,
		Text:     victim,
		Date:     Now(),
		From:     from,
	}
}

// RoomInfo is the status snapshot of one room.
type RoomInfo struct {
	Room         string        `json:"room"`
	Participants []Participant `json:"participants"`
	Messages     uint64        `json:"messages"`
}
