package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/set"

	"github.com/textroom/server/internal/v1/actor"
	"github.com/textroom/server/internal/v1/types"
	"github.com/textroom/server/internal/v1/wire"
)

func newTestRoom(t *testing.T, cfg RoomConfig) *RoomHandle {
	t.Helper()
	if cfg.UID == "" {
		cfg.UID = "/test/room"
	}
	room := NewRoom(cfg, func(types.RoomID) {})
	t.Cleanup(func() { _ = room.Destroy(context.Background()) })
	return room
}

func joinClient(t *testing.T, room *RoomHandle, username, display string) (*Client, *mockConn) {
	t.Helper()
	ctx := context.Background()

	conn := newMockConn()
	id, err := room.NextID(ctx)
	require.NoError(t, err)

	var me wire.Participant
	if username != "" {
		me.Username = &username
	}
	if display != "" {
		me.Display = &display
	}
	client := NewClient(conn, id, me, room, time.Minute)
	require.NoError(t, room.AddClient(ctx, client, ""))
	return client, conn
}

// sendFrame pushes one inbound text frame through the client's command
// loop; when it returns, any room command the frame produced is enqueued.
func sendFrame(t *testing.T, client *Client, frame string) {
	t.Helper()
	require.NoError(t, client.OnMessageReceived(context.Background(), websocket.TextMessage, []byte(frame)))
}

func TestJoin_BroadcastIncludesJoiner(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	_, conn1 := joinClient(t, room, "alice", "Alice")
	frame := conn1.nextFrame(t)
	assert.Equal(t, "join", frame["textroom"])
	assert.Equal(t, "alice", frame["username"])
	assert.Equal(t, float64(1), frame["participants"])

	_, conn2 := joinClient(t, room, "bob", "Bob")
	for _, conn := range []*mockConn{conn1, conn2} {
		frame := conn.nextFrame(t)
		assert.Equal(t, "join", frame["textroom"])
		assert.Equal(t, "bob", frame["username"])
		assert.Equal(t, float64(2), frame["participants"])
	}

	count, err := room.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestJoin_AnonymousParticipant(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	_, conn := joinClient(t, room, "", "")
	frame := conn.nextFrame(t)
	assert.Equal(t, "join", frame["textroom"])
	assert.Nil(t, frame["username"])
	assert.Nil(t, frame["display"])
}

func TestClientIDs_StrictlyIncrease(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})
	ctx := context.Background()

	var last types.ClientID
	for i := 0; i < 5; i++ {
		id, err := room.NextID(ctx)
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
}

func TestLeave_ConfirmsThenBroadcasts(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	_, conn1 := joinClient(t, room, "alice", "Alice")
	conn1.nextFrame(t)
	bob, conn2 := joinClient(t, room, "bob", "Bob")
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	sendFrame(t, bob, `{"textroom":"leave","transaction":"t1"}`)

	// The leaver is confirmed before its sink closes.
	frame := conn2.nextFrame(t)
	assert.Equal(t, "t1", frame["transaction"])
	assert.Equal(t, "left", frame["ok"])
	require.Eventually(t, conn2.isClosed, 2*time.Second, 5*time.Millisecond)

	// The rest of the room sees the departure with the post-removal count.
	frame = conn1.nextFrame(t)
	assert.Equal(t, "leave", frame["textroom"])
	assert.Equal(t, "bob", frame["username"])
	assert.Equal(t, float64(1), frame["participants"])

	count, err := room.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMessage_BroadcastAndCounted(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	alice, conn1 := joinClient(t, room, "alice", "Alice")
	conn1.nextFrame(t)
	_, conn2 := joinClient(t, room, "bob", "Bob")
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"message","type":"chat","text":"hi"}`)

	for _, conn := range []*mockConn{conn1, conn2} {
		frame := conn.nextFrame(t)
		assert.Equal(t, "message", frame["textroom"])
		assert.Equal(t, "alice", frame["from"])
		assert.Equal(t, "Alice", frame["display"])
		assert.Equal(t, "hi", frame["text"])
		assert.Equal(t, "chat", frame["type"])
		assert.Contains(t, frame, "date")
	}

	info, err := room.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Messages)
}

func TestMessage_RequiresFullIdentity(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	// Username without display: messages from this client are dropped.
	partial, conn := joinClient(t, room, "ghost", "")
	conn.nextFrame(t)

	sendFrame(t, partial, `{"textroom":"message","type":"chat","text":"boo"}`)

	info, err := room.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Messages)
}

func TestAnnouncement_SecretChecked(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s3cret"})

	alice, conn := joinClient(t, room, "alice", "Alice")
	conn.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"announcement","type":"info","text":"x","secret":"wrong","transaction":"t2"}`)
	frame := conn.nextFrame(t)
	assert.Equal(t, "t2", frame["transaction"])
	assert.Equal(t, "Secret does not match.", frame["error"])

	sendFrame(t, alice, `{"textroom":"announcement","type":"info","text":"welcome","secret":"s3cret"}`)
	frame = conn.nextFrame(t)
	assert.Equal(t, "announcement", frame["textroom"])
	assert.Equal(t, "welcome", frame["text"])
	assert.Equal(t, "info", frame["type"])
	assert.Contains(t, frame, "date")

	info, err := room.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Messages)
}

func TestAnnouncement_RequiresUsername(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	anon, conn := joinClient(t, room, "", "")
	conn.nextFrame(t)

	sendFrame(t, anon, `{"textroom":"announcement","type":"info","text":"x","secret":"s"}`)

	info, err := room.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Messages)
}

func TestLastAnnouncement_LatestPerType(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	alice, conn := joinClient(t, room, "alice", "Alice")
	conn.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"announcement","type":"info","text":"first","secret":"s"}`)
	sendFrame(t, alice, `{"textroom":"announcement","type":"info","text":"second","secret":"s"}`)
	sendFrame(t, alice, `{"textroom":"announcement","type":"alert","text":"fire","secret":"s"}`)

	got, err := room.LastAnnouncement(context.Background(), []string{"info", "alert", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"info": "second", "alert": "fire"}, got)
}

func TestBan_KicksEveryMatchingUsername(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	alice, conn1 := joinClient(t, room, "alice", "Alice")
	conn1.nextFrame(t)
	_, conn2 := joinClient(t, room, "bob", "Bob")
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"ban","username":"bob","secret":"s"}`)

	frame := conn2.nextFrame(t)
	assert.Equal(t, "banned", frame["textroom"])
	require.Eventually(t, conn2.isClosed, 2*time.Second, 5*time.Millisecond)

	frame = conn1.nextFrame(t)
	assert.Equal(t, "leave", frame["textroom"])
	assert.Equal(t, "bob", frame["username"])
	assert.Equal(t, float64(1), frame["participants"])

	count, err := room.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDestroy_NotifiesAndClosesClients(t *testing.T) {
	detached := make(chan types.RoomID, 1)
	room := NewRoom(RoomConfig{UID: "/doomed", Secret: "s"}, func(uid types.RoomID) {
		detached <- uid
	})

	_, conn := joinClient(t, room, "alice", "Alice")
	conn.nextFrame(t)

	require.NoError(t, room.Destroy(context.Background()))

	frame := conn.nextFrame(t)
	assert.Equal(t, "destroyed", frame["textroom"])
	require.Eventually(t, conn.isClosed, 2*time.Second, 5*time.Millisecond)

	select {
	case uid := <-detached:
		assert.Equal(t, types.RoomID("/doomed"), uid)
	case <-time.After(2 * time.Second):
		t.Fatal("detach callback never fired")
	}

	// The mailbox is closed; all further operations read as room gone.
	_, err := room.Count(context.Background())
	assert.Error(t, err)
	_, err = room.NextID(context.Background())
	assert.Error(t, err)
}

func TestDestroy_IsIdempotent(t *testing.T) {
	room := NewRoom(RoomConfig{UID: "/once", Secret: "s"}, func(types.RoomID) {})
	require.NoError(t, room.Destroy(context.Background()))
	assert.Error(t, room.Destroy(context.Background()))
}

func TestDestroy_SecondDestroyCommandIsNoOp(t *testing.T) {
	// Drives the actor state directly: a destroy command drained from the
	// queue after the room already destroyed itself must change nothing.
	mb := actor.NewMailbox[roomCommand]()
	handle := &RoomHandle{ID: "/twice", secret: "s", mb: mb}

	conn := newMockConn()
	client := NewClient(conn, 1, wire.Participant{}, handle, time.Minute)

	detached := 0
	r := &roomActor{
		cfg:       RoomConfig{UID: "/twice", Secret: "s"},
		name:      "twice",
		mb:        mb,
		clients:   map[types.ClientID]*Client{1: client},
		photos:    map[string]string{},
		announced: map[string]string{},
		postTypes: set.New[string](),
		detach:    func(types.RoomID) { detached++ },
	}

	ctx := context.Background()
	r.destroy(ctx)
	r.destroy(ctx)

	frame := conn.nextFrame(t)
	assert.Equal(t, "destroyed", frame["textroom"])
	require.Eventually(t, conn.isClosed, 2*time.Second, 5*time.Millisecond)

	// Exactly one destroyed broadcast and one detach reached the outside.
	select {
	case data := <-conn.written:
		t.Fatalf("unexpected extra frame: %s", data)
	default:
	}
	assert.Equal(t, 1, detached)
	assert.True(t, mb.Closed())
}

func TestWebhook_FilterAndModeration(t *testing.T) {
	posts := make(chan map[string]any, 16)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var v map[string]any
		_ = json.Unmarshal(body, &v)
		posts <- v
	}))
	defer sink.Close()

	nextPost := func() map[string]any {
		select {
		case v := <-posts:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("expected webhook post never arrived")
			return nil
		}
	}

	room := NewRoom(RoomConfig{
		UID:       "/hooked/room",
		Secret:    "s",
		Post:      sink.URL,
		PostTypes: []string{"chat"},
	}, func(types.RoomID) {})

	post := nextPost()
	assert.Equal(t, "moderate", post["textroom"])
	assert.Equal(t, "room_created", post["type"])
	assert.Equal(t, "room", post["room"])

	alice, conn1 := joinClient(t, room, "alice", "Alice")
	conn1.nextFrame(t)
	_, conn2 := joinClient(t, room, "bob", "Bob")
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	// Filtered out: "poll" is not in postTypes.
	sendFrame(t, alice, `{"textroom":"message","type":"poll","text":"q?"}`)
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"message","type":"chat","text":"hi"}`)
	conn1.nextFrame(t)
	conn2.nextFrame(t)

	post = nextPost()
	assert.Equal(t, "message", post["textroom"])
	assert.Equal(t, "chat", post["type"])
	assert.Equal(t, "hi", post["text"])
	assert.Equal(t, "alice", post["from"])
	assert.Equal(t, "room", post["room"])

	// Moderation posts bypass the filter.
	sendFrame(t, alice, `{"textroom":"ban","username":"bob","secret":"s"}`)
	post = nextPost()
	assert.Equal(t, "moderate", post["textroom"])
	assert.Equal(t, "ban", post["type"])
	assert.Equal(t, "bob", post["text"])
	assert.Equal(t, "alice", post["from"])

	require.NoError(t, room.Destroy(context.Background()))
	post = nextPost()
	assert.Equal(t, "moderate", post["textroom"])
	assert.Equal(t, "room_destroyed", post["type"])
}

func TestStatus_Snapshot(t *testing.T) {
	room := newTestRoom(t, RoomConfig{UID: "/snap", Secret: "s"})

	_, conn := joinClient(t, room, "alice", "Alice")
	conn.nextFrame(t)

	info, err := room.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/snap", info.Room)
	require.Len(t, info.Participants, 1)
	assert.Equal(t, "alice", *info.Participants[0].Username)
	assert.Equal(t, uint64(0), info.Messages)
}

func TestPhoto_RegisteredAtJoin(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})
	ctx := context.Background()

	conn := newMockConn()
	id, err := room.NextID(ctx)
	require.NoError(t, err)
	username, display := "alice", "Alice"
	client := NewClient(conn, id, wire.Participant{Username: &username, Display: &display}, room, time.Minute)
	require.NoError(t, room.AddClient(ctx, client, "https://example.com/alice.png"))
	conn.nextFrame(t)

	url, found, err := room.Photo(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "https://example.com/alice.png", url)

	_, found, err = room.Photo(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDecodeError_EchoesTransaction(t *testing.T) {
	room := newTestRoom(t, RoomConfig{Secret: "s"})

	alice, conn := joinClient(t, room, "alice", "Alice")
	conn.nextFrame(t)

	sendFrame(t, alice, `{"textroom":"message","type":"chat","transaction":"t7"}`)
	frame := conn.nextFrame(t)
	assert.Equal(t, "t7", frame["transaction"])
	assert.Equal(t, fmt.Sprintf("missing field `%s`", "text"), frame["error"])
}
