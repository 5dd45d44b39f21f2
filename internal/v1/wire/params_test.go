package wire

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	tr "github.com/stretchr/testify/require"
)

func TestParseCreateParams(t *testing.T) {
	q, err := url.ParseQuery("secret=s3cret&post=https://example.com/sink&postTypes=chat,poll")
	tr.NoError(t, err)

	params, err := ParseCreateParams(q)
	tr.NoError(t, err)
	assert.Equal(t, "s3cret", params.Secret)
	assert.Equal(t, "https://example.com/sink", params.Post)
	assert.Equal(t, []string{"chat", "poll"}, params.PostTypes)
}

func TestParseCreateParams_SecretRequired(t *testing.T) {
	q := url.Values{"post": {"https://example.com"}}
	_, err := ParseCreateParams(q)
	tr.Error(t, err)
	assert.Equal(t, "secret is required.", err.Error())
}

func TestParseCreateParams_EmptySecretIsPresent(t *testing.T) {
	q, err := url.ParseQuery("secret=")
	tr.NoError(t, err)

	params, err := ParseCreateParams(q)
	tr.NoError(t, err)
	assert.Equal(t, "", params.Secret)
	assert.Nil(t, params.PostTypes)
}

func TestParseDestroyParams(t *testing.T) {
	_, err := ParseDestroyParams(url.Values{})
	tr.Error(t, err)
	assert.Equal(t, "secret is required.", err.Error())

	params, err := ParseDestroyParams(url.Values{"secret": {"s"}})
	tr.NoError(t, err)
	assert.Equal(t, "s", params.Secret)
}

func TestJoinParams_Participant(t *testing.T) {
	q, err := url.ParseQuery("username=alice&display=Alice&imageUrl=https://example.com/a.png")
	tr.NoError(t, err)

	params := ParseJoinParams(q)
	assert.Equal(t, "https://example.com/a.png", params.ImageURL)

	me := params.Participant()
	tr.True(t, me.HasUsername())
	tr.True(t, me.HasDisplay())
	assert.Equal(t, "alice", *me.Username)
	assert.Equal(t, "Alice", *me.Display)
}

func TestJoinParams_AnonymousParticipant(t *testing.T) {
	me := ParseJoinParams(url.Values{}).Participant()
	assert.False(t, me.HasUsername())
	assert.False(t, me.HasDisplay())
}

func TestParseLastAnnouncementParams(t *testing.T) {
	q := url.Values{"types": {"info,alert"}}
	params := ParseLastAnnouncementParams(q)
	assert.Equal(t, []string{"info", "alert"}, params.Types)

	assert.Nil(t, ParseLastAnnouncementParams(url.Values{}).Types)
}

func TestParsePhotoParams(t *testing.T) {
	_, err := ParsePhotoParams(url.Values{})
	tr.Error(t, err)
	assert.Equal(t, "username is required.", err.Error())

	params, err := ParsePhotoParams(url.Values{"username": {"alice"}})
	tr.NoError(t, err)
	assert.Equal(t, "alice", params.Username)
}
