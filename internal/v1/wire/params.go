package wire

import (
	"fmt"
	"net/url"
	"strings"
)

// RequiredError reports a missing query parameter. The HTTP layer renders
// it as a 400 with the message unchanged.
type RequiredError struct {
	Name string
}

func (e RequiredError) Error() string {
	return fmt.Sprintf("%s is required.", e.Name)
}

// CreateParams configures a new room.
type CreateParams struct {
	Secret    string
	Post      string
	PostTypes []string
}

// DestroyParams authorizes a room destroy.
type DestroyParams struct {
	Secret string
}

// JoinParams identifies a joining participant. All fields are optional;
// Photo registration needs both Username and ImageURL.
type JoinParams struct {
	Username string
	Display  string
	ImageURL string
}

// LastAnnouncementParams selects the announcement types to look up.
type LastAnnouncementParams struct {
	Types []string
}

// PhotoParams looks up the photo of one username.
type PhotoParams struct {
	Username string
}

func require(q url.Values, name string) (string, error) {
	if !q.Has(name) {
		return "", RequiredError{Name: name}
	}
	return q.Get(name), nil
}

// list splits a single comma-delimited parameter value into its pieces.
func list(q url.Values, name string) []string {
	if !q.Has(name) {
		return nil
	}
	return strings.Split(q.Get(name), ",")
}

// ParseCreateParams reads CreateParams from a query string.
func ParseCreateParams(q url.Values) (CreateParams, error) {
	secret, err := require(q, "secret")
	if err != nil {
		return CreateParams{}, err
	}
	return CreateParams{
		Secret:    secret,
		Post:      q.Get("post"),
		PostTypes: list(q, "postTypes"),
	}, nil
}

// ParseDestroyParams reads DestroyParams from a query string.
func ParseDestroyParams(q url.Values) (DestroyParams, error) {
	secret, err := require(q, "secret")
	if err != nil {
		return DestroyParams{}, err
	}
	return DestroyParams{Secret: secret}, nil
}

// ParseJoinParams reads JoinParams from a query string.
func ParseJoinParams(q url.Values) JoinParams {
	return JoinParams{
		Username: q.Get("username"),
		Display:  q.Get("display"),
		ImageURL: q.Get("imageUrl"),
	}
}

// Participant converts the join parameters into a wire identity; empty
// strings mean the field was absent.
func (p JoinParams) Participant() Participant {
	var me Participant
	if p.Username != "" {
		username := p.Username
		me.Username = &username
	}
	if p.Display != "" {
		display := p.Display
		me.Display = &display
	}
	return me
}

// ParseLastAnnouncementParams reads LastAnnouncementParams from a query
// string.
func ParseLastAnnouncementParams(q url.Values) LastAnnouncementParams {
	return LastAnnouncementParams{Types: list(q, "types")}
}

// ParsePhotoParams reads PhotoParams from a query string.
func ParsePhotoParams(q url.Values) (PhotoParams, error) {
	username, err := require(q, "username")
	if err != nil {
		return PhotoParams{}, err
	}
	return PhotoParams{Username: username}, nil
}
