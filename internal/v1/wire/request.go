// Package wire defines the tagged JSON vocabulary spoken over each
// participant socket (requests, responses, events), the webhook payload
// mirrored to an external system of record, and the query parameter
// structs of the HTTP control surface. Every socket schema carries the
// discriminator field "textroom".
package wire

import (
	"encoding/json"
	"fmt"
)

// Request kinds, the values of the "textroom" discriminator on inbound
// frames.
const (
	RequestMessage      = "message"
	RequestAnnouncement = "announcement"
	RequestBan          = "ban"
	RequestLeave        = "leave"
)

// Request is a decoded inbound frame. Which fields are meaningful depends
// on Textroom; DecodeRequest enforces the per-kind required fields. The
// transaction is an opaque echo token, never interpreted by the server.
type Request struct {
	Textroom    string `json:"textroom"`
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	Secret      string `json:"secret,omitempty"`
	Username    string `json:"username,omitempty"`
	Transaction string `json:"transaction,omitempty"`
}

// rawRequest distinguishes absent fields from empty strings during decode.
type rawRequest struct {
	Textroom    *string `json:"textroom"`
	Type        *string `json:"type"`
	Text        *string `json:"text"`
	Secret      *string `json:"secret"`
	Username    *string `json:"username"`
	Transaction *string `json:"transaction"`
}

// DecodeRequest parses one text frame into a Request, validating the
// fields the declared kind requires.
func DecodeRequest(data []byte) (Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, err
	}
	if raw.Textroom == nil {
		return Request{}, fmt.Errorf("missing field `textroom`")
	}

	req := Request{Textroom: *raw.Textroom}
	if raw.Transaction != nil {
		req.Transaction = *raw.Transaction
	}

	need := func(name string, v *string) error {
		if v == nil {
			return fmt.Errorf("missing field `%s`", name)
		}
		return nil
	}

	switch req.Textroom {
	case RequestMessage:
		if err := need("type", raw.Type); err != nil {
			return Request{}, err
		}
		if err := need("text", raw.Text); err != nil {
			return Request{}, err
		}
		req.Type, req.Text = *raw.Type, *raw.Text
	case RequestAnnouncement:
		if err := need("type", raw.Type); err != nil {
			return Request{}, err
		}
		if err := need("text", raw.Text); err != nil {
			return Request{}, err
		}
		if err := need("secret", raw.Secret); err != nil {
			return Request{}, err
		}
		req.Type, req.Text, req.Secret = *raw.Type, *raw.Text, *raw.Secret
	case RequestBan:
		if err := need("username", raw.Username); err != nil {
			return Request{}, err
		}
		if err := need("secret", raw.Secret); err != nil {
			return Request{}, err
		}
		req.Username, req.Secret = *raw.Username, *raw.Secret
	case RequestLeave:
		// No payload beyond the optional transaction.
	default:
		return Request{}, fmt.Errorf("unknown request `%s`", req.Textroom)
	}
	return req, nil
}

// RecoverTransaction attempts a lenient second decode of a frame that
// failed DecodeRequest, recovering just the transaction so the error
// response can still echo it.
func RecoverTransaction(data []byte) string {
	var probe struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.Transaction
}
