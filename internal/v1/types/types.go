// Package types defines the shared identifier types used across the
// textroom server. Keeping them in one place avoids import cycles between
// the session, wire, and webhook packages.
package types

import "strings"

// RoomID is the unique hierarchical identifier of a room. Slashes are
// allowed; the trailing segment is the room name used in webhook payloads.
type RoomID string

// ClientID identifies one socket session within a room. IDs are allocated
// by the room actor, strictly increase, and are never reused.
type ClientID uint64

// Name returns the trailing path segment of the room id.
func (id RoomID) Name() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
