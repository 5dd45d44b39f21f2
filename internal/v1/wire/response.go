package wire

// Response is the optional frame sent back to the requesting client.
// Exactly one of Ok or Error is set; Transaction echoes whatever opaque
// token the client sent.
type Response struct {
	Transaction string `json:"transaction,omitempty"`
	Ok          string `json:"ok,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Socket-level error strings. The trailing periods are part of the
// protocol.
const (
	okLeft              = "left"
	errSecretMismatch   = "Secret does not match."
	errRoomWasDestroyed = "Room was destroyed."
)

// LeftResponse confirms a successful leave.
func LeftResponse(transaction string) Response {
	return Response{Transaction: transaction, Ok: okLeft}
}

// SecretMismatchResponse rejects a request with a wrong room secret.
func SecretMismatchResponse(transaction string) Response {
	return Response{Transaction: transaction, Error: errSecretMismatch}
}

// RoomDestroyedResponse rejects a request that targets a destroyed room.
func RoomDestroyedResponse(transaction string) Response {
	return Response{Transaction: transaction, Error: errRoomWasDestroyed}
}

// ErrorResponse wraps an arbitrary error message, typically a decode
// failure.
func ErrorResponse(transaction, message string) Response {
	return Response{Transaction: transaction, Error: message}
}
