// Package hub fans messages out to websocket clients over channels. The
// dashboard uses one hub per push stream (alerts, status).
package hub

// MessageType is the websocket frame type a message is sent as.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame, e.g. a JPEG snapshot.
	BinaryMessage
)

// Message is one broadcast payload. Data is shared by every client and must
// not be modified after it is broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
