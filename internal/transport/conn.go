// Package transport binds the Job Registry to the external client/server
// message protocol: a pluggable bidirectional frame channel, a JSON schema
// gate on everything coming in from a client, and a Session that pumps
// subscription batches back out.
package transport

// Conn is the minimal bidirectional message channel a Session drives.
// *websocket.Conn satisfies this directly in production; tests use an
// in-process pipe so the protocol logic never needs a real socket.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}
