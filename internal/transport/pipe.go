package transport

import (
	"errors"
	"sync"
)

// Frame opcodes, matching the RFC 6455 values gorilla/websocket exposes as
// TextMessage/BinaryMessage, so a Pipe's Conn is interchangeable with a
// real websocket connection from a Session's point of view.
const (
	TextMessage   = 1
	BinaryMessage = 2
)

// ErrPipeClosed is returned by ReadMessage/WriteMessage once either end of
// a Pipe has been closed.
var ErrPipeClosed = errors.New("transport: pipe closed")

// Pipe returns two connected in-process Conns, each one's WriteMessage
// feeding the other's ReadMessage. Closing either end closes both.
func Pipe() (Conn, Conn) {
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)
	stop := make(chan struct{})

	var once sync.Once

	closeFn := func() error {
		once.Do(func() { close(stop) })

		return nil
	}

	a := &pipeConn{read: bToA, write: aToB, stop: stop, closeFn: closeFn}
	b := &pipeConn{read: aToB, write: bToA, stop: stop, closeFn: closeFn}

	return a, b
}

type pipeConn struct {
	read, write chan []byte
	stop        chan struct{}
	closeFn     func() error
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-p.read:
		return TextMessage, data, nil
	case <-p.stop:
		return 0, nil, ErrPipeClosed
	}
}

func (p *pipeConn) WriteMessage(_ int, data []byte) error {
	select {
	case p.write <- data:
		return nil
	case <-p.stop:
		return ErrPipeClosed
	}
}

func (p *pipeConn) Close() error {
	return p.closeFn()
}
