package lspclient

import (
	"context"
	"io"

	"github.com/sourcegraph/jsonrpc2"
)

// DialInMemory cross-wires a Client to an in-process fake server over a
// pair of io.Pipes, for tests (in this package and others, such as the
// server pool) that need a real *Client without spawning a child process.
// The returned *jsonrpc2.Conn is the server side; serverHandler answers
// whatever the Client sends it.
func DialInMemory(onServerRequest ServerRequestFunc, serverHandler jsonrpc2.Handler) (*Client, *jsonrpc2.Conn) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	clientStream := jsonrpc2.NewBufferedStream(&stdio{r: clientReader, w: clientWriter}, jsonrpc2.VSCodeObjectCodec{})
	serverStream := jsonrpc2.NewBufferedStream(&stdio{r: serverReader, w: serverWriter}, jsonrpc2.VSCodeObjectCodec{})

	client := newClient(clientStream, onServerRequest)
	server := jsonrpc2.NewConn(context.Background(), serverStream, serverHandler)

	return client, server
}
