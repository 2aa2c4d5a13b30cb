// Package lspclient implements a JSON-RPC 2.0 client bound to a single
// language server child process over stdio: request/response multiplexing
// by id, notifications, server-initiated requests, and per-call deadlines.
package lspclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DefaultTimeout is the deadline applied to a request whose context carries
// none.
const DefaultTimeout = 30 * time.Second

// ServerRequestFunc handles a request the server initiates against the
// client, such as workspace/configuration.
type ServerRequestFunc func(ctx context.Context, method string, params json.RawMessage) (any, error)

// LaunchSpec describes how to start a language server child process.
type LaunchSpec struct {
	Executable string
	Args       []string
	Env        []string
}

// Client binds one language server child process's stdio and multiplexes
// JSON-RPC 2.0 traffic over it. A Client that returns ErrProtocol from any
// call is dead and must be discarded; the pool is responsible for respawning.
type Client struct {
	cmd             *exec.Cmd
	conn            *jsonrpc2.Conn
	dead            atomic.Bool
	onServerRequest ServerRequestFunc
}

// stdio adapts a child process's separate stdin/stdout pipes into the single
// io.ReadWriteCloser jsonrpc2's buffered stream expects.
type stdio struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s *stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *stdio) Close() error {
	werr := s.w.Close()
	rerr := s.r.Close()

	if werr != nil {
		return werr
	}

	return rerr
}

// Dial starts spec's executable and returns a Client bound to its stdio.
// onServerRequest handles requests the server initiates; it may be nil if
// the pool doesn't expect any for this language.
func Dial(ctx context.Context, spec LaunchSpec, onServerRequest ServerRequestFunc) (*Client, error) {
	cmd := exec.CommandContext(ctx, spec.Executable, spec.Args...) //nolint:gosec // executable comes from operator-declared launch specs, not user input.
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("lspclient: stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lspclient: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("lspclient: start %s: %w", spec.Executable, err)
	}

	// VSCodeObjectCodec frames each message with the Content-Length header
	// LSP requires; jsonrpc2.Conn handles id-based request/response
	// multiplexing and dispatches unsolicited server requests to our Handler.
	stream := jsonrpc2.NewBufferedStream(&stdio{r: stdout, w: stdin}, jsonrpc2.VSCodeObjectCodec{})
	c := newClient(stream, onServerRequest)
	c.cmd = cmd

	return c, nil
}

// newClient wires a Client around an already-framed stream. Dial uses this
// for real child processes; tests use it directly with an in-memory stream.
func newClient(stream jsonrpc2.ObjectStream, onServerRequest ServerRequestFunc) *Client {
	c := &Client{onServerRequest: onServerRequest}
	c.conn = jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(c.handle))

	go func() {
		<-c.conn.DisconnectNotify()
		c.dead.Store(true)
	}()

	return c
}

func (c *Client) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if c.onServerRequest == nil {
		if req.Notif {
			return nil, nil
		}

		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	return c.onServerRequest(ctx, req.Method, params)
}

// Alive reports whether the client's connection is still usable.
func (c *Client) Alive() bool { return !c.dead.Load() }

// Pid returns the child process's process id, for logging.
func (c *Client) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}

	return c.cmd.Process.Pid
}

// Request issues a call and waits for the matching response, applying
// DefaultTimeout when ctx carries no deadline. A deadline elapsing returns
// ErrTimeout; a transport failure marks the client dead and returns
// ErrProtocol. An application-level error reply from the server (the
// connection itself is fine) is returned unwrapped as a *jsonrpc2.Error.
func (c *Client) Request(ctx context.Context, method string, params, result any) error {
	if c.dead.Load() {
		return ErrDead
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	return c.classify(c.conn.Call(ctx, method, params, result))
}

// Notify sends a one-way notification; there is no response to await.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if c.dead.Load() {
		return ErrDead
	}

	return c.classify(c.conn.Notify(ctx, method, params))
}

func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	c.dead.Store(true)

	return fmt.Errorf("%w: %s", ErrProtocol, err)
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	var result protocol.InitializeResult
	if err := c.Request(ctx, "initialize", params, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Initialized sends the initialized notification that completes the
// handshake.
func (c *Client) Initialized(ctx context.Context) error {
	return c.Notify(ctx, "initialized", &protocol.InitializedParams{})
}

// DidOpen notifies the server that uri is open with the given content.
func (c *Client) DidOpen(ctx context.Context, uri, languageID, text string) error {
	return c.Notify(ctx, "textDocument/didOpen", &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentUri(uri),
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
}

// DocumentSymbol requests the symbol tree for uri. The server is assumed to
// have advertised hierarchicalDocumentSymbolSupport in its init_params.
func (c *Client) DocumentSymbol(ctx context.Context, uri string) ([]protocol.DocumentSymbol, error) {
	params := &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
	}

	var result []protocol.DocumentSymbol
	if err := c.Request(ctx, "textDocument/documentSymbol", params, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// References requests every location referencing the symbol at uri:pos.
func (c *Client) References(ctx context.Context, uri string, pos protocol.Position) ([]protocol.Location, error) {
	params := &protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
			Position:     pos,
		},
		Context: protocol.ReferenceContext{IncludeDeclaration: false},
	}

	var result []protocol.Location
	if err := c.Request(ctx, "textDocument/references", params, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Implementation requests the implementations of the symbol at uri:pos.
func (c *Client) Implementation(ctx context.Context, uri string, pos protocol.Position) ([]protocol.Location, error) {
	params := &protocol.ImplementationParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
			Position:     pos,
		},
	}

	var result []protocol.Location
	if err := c.Request(ctx, "textDocument/implementation", params, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Shutdown sends the shutdown request, asking the server to prepare to
// exit without actually terminating yet.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Request(ctx, "shutdown", nil, nil)
}

// Exit sends the exit notification, after which the server is expected to
// terminate its own process.
func (c *Client) Exit(ctx context.Context) error {
	return c.Notify(ctx, "exit", nil)
}

// Close tears down the JSON-RPC connection without touching the child
// process; callers managing the process lifecycle (the pool) terminate it
// separately after Shutdown/Exit or a grace-period timeout.
func (c *Client) Close() error {
	c.dead.Store(true)

	return c.conn.Close()
}

// Terminate sends the child process SIGTERM and waits up to grace for it to
// exit, escalating to SIGKILL if it hasn't. A Client with no backing
// process (the in-memory test seam) is a no-op.
func (c *Client) Terminate(grace time.Duration) error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("lspclient: sigterm: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("lspclient: sigkill: %w", err)
	}

	<-done

	return nil
}
