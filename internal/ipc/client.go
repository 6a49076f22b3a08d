package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"clueless/internal/inspect"
	"clueless/internal/overlay"
	"clueless/internal/report"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// RemoteError is an ErrorResponse returned by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is lets callers match daemon errors against the local sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotInitialized:
		return e.Code == CodeNotInitialized
	case inspect.ErrUnsupported:
		return e.Code == CodeUnsupported
	}
	return false
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "cluelessctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// IPCClient talks to a running daemon. It is safe for concurrent use; requests
// are matched to responses by request ID.
type IPCClient struct {
	cfg ClientConfig

	mu       sync.RWMutex
	conn     net.Conn
	writeMu  sync.Mutex
	clientID string
	server   HandshakeResponse

	connected atomic.Bool
	nextReqID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *Message

	events chan *Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	def := DefaultClientConfig(cfg.SocketPath)
	if cfg.ClientName == "" {
		cfg.ClientName = def.ClientName
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	return &IPCClient{
		cfg:     cfg,
		pending: make(map[uint32]chan *Message),
		events:  make(chan *Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Connect dials the daemon and performs the handshake.
func (c *IPCClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := dial(dctx, c.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	c.wg.Add(1)
	go c.readLoop(conn)

	resp, err := c.call(ctx, MsgHandshake, &HandshakeRequest{
		ClientVersion:   c.cfg.ClientVersion,
		ClientName:      c.cfg.ClientName,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	var ack HandshakeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	c.mu.Lock()
	c.clientID = ack.ClientID
	c.server = ack
	c.mu.Unlock()
	return nil
}

// Close disconnects. Pending requests fail with ErrConnectionLost.
func (c *IPCClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.events)
	})
	return err
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// ClientID returns the ID the daemon assigned at handshake.
func (c *IPCClient) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// Server returns the daemon's handshake details.
func (c *IPCClient) Server() HandshakeResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Events returns streamed events. It is closed by Close.
func (c *IPCClient) Events() <-chan *Event {
	return c.events
}

// call sends a request and waits for its response. Error responses are
// returned as *RemoteError.
func (c *IPCClient) call(ctx context.Context, msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	data, err := Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	reqID := c.nextReqID.Add(1)
	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(NewMessage(msgType, reqID, data)); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Header.Type == MsgError {
			var e ErrorResponse
			if err := Decode(resp.Payload, &e); err != nil {
				return nil, fmt.Errorf("decode error response: %w", err)
			}
			return nil, &RemoteError{Code: e.Code, Message: e.Message}
		}
		if want := msgType.Response(); resp.Header.Type != want {
			return nil, fmt.Errorf("unexpected response %s to %s", resp.Header.Type, msgType)
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionLost
	}
}

// do performs a request and decodes the response payload into out.
func (c *IPCClient) do(ctx context.Context, msgType MessageType, payload, out any) error {
	resp, err := c.call(ctx, msgType, payload)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return Decode(resp.Payload, out)
}

func (c *IPCClient) write(msg *Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(conn)
}

func (c *IPCClient) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer c.failPending()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}

		switch msg.Header.Type {
		case MsgPing:
			c.write(NewMessage(MsgPong, msg.Header.RequestID, nil))
		case MsgEvent:
			var ev Event
			if err := Decode(msg.Payload, &ev); err != nil {
				continue
			}
			select {
			case c.events <- &ev:
			case <-c.done:
				return
			default:
				// Consumer is behind; drop like the server does.
			}
		default:
			// Replies, pongs included; unmatched ones are dropped.
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.Header.RequestID]; ok {
				select {
				case ch <- msg:
				default:
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// failPending marks the client disconnected and releases waiting requests.
func (c *IPCClient) failPending() {
	c.connected.Store(false)
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// Ping checks if the daemon is responsive
func (c *IPCClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MsgPing, nil)
	return err
}

// StartDetection starts the monitoring loop. Starting twice is not an error.
func (c *IPCClient) StartDetection(ctx context.Context) error {
	return c.do(ctx, MsgStartDetection, nil, nil)
}

// StopDetection stops the monitoring loop.
func (c *IPCClient) StopDetection(ctx context.Context) error {
	return c.do(ctx, MsgStopDetection, nil, nil)
}

// Report fetches the current detection report.
func (c *IPCClient) Report(ctx context.Context) (*report.Report, error) {
	var r report.Report
	if err := c.do(ctx, MsgGetReport, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ClearHistory discards recorded activity on the daemon.
func (c *IPCClient) ClearHistory(ctx context.Context) error {
	return c.do(ctx, MsgClearHistory, nil, nil)
}

// ExportReport returns the JSON security report.
func (c *IPCClient) ExportReport(ctx context.Context) ([]byte, error) {
	var resp ExportResponse
	if err := c.do(ctx, MsgExportReport, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Status requests the daemon status
func (c *IPCClient) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.do(ctx, MsgGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ShowOverlay shows the status overlay.
func (c *IPCClient) ShowOverlay(ctx context.Context) error {
	return c.do(ctx, MsgShowOverlay, nil, nil)
}

// HideOverlay hides the status overlay.
func (c *IPCClient) HideOverlay(ctx context.Context) error {
	return c.do(ctx, MsgHideOverlay, nil, nil)
}

// UpdateOverlay pushes a status to the overlay.
func (c *IPCClient) UpdateOverlay(ctx context.Context, status overlay.Status) error {
	return c.do(ctx, MsgUpdateOverlay, status, nil)
}

// Processes lists processes running on the daemon's host.
func (c *IPCClient) Processes(ctx context.Context) ([]inspect.Process, error) {
	var resp ProcessesResponse
	if err := c.do(ctx, MsgGetProcesses, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

// Network lists the daemon host's network sockets.
func (c *IPCClient) Network(ctx context.Context) ([]inspect.Connection, error) {
	var resp NetworkResponse
	if err := c.do(ctx, MsgGetNetwork, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Connections, nil
}

// SystemInfo describes the daemon's host.
func (c *IPCClient) SystemInfo(ctx context.Context) (*inspect.SystemInfo, error) {
	var info inspect.SystemInfo
	if err := c.do(ctx, MsgGetSystemInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Subscribe asks for the given event types, or all of them when none are
// named. Events arrive on Events().
func (c *IPCClient) Subscribe(ctx context.Context, events ...EventType) error {
	var resp SubscribeResponse
	if err := c.do(ctx, MsgSubscribe, &SubscribeRequest{Events: events}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("subscription refused")
	}
	return nil
}

// Unsubscribe stops event delivery.
func (c *IPCClient) Unsubscribe(ctx context.Context) error {
	return c.do(ctx, MsgUnsubscribe, nil, nil)
}
