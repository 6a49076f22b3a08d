package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clueless/internal/activity"
)

// ErrAlreadyRunning is returned by Start when another daemon owns the socket.
var ErrAlreadyRunning = errors.New("ipc: another daemon is listening on the socket")

// Handler processes IPC messages
type Handler interface {
	// HandleMessage processes a message and returns a response
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server is the IPC server that manages client connections
type Server struct {
	mu        sync.RWMutex
	listener  net.Listener
	cfg       ServerConfig
	handler   Handler
	logger    *slog.Logger
	clients   map[string]*Client
	startedAt time.Time

	// Shutdown coordination
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	// Request ID counter for server-initiated messages
	nextRequestID atomic.Uint32

	// Event channel for broadcasting
	eventChan chan *Event
	dropped   atomic.Uint64
}

// Client is one connected peer as seen by the server.
type Client struct {
	mu           sync.Mutex
	ID           string
	Peer         string // identity of the connecting process, for audit
	Name         string
	Version      string
	ConnectedAt  time.Time
	LastActivity time.Time

	conn       net.Conn
	handshaken bool
	events     map[EventType]bool // nil when not subscribed
	out        chan *Message
	done       chan struct{}

	// Write serialization
	writeMu sync.Mutex
}

// Name and version are set by the handshake.
func (c *Client) identity() (name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Name, c.Version
}

// Actor names the client for the audit trail.
func (c *Client) Actor() string {
	name, _ := c.identity()
	if name == "" {
		return c.Peer
	}
	return name + " (" + c.Peer + ")"
}

func (c *Client) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events != nil
}

func (c *Client) subscribed(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[t]
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string      // Unix socket path, or host:port on Windows
	Version        string      // Server version
	Permissions    os.FileMode // Unix socket mode
	MaxConnections int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger

	// OnHandshake is called after a client identifies itself.
	OnHandshake func(*Client)
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:     socketPath,
		Version:        "dev",
		Permissions:    0600,
		MaxConnections: 16,
		IdleTimeout:    5 * time.Minute,
		WriteTimeout:   10 * time.Second,
	}
}

// eventBuffer is the per-subscriber backlog; a slow subscriber drops events
// beyond it.
const eventBuffer = 64

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) *Server {
	def := DefaultServerConfig(cfg.SocketPath)
	if cfg.Permissions == 0 {
		cfg.Permissions = def.Permissions
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		clients:   make(map[string]*Client),
		ctx:       ctx,
		cancel:    cancel,
		eventChan: make(chan *Event, 100),
	}
}

// Start begins listening for connections
func (s *Server) Start() error {
	listener, err := listen(s.cfg.SocketPath, s.cfg.Permissions)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()
	s.running.Store(true)

	s.wg.Add(2)
	go s.eventBroadcaster()
	go s.acceptLoop()

	s.logger.Info("ipc server listening", "addr", listener.Addr().String())
	return nil
}

// Run starts the server and serves until ctx is done. Subscribers are told
// about the shutdown before connections close.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.notifyShutdown()
	return s.Stop()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("ipc server stop timed out waiting for connections")
	}

	removeSocket(s.cfg.SocketPath)
	s.logger.Info("ipc server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// StartedAt returns when the server began listening.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

// Version returns the version reported in handshakes.
func (s *Server) Version() string {
	return s.cfg.Version
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues an event for all subscribed clients. It never blocks;
// events are dropped when the queue is full or the server is stopped.
func (s *Server) Broadcast(event *Event) {
	if event == nil || !s.running.Load() {
		return
	}
	select {
	case s.eventChan <- event:
	default:
		s.dropped.Add(1)
	}
}

// BroadcastValue encodes v as an event of type t and broadcasts it.
func (s *Server) BroadcastValue(t EventType, v any) {
	ev, err := NewEvent(t, v)
	if err != nil {
		s.logger.Warn("dropping event", "type", t, "error", err)
		return
	}
	s.Broadcast(ev)
}

// Forward broadcasts detection events from ch until ctx is done or ch is
// closed.
func (s *Server) Forward(ctx context.Context, ch <-chan activity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.BroadcastValue(EventDetection, ev)
		}
	}
}

// acceptLoop accepts new connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("ipc accept failed", "error", err)
			continue
		}

		peer, err := verifyPeer(conn)
		if err != nil {
			s.logger.Warn("ipc peer rejected", "error", err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			s.logger.Warn("ipc connection limit reached", "max", s.cfg.MaxConnections)
			conn.Close()
			continue
		}
		now := time.Now()
		client := &Client{
			ID:           uuid.NewString(),
			Peer:         peer,
			conn:         conn,
			ConnectedAt:  now,
			LastActivity: now,
			done:         make(chan struct{}),
		}
		s.clients[client.ID] = client
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(client)
	}
}

// handleConnection handles a single client connection
func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		close(client.done)
		client.conn.Close()
		s.logger.Debug("ipc client disconnected", "client", client.ID)
	}()

	s.logger.Debug("ipc client connected", "client", client.ID, "peer", client.Peer)

	for {
		if s.ctx.Err() != nil {
			return
		}

		client.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		msg, err := ReadMessage(client.conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Subscribers are legitimately quiet; probe them instead.
				if client.isSubscribed() {
					s.sendPing(client)
					continue
				}
				s.logger.Debug("ipc client idle, closing", "client", client.ID)
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("ipc read failed", "client", client.ID, "error", err)
			}
			return
		}

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			response = NewErrorMessage(msg.Header.RequestID, CodeInternal, err.Error())
		}
		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

// processMessage processes a single message
func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil

	case MsgPong:
		return nil, nil

	case MsgHandshake:
		return s.handleHandshake(client, msg)
	}

	client.mu.Lock()
	handshaken := client.handshaken
	client.mu.Unlock()
	if !handshaken {
		return NewErrorMessage(msg.Header.RequestID, CodePermissionDenied, "handshake required"), nil
	}

	switch msg.Header.Type {
	case MsgSubscribe:
		return s.handleSubscribe(client, msg)
	case MsgUnsubscribe:
		return s.handleUnsubscribe(client, msg)
	}

	if s.handler == nil {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, client, msg)
}

// handleHandshake processes handshake request
func (s *Server) handleHandshake(client *Client, msg *Message) (*Message, error) {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid handshake"), nil
	}
	if req.ProtocolVersion > ProtocolVersion {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest,
			fmt.Sprintf("unsupported protocol version %d", req.ProtocolVersion)), nil
	}

	client.mu.Lock()
	client.Version = req.ClientVersion
	client.Name = req.ClientName
	client.handshaken = true
	client.mu.Unlock()

	s.logger.Info("ipc client handshake", "client", client.ID, "name", req.ClientName, "peer", client.Peer)
	if s.cfg.OnHandshake != nil {
		s.cfg.OnHandshake(client)
	}

	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		ClientID:        client.ID,
		Platform:        runtime.GOOS,
	})
}

// handleSubscribe processes event subscription
func (s *Server) handleSubscribe(client *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid subscribe request"), nil
		}
	}
	types := req.Events
	if len(types) == 0 {
		types = AllEvents
	}

	client.mu.Lock()
	start := client.out == nil
	client.events = make(map[EventType]bool, len(types))
	for _, t := range types {
		client.events[t] = true
	}
	if start {
		client.out = make(chan *Message, eventBuffer)
	}
	out := client.out
	client.mu.Unlock()

	if start {
		s.wg.Add(1)
		go s.pump(client, out)
	}

	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{
		Success:        true,
		SubscriptionID: client.ID,
	})
}

// handleUnsubscribe processes event unsubscription
func (s *Server) handleUnsubscribe(client *Client, msg *Message) (*Message, error) {
	client.mu.Lock()
	client.events = nil
	client.mu.Unlock()
	return NewResponse(MsgUnsubscribeResp, msg.Header.RequestID, &SuccessResponse{Success: true})
}

// eventBroadcaster fans events out to subscribers
func (s *Server) eventBroadcaster() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.eventChan:
			s.fanOut(event)
		}
	}
}

func (s *Server) fanOut(event *Event) {
	payload, err := Encode(event)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.mu.Lock()
		want, out := client.events[event.Type], client.out
		client.mu.Unlock()
		if !want || out == nil {
			continue
		}
		msg := NewMessage(MsgEvent, s.nextRequestID.Add(1), payload)
		select {
		case out <- msg:
		default:
			s.dropped.Add(1)
		}
	}
}

// pump writes queued events to one client until it disconnects.
func (s *Server) pump(client *Client, out <-chan *Message) {
	defer s.wg.Done()
	for {
		select {
		case <-client.done:
			return
		case msg := <-out:
			if err := s.sendMessage(client, msg); err != nil {
				client.conn.Close()
				return
			}
		}
	}
}

// notifyShutdown tells subscribers the daemon is going away. Best effort.
func (s *Server) notifyShutdown() {
	ev, err := NewEvent(EventDaemonShutdown, nil)
	if err != nil {
		return
	}
	payload, _ := Encode(ev)

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.subscribed(EventDaemonShutdown) {
			clients = append(clients, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.sendMessage(c, NewMessage(MsgEvent, s.nextRequestID.Add(1), payload))
	}
}

// sendMessage sends a message to a client
func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(client.conn)
}

// sendPing sends a ping to keep connection alive
func (s *Server) sendPing(client *Client) {
	s.sendMessage(client, NewMessage(MsgPing, s.nextRequestID.Add(1), nil))
}

// Dropped returns how many events were discarded for slow subscribers.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}
