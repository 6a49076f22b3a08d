package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clueless/internal/activity"
	"clueless/internal/dashboard"
	"clueless/internal/inspect"
	"clueless/internal/overlay"
	"clueless/internal/report"
)

type fakeDetector struct {
	mu         sync.Mutex
	monitoring bool
	events     []activity.Event
	starts     int
	panicOn    bool
}

func (f *fakeDetector) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn {
		panic("boom")
	}
	f.starts++
	f.monitoring = true
	return nil
}

func (f *fakeDetector) Stop() error {
	f.mu.Lock()
	f.monitoring = false
	f.mu.Unlock()
	return nil
}

func (f *fakeDetector) Monitoring() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.monitoring
}

func (f *fakeDetector) Report() report.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return report.Build(report.Input{Now: time.Now(), Monitoring: f.monitoring, Events: f.events})
}

func (f *fakeDetector) ClearHistory() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

type fakeInspector struct{}

func (fakeInspector) Platform() string { return "test" }
func (fakeInspector) Processes(context.Context) ([]inspect.Process, error) {
	return []inspect.Process{{PID: 42, Name: "cluely"}}, nil
}
func (fakeInspector) Connections(context.Context) ([]inspect.Connection, error) {
	return nil, inspect.ErrUnsupported
}
func (fakeInspector) HiddenProcesses(context.Context) ([]string, error) { return nil, nil }
func (fakeInspector) SupportsMemoryScan() bool                          { return false }
func (fakeInspector) ReadMemory(context.Context, int, int) (string, error) {
	return "", inspect.ErrUnsupported
}
func (fakeInspector) SystemInfo(context.Context) (inspect.SystemInfo, error) {
	return inspect.SystemInfo{Platform: "test", CPUs: 4}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func socketPath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		return "127.0.0.1:0"
	}
	// Unix socket paths are length limited, so avoid the long t.TempDir.
	dir, err := os.MkdirTemp("", "clpc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// startPair starts a server over svc and a connected client.
func startPair(t *testing.T, svc Services) (*Server, *IPCClient) {
	t.Helper()

	var srv *Server
	svc.Logger = quietLogger()
	svc.Broadcast = func(et EventType, v any) { srv.BroadcastValue(et, v) }
	svc.Clients = func() int { return srv.ClientCount() }

	srv = NewServer(ServerConfig{SocketPath: socketPath(t), Version: "test", Logger: quietLogger()}, NewHandler(svc))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	c := NewClient(ClientConfig{SocketPath: srv.Addr(), ClientName: "ipc-test", RequestTimeout: 5 * time.Second})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return srv, c
}

func TestHeaderRoundTrip(t *testing.T) {
	msg := NewMessage(MsgGetReport, 7, []byte(`{"a":1}`))
	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))
	assert.Equal(t, HeaderSize+7, buf.Len())

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgGetReport, got.Header.Type)
	assert.Equal(t, uint32(7), got.Header.RequestID)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMessage(MsgPing, 1, nil).Write(&buf))
	raw := buf.Bytes()
	binary.BigEndian.PutUint32(raw[0:4], 0xDEADBEEF)

	_, err := ReadMessage(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestMessageTypeNames(t *testing.T) {
	assert.Equal(t, "get_report", MsgGetReport.String())
	assert.Equal(t, MsgGetReportResp, MsgGetReport.Response())
	assert.Equal(t, MsgPong, MsgPing.Response())
	assert.Equal(t, MsgHandshakeAck, MsgHandshake.Response())
}

func TestDetectionRoundTrip(t *testing.T) {
	det := &fakeDetector{}
	ov := overlay.NewConsole(io.Discard, quietLogger())
	dash := dashboard.New(dashboard.Options{Detector: det, Overlay: ov, Logger: quietLogger()})
	_, c := startPair(t, Services{Detector: det, Overlay: ov, Dashboard: dash, Inspector: fakeInspector{}, Version: "1.2.3"})
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	assert.NotEmpty(t, c.ClientID())
	assert.Equal(t, "test", c.Server().ServerVersion)

	require.NoError(t, c.StartDetection(ctx))
	require.NoError(t, c.StartDetection(ctx))
	assert.True(t, det.Monitoring())

	det.mu.Lock()
	det.events = append(det.events, activity.NewEvent(activity.TypeAIProcess, activity.SeverityMedium, time.Now(), nil))
	det.mu.Unlock()

	r, err := c.Report(ctx)
	require.NoError(t, err)
	assert.Len(t, r.SuspiciousActivity, 1)
	assert.True(t, r.Monitoring)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", status.Version)
	assert.True(t, status.Monitoring)
	assert.Equal(t, 1, status.Clients)

	data, err := c.ExportReport(ctx)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "detectionReport")

	require.NoError(t, c.ClearHistory(ctx))
	r, err = c.Report(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.SuspiciousActivity)

	require.NoError(t, c.StopDetection(ctx))
	assert.False(t, det.Monitoring())
}

func TestPingAfterOtherRequests(t *testing.T) {
	_, c := startPair(t, Services{Inspector: fakeInspector{}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.Status(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Ping(ctx), "ping %d", i)
	}
}

func TestInspectionCommands(t *testing.T) {
	_, c := startPair(t, Services{Inspector: fakeInspector{}})
	ctx := context.Background()

	procs, err := c.Processes(ctx)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, "cluely", procs[0].Name)

	info, err := c.SystemInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, info.CPUs)

	_, err = c.Network(ctx)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeUnsupported, remote.Code)
	assert.ErrorIs(t, err, inspect.ErrUnsupported)
}

func TestMissingServices(t *testing.T) {
	_, c := startPair(t, Services{})
	ctx := context.Background()

	err := c.StartDetection(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.EqualError(t, err, "Detector not initialized")

	err = c.ShowOverlay(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.EqualError(t, err, "Overlay not initialized")

	_, err = c.Report(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Status works without any service.
	_, err = c.Status(ctx)
	assert.NoError(t, err)
}

func TestOverlayCommands(t *testing.T) {
	var out bytes.Buffer
	ov := overlay.NewConsole(&out, quietLogger())
	_, c := startPair(t, Services{Overlay: ov})
	ctx := context.Background()

	require.NoError(t, c.ShowOverlay(ctx))
	assert.True(t, ov.Visible())
	require.NoError(t, c.UpdateOverlay(ctx, overlay.Status{IsMonitoring: true, IsClean: true}))
	require.NoError(t, c.HideOverlay(ctx))
	assert.False(t, ov.Visible())
}

func TestHandlerRecoversPanic(t *testing.T) {
	_, c := startPair(t, Services{Detector: &fakeDetector{panicOn: true}})

	err := c.StartDetection(context.Background())
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, CodeInternal, remote.Code)

	// The connection survives.
	assert.NoError(t, c.Ping(context.Background()))
}

func TestHandshakeRequired(t *testing.T) {
	srv := NewServer(ServerConfig{SocketPath: socketPath(t), Logger: quietLogger()}, NewHandler(Services{}))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	conn, err := dial(context.Background(), srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, NewMessage(MsgGetStatus, 1, nil).Write(conn))
	resp, err := ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, MsgError, resp.Header.Type)

	var e ErrorResponse
	require.NoError(t, Decode(resp.Payload, &e))
	assert.Equal(t, CodePermissionDenied, e.Code)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	det := &fakeDetector{}
	srv, c := startPair(t, Services{Detector: det})
	ctx := context.Background()

	require.NoError(t, c.Subscribe(ctx, EventDetection, EventMonitoring))

	src := make(chan activity.Event, 1)
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.Forward(fctx, src)
	src <- activity.NewEvent(activity.TypeAINetwork, activity.SeverityHigh, time.Now(), map[string]any{"connection": "x"})

	ev := nextEvent(t, c)
	require.Equal(t, EventDetection, ev.Type)
	var got activity.Event
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, activity.TypeAINetwork, got.Type)

	require.NoError(t, c.StartDetection(ctx))
	ev = nextEvent(t, c)
	require.Equal(t, EventMonitoring, ev.Type)
	var me MonitoringEvent
	require.NoError(t, ev.Decode(&me))
	assert.True(t, me.Monitoring)
	assert.Contains(t, me.Actor, "ipc-test")

	// Status events were not requested.
	srv.BroadcastValue(EventStatus, overlay.Status{})
	require.NoError(t, c.Unsubscribe(ctx))
	srv.BroadcastValue(EventDetection, activity.Event{})
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %v", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerAlreadyRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("port 0 never collides")
	}
	path := socketPath(t)
	a := NewServer(ServerConfig{SocketPath: path, Logger: quietLogger()}, nil)
	require.NoError(t, a.Start())
	defer a.Stop()

	b := NewServer(ServerConfig{SocketPath: path, Logger: quietLogger()}, nil)
	assert.True(t, errors.Is(b.Start(), ErrAlreadyRunning))
}

func TestClientNotRunning(t *testing.T) {
	c := NewClient(ClientConfig{SocketPath: filepath.Join(os.TempDir(), "clueless-missing.sock"), ConnectTimeout: time.Second})
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
}

func nextEvent(t *testing.T, c *IPCClient) *Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}
