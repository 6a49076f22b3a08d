package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"clueless/internal/dashboard"
	"clueless/internal/inspect"
	"clueless/internal/logging"
	"clueless/internal/overlay"
	"clueless/internal/report"
)

// ErrNotInitialized is reported when a command needs a service the daemon
// was started without.
var ErrNotInitialized = errors.New("not initialized")

var (
	errNoDetector  = fmt.Errorf("Detector %w", ErrNotInitialized)
	errNoOverlay   = fmt.Errorf("Overlay %w", ErrNotInitialized)
	errNoDashboard = fmt.Errorf("Dashboard %w", ErrNotInitialized)
	errNoInspector = fmt.Errorf("Inspector %w", ErrNotInitialized)
)

// Detector is the part of the monitoring loop the command boundary drives.
type Detector interface {
	Start(ctx context.Context) error
	Stop() error
	Monitoring() bool
	Report() report.Report
	ClearHistory()
}

// Services are the collaborators commands operate on. They are bound once at
// startup; any of them may be nil, in which case the commands that need it
// answer with ErrNotInitialized.
type Services struct {
	Detector  Detector
	Overlay   overlay.Overlay
	Dashboard *dashboard.Dashboard
	Inspector inspect.Inspector
	Audit     *logging.AuditLogger
	Logger    *slog.Logger

	// Version is reported by get_status.
	Version string
	// Clients reports the connected client count for get_status.
	Clients func() int
	// Broadcast pushes events to subscribers. May be nil.
	Broadcast func(t EventType, v any)
}

// ServiceHandler implements Handler over a Services set.
type ServiceHandler struct {
	svc       Services
	logger    *slog.Logger
	startedAt time.Time
}

// NewHandler binds the command set to svc.
func NewHandler(svc Services) *ServiceHandler {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceHandler{
		svc:       svc,
		logger:    logger.With("component", "ipc"),
		startedAt: time.Now(),
	}
}

// HandleMessage dispatches one request. A panic inside a command is turned
// into an internal error response.
func (h *ServiceHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (resp *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("ipc command panicked", "command", msg.Header.Type, "panic", r)
			resp, err = NewErrorMessage(msg.Header.RequestID, CodeInternal, "internal error"), nil
		}
	}()

	reply := msg.Header.Type.Response()
	var result any

	switch msg.Header.Type {
	case MsgStartDetection:
		result, err = h.startDetection(ctx, client)
	case MsgStopDetection:
		result, err = h.stopDetection(client)
	case MsgGetReport:
		result, err = h.getReport()
	case MsgClearHistory:
		result, err = h.clearHistory(client)
	case MsgGetStatus:
		result, err = h.getStatus()
	case MsgExportReport:
		result, err = h.exportReport(ctx, client)
	case MsgShowOverlay:
		result, err = h.overlayCall(func(o overlay.Overlay) error { return o.Show() })
	case MsgHideOverlay:
		result, err = h.overlayCall(func(o overlay.Overlay) error { return o.Hide() })
	case MsgUpdateOverlay:
		var status overlay.Status
		if err := Decode(msg.Payload, &status); err != nil {
			return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid overlay status"), nil
		}
		result, err = h.overlayCall(func(o overlay.Overlay) error { return o.Update(status) })
	case MsgGetProcesses:
		result, err = h.getProcesses(ctx)
	case MsgGetNetwork:
		result, err = h.getNetwork(ctx)
	case MsgGetSystemInfo:
		result, err = h.getSystemInfo(ctx)
	default:
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest,
			fmt.Sprintf("unknown message type: %s", msg.Header.Type)), nil
	}

	if err != nil {
		h.logger.Debug("ipc command failed", "command", msg.Header.Type, "client", client.ID, "error", err)
		return NewErrorMessage(msg.Header.RequestID, errorCode(err), err.Error()), nil
	}
	return NewResponse(reply, msg.Header.RequestID, result)
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, inspect.ErrUnsupported), errors.Is(err, overlay.ErrUnsupported):
		return CodeUnsupported
	}
	return CodeInternal
}

func (h *ServiceHandler) startDetection(ctx context.Context, c *Client) (any, error) {
	det := h.svc.Detector
	if det == nil {
		return nil, errNoDetector
	}
	already := det.Monitoring()
	err := det.Start(ctx)
	h.audit(logging.AuditDetectionStart, c, "start_detection", err, nil)
	if err != nil {
		return nil, err
	}
	if !already {
		if h.svc.Dashboard != nil {
			h.svc.Dashboard.MonitoringStarted()
		}
		h.broadcast(EventMonitoring, MonitoringEvent{Monitoring: true, Actor: c.Actor()})
	}
	return SuccessResponse{Success: true}, nil
}

func (h *ServiceHandler) stopDetection(c *Client) (any, error) {
	det := h.svc.Detector
	if det == nil {
		return nil, errNoDetector
	}
	was := det.Monitoring()
	err := det.Stop()
	h.audit(logging.AuditDetectionStop, c, "stop_detection", err, nil)
	if err != nil {
		return nil, err
	}
	if was {
		if h.svc.Dashboard != nil {
			h.svc.Dashboard.MonitoringStopped()
		}
		h.broadcast(EventMonitoring, MonitoringEvent{Monitoring: false, Actor: c.Actor()})
	}
	return SuccessResponse{Success: true}, nil
}

func (h *ServiceHandler) getReport() (any, error) {
	if h.svc.Detector == nil {
		return nil, errNoDetector
	}
	return h.svc.Detector.Report(), nil
}

func (h *ServiceHandler) clearHistory(c *Client) (any, error) {
	det := h.svc.Detector
	if det == nil {
		return nil, errNoDetector
	}
	before := det.Report()
	det.ClearHistory()
	if h.svc.Dashboard != nil {
		h.svc.Dashboard.Reset()
	}
	h.audit(logging.AuditHistoryCleared, c, "clear_history", nil, map[string]any{
		"events":          len(before.SuspiciousActivity),
		"clipboard":       before.ClipboardAnalysis.TotalEntries,
		"typing_patterns": before.TypingAnalysis.TotalPatterns,
	})
	h.broadcast(EventHistoryCleared, MonitoringEvent{Monitoring: det.Monitoring(), Actor: c.Actor()})
	return SuccessResponse{Success: true}, nil
}

func (h *ServiceHandler) getStatus() (any, error) {
	resp := StatusResponse{
		Version:   h.svc.Version,
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt),
		Platform:  runtime.GOOS,
	}
	if h.svc.Detector != nil {
		resp.Monitoring = h.svc.Detector.Monitoring()
	}
	if h.svc.Dashboard != nil {
		resp.Status = h.svc.Dashboard.Status()
		resp.Alerts = h.svc.Dashboard.Alerts()
	}
	resp.Status.IsMonitoring = resp.Monitoring
	if h.svc.Clients != nil {
		resp.Clients = h.svc.Clients()
	}
	return resp, nil
}

func (h *ServiceHandler) exportReport(ctx context.Context, c *Client) (any, error) {
	if h.svc.Dashboard == nil {
		return nil, errNoDashboard
	}
	var buf bytes.Buffer
	err := h.svc.Dashboard.Export(ctx, &buf)
	h.audit(logging.AuditReportExport, c, "export_report", err, nil)
	if err != nil {
		return nil, err
	}
	return ExportResponse{Data: bytes.TrimSpace(buf.Bytes())}, nil
}

func (h *ServiceHandler) overlayCall(fn func(overlay.Overlay) error) (any, error) {
	if h.svc.Overlay == nil {
		return nil, errNoOverlay
	}
	if err := fn(h.svc.Overlay); err != nil {
		return nil, err
	}
	return SuccessResponse{Success: true}, nil
}

func (h *ServiceHandler) getProcesses(ctx context.Context) (any, error) {
	if h.svc.Inspector == nil {
		return nil, errNoInspector
	}
	procs, err := h.svc.Inspector.Processes(ctx)
	if err != nil {
		return nil, err
	}
	return ProcessesResponse{Processes: procs}, nil
}

func (h *ServiceHandler) getNetwork(ctx context.Context) (any, error) {
	if h.svc.Inspector == nil {
		return nil, errNoInspector
	}
	conns, err := h.svc.Inspector.Connections(ctx)
	if err != nil {
		return nil, err
	}
	return NetworkResponse{Connections: conns}, nil
}

func (h *ServiceHandler) getSystemInfo(ctx context.Context) (any, error) {
	if h.svc.Inspector == nil {
		return nil, errNoInspector
	}
	return h.svc.Inspector.SystemInfo(ctx)
}

func (h *ServiceHandler) audit(typ logging.AuditEventType, c *Client, action string, err error, details map[string]any) {
	if aerr := h.svc.Audit.Record(typ, c.Actor(), action, err, details); aerr != nil {
		h.logger.Warn("audit write failed", "action", action, "error", aerr)
	}
}

func (h *ServiceHandler) broadcast(t EventType, v any) {
	if h.svc.Broadcast != nil {
		h.svc.Broadcast(t, v)
	}
}
