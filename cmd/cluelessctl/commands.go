package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"clueless/internal/activity"
	"clueless/internal/dashboard"
	"clueless/internal/ipc"
	"clueless/internal/procfilter"
	"clueless/internal/report"
)

func cmdStatus() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		status, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}

		printSection("DAEMON")
		printField("Version", status.Version)
		printField("Platform", status.Platform)
		printField("Started", status.StartedAt.Format(time.RFC3339))
		printField("Uptime", status.Uptime.Round(time.Second))
		printField("Clients", status.Clients)

		printSection("DETECTION")
		if status.Monitoring {
			printField("State", c.Green+"MONITORING"+c.Reset)
		} else {
			printField("State", c.Yellow+"IDLE"+c.Reset)
		}
		s := status.Status
		printField("Threat", levelColor(s.ThreatLevel)+s.ThreatLevel.String()+c.Reset)
		printField("Risk score", fmt.Sprintf("%d/100", s.RiskScore))
		printField("AI processes", s.SuspiciousProcesses)
		printField("Alerts", s.TotalAlerts)

		if len(status.Alerts) > 0 {
			printSection("RECENT ALERTS")
			for _, a := range status.Alerts {
				fmt.Printf("  %s%s%s  %s%-7s%s %s\n", c.Dim, a.Timestamp.Format(time.TimeOnly), c.Reset,
					alertColor(a.Type), a.Type, c.Reset, a.Message)
			}
		}
		fmt.Println()
		return nil
	})
}

func cmdStart() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		if err := client.StartDetection(ctx); err != nil {
			return fmt.Errorf("start detection: %w", err)
		}
		printSuccess("Detection started")
		return nil
	})
}

func cmdStop() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		if err := client.StopDetection(ctx); err != nil {
			return fmt.Errorf("stop detection: %w", err)
		}
		printSuccess("Detection stopped")
		return nil
	})
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	format := fs.String("format", "text", "text, json or yaml")
	fs.Parse(args)

	f, err := report.ParseFormat(*format)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		r, err := client.Report(ctx)
		if err != nil {
			return fmt.Errorf("get report: %w", err)
		}
		return report.Write(os.Stdout, *r, f)
	})
}

func cmdClear() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		if err := client.ClearHistory(ctx); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		printSuccess("Detection history cleared")
		return nil
	})
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "", "write to file instead of stdout")
	validate := fs.Bool("validate", true, "check the detection report against its schema")
	fs.Parse(args)

	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		data, err := client.ExportReport(ctx)
		if err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		if *validate {
			if err := validateExport(data); err != nil {
				return err
			}
		}
		if *output == "" {
			_, err := os.Stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(*output, append(data, '\n'), 0600); err != nil {
			return fmt.Errorf("write %s: %w", *output, err)
		}
		printSuccess("Report exported to " + *output)
		return nil
	})
}

// validateExport checks the embedded detection report against the report
// schema.
func validateExport(data []byte) error {
	var doc struct {
		DetectionReport json.RawMessage `json:"detectionReport"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode export: %w", err)
	}
	if err := report.Validate(doc.DetectionReport); err != nil {
		return fmt.Errorf("exported report failed validation: %w", err)
	}
	return nil
}

func cmdOverlay(args []string) {
	if len(args) != 1 {
		printError("Usage: cluelessctl overlay <show|hide>")
		os.Exit(1)
	}
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		switch args[0] {
		case "show":
			if err := client.ShowOverlay(ctx); err != nil {
				return fmt.Errorf("show overlay: %w", err)
			}
			printSuccess("Overlay shown")
		case "hide":
			if err := client.HideOverlay(ctx); err != nil {
				return fmt.Errorf("hide overlay: %w", err)
			}
			printSuccess("Overlay hidden")
		default:
			return fmt.Errorf("unknown overlay action %q", args[0])
		}
		return nil
	})
}

func cmdProcesses(args []string) {
	fs := flag.NewFlagSet("processes", flag.ExitOnError)
	aiOnly := fs.Bool("ai", false, "only show likely AI assistants")
	fs.Parse(args)

	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		procs, err := client.Processes(ctx)
		if err != nil {
			return fmt.Errorf("list processes: %w", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tUSER\tNAME\tAI")
		for _, p := range procs {
			ai := procfilter.IsLikelyAIAssistant(p.Name)
			if *aiOnly && !ai {
				continue
			}
			mark := ""
			if ai {
				mark = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.PID, p.User, p.Name, mark)
		}
		return tw.Flush()
	})
}

func cmdNetwork() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		conns, err := client.Network(ctx)
		if err != nil {
			return fmt.Errorf("list connections: %w", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROTO\tLOCAL\tREMOTE\tSTATE")
		for _, cn := range conns {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cn.Proto, cn.Local, cn.Remote, cn.State)
		}
		return tw.Flush()
	})
}

func cmdSysInfo() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		info, err := client.SystemInfo(ctx)
		if err != nil {
			return fmt.Errorf("system info: %w", err)
		}
		printSection("SYSTEM")
		printField("Platform", info.Platform+"/"+info.Arch)
		printField("Hostname", info.Hostname)
		printField("CPUs", info.CPUs)
		if info.TotalMemory > 0 {
			printField("Memory", fmt.Sprintf("%s free of %s", formatBytes(info.FreeMemory), formatBytes(info.TotalMemory)))
		}
		fmt.Println()
		return nil
	})
}

var eventNames = map[string]ipc.EventType{
	"detection":  ipc.EventDetection,
	"status":     ipc.EventStatus,
	"monitoring": ipc.EventMonitoring,
	"cleared":    ipc.EventHistoryCleared,
	"shutdown":   ipc.EventDaemonShutdown,
}

// cmdWatch streams events until interrupted or the daemon shuts down.
func cmdWatch(args []string) {
	var types []ipc.EventType
	for _, a := range args {
		t, ok := eventNames[strings.ToLower(a)]
		if !ok {
			printError("unknown event type: " + a)
			os.Exit(1)
		}
		types = append(types, t)
	}
	if len(types) > 0 {
		types = append(types, ipc.EventDaemonShutdown)
	}

	client := connect()
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Subscribe(ctx, types...); err != nil {
		printError(fmt.Sprintf("subscribe: %v", err))
		return
	}
	fmt.Fprintf(os.Stderr, "%sWatching events (Ctrl+C to stop)%s\n", c.Dim, c.Reset)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				printError("connection to daemon lost")
				return
			}
			if printEvent(ev) {
				return
			}
		}
	}
}

// printEvent renders one streamed event. It reports whether the daemon is
// shutting down.
func printEvent(ev *ipc.Event) bool {
	ts := c.Dim + ev.Timestamp.Format(time.TimeOnly) + c.Reset
	switch ev.Type {
	case ipc.EventDetection:
		var d activity.Event
		if err := ev.Decode(&d); err != nil {
			return false
		}
		color := c.Yellow
		if d.Severity == activity.SeverityHigh {
			color = c.Red
		}
		fmt.Printf("%s %s%-6s%s %s\n", ts, color, d.Severity, c.Reset, report.Describe(d))
	case ipc.EventStatus:
		var s dashboard.Snapshot
		if err := ev.Decode(&s); err != nil {
			return false
		}
		fmt.Printf("%s %s\n", ts, s.Status.String())
	case ipc.EventMonitoring:
		var m ipc.MonitoringEvent
		if err := ev.Decode(&m); err != nil {
			return false
		}
		state := "stopped"
		if m.Monitoring {
			state = "started"
		}
		fmt.Printf("%s detection %s by %s\n", ts, state, m.Actor)
	case ipc.EventHistoryCleared:
		fmt.Printf("%s history cleared\n", ts)
	case ipc.EventDaemonShutdown:
		fmt.Printf("%s daemon shutting down\n", ts)
		return true
	}
	return false
}

func cmdPing() {
	withClient(func(ctx context.Context, client *ipc.IPCClient) error {
		start := time.Now()
		if err := client.Ping(ctx); err != nil {
			if errors.Is(err, ipc.ErrTimeout) {
				return fmt.Errorf("daemon did not answer within %s", *timeout)
			}
			return err
		}
		srv := client.Server()
		printSuccess(fmt.Sprintf("clueless %s on %s answered in %s", srv.ServerVersion, srv.Platform,
			time.Since(start).Round(time.Microsecond)))
		return nil
	})
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
