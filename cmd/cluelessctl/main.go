// cluelessctl is the control CLI for the clueless daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"clueless/internal/config"
	"clueless/internal/ipc"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	configPath = flag.String("config", "", "path to config file")
	socketPath = flag.String("socket", "", "daemon socket (overrides config)")
	timeout    = flag.Duration("timeout", 30*time.Second, "request timeout")
	noColor    = flag.Bool("no-color", false, "disable colored output")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	if *noColor || os.Getenv("NO_COLOR") != "" {
		c = palette{}
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus()
	case "start":
		cmdStart()
	case "stop":
		cmdStop()
	case "report":
		cmdReport(args)
	case "clear":
		cmdClear()
	case "export":
		cmdExport(args)
	case "overlay":
		cmdOverlay(args)
	case "processes", "ps":
		cmdProcesses(args)
	case "network":
		cmdNetwork()
	case "sysinfo":
		cmdSysInfo()
	case "watch":
		cmdWatch(args)
	case "ping":
		cmdPing()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `cluelessctl - Control utility for clueless

Usage: cluelessctl [options] <command> [args]

Commands:
  status              Show daemon and detection status
  start               Start detection
  stop                Stop detection
  report [-format f]  Print the detection report (text, json, yaml)
  clear               Clear detection history
  export [-o file]    Export the security report as JSON
  overlay <show|hide> Show or hide the status overlay
  processes [-ai]     List processes on the monitored host
  network             List network connections
  sysinfo             Show host information
  watch [types...]    Stream events (detection, status, monitoring, cleared)
  ping                Check that the daemon responds
  help                Show this help message

Options:
  -config <path>      Path to config file (used to find the socket)
  -socket <path>      Daemon socket path
  -timeout <d>        Request timeout (default 30s)
  -no-color           Disable colored output`)
}

// connect opens a handshaken client or exits.
func connect() *ipc.IPCClient {
	path := *socketPath
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			printError(fmt.Sprintf("Loading config: %v", err))
			os.Exit(1)
		}
		path = cfg.IPC.SocketPath
	}

	cfg := ipc.DefaultClientConfig(path)
	cfg.ClientVersion = Version
	cfg.RequestTimeout = *timeout

	client := ipc.NewClient(cfg)
	if err := client.Connect(context.Background()); err != nil {
		printError(fmt.Sprintf("Cannot connect to daemon: %v", err))
		fmt.Fprintf(os.Stderr, "  %sTip%s: Start the daemon with: clueless run\n", c.Dim, c.Reset)
		os.Exit(1)
	}
	return client
}

// withClient runs fn against a connected client, exiting on error.
func withClient(fn func(ctx context.Context, client *ipc.IPCClient) error) {
	client := connect()
	defer client.Close()

	if err := fn(context.Background(), client); err != nil {
		printError(err.Error())
		client.Close()
		os.Exit(1)
	}
}
