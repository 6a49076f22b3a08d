// clueless watches a desktop session for signs that an AI writing or chat
// assistant is in use.
//
//	clueless run        Run the detection daemon
//	clueless scan       Monitor for a fixed time and print a report
//	clueless config     Inspect or create the configuration file
//	clueless version    Print version information
package main

import (
	"fmt"
	"os"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "run":
		cmdRun(args)
	case "scan":
		cmdScan(args)
	case "config":
		cmdConfig(args)
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`clueless - AI assistance detection

USAGE:
    clueless <command> [options]

COMMANDS:
    run                 Run the detection daemon
    scan                Monitor for a while and print a report
    config <action>     Manage configuration (path, show, init, validate)
    version             Show version information
    help                Show this help message

RUN OPTIONS:
    -config <path>      Configuration file (default: platform config dir)
    -start              Begin detection immediately
    -no-ipc             Do not open the control socket

SCAN OPTIONS:
    -config <path>      Configuration file
    -duration <d>       How long to monitor (default 30s)
    -format <f>         Report format: text, json or yaml

Control a running daemon with cluelessctl.`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
