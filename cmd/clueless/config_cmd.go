package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"clueless/internal/config"
)

func cmdConfig(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: clueless config <path|show|init|validate> [-config <path>]")
		os.Exit(1)
	}

	action := args[0]
	fs := flag.NewFlagSet("config "+action, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	format := fs.String("format", "toml", "output format for show: toml, json or yaml")
	fs.Parse(args[1:])

	path := config.ResolvePath(*configPath)

	switch action {
	case "path":
		fmt.Println(path)

	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			fatalf("loading config: %v", err)
		}
		data, err := config.Marshal(cfg, *format)
		if err != nil {
			fatalf("%v", err)
		}
		os.Stdout.Write(data)

	case "init":
		_, created, err := config.LoadOrCreate(path)
		if err != nil {
			fatalf("%v", err)
		}
		if created {
			fmt.Printf("Wrote default configuration to %s\n", path)
		} else {
			fmt.Printf("Configuration already exists at %s\n", path)
		}

	case "validate":
		if _, err := config.Load(path); err != nil {
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				fmt.Fprintf(os.Stderr, "%s is invalid:\n", path)
				for _, e := range verrs {
					fmt.Fprintf(os.Stderr, "  - %s\n", e.Error())
				}
				os.Exit(1)
			}
			fatalf("%v", err)
		}
		fmt.Printf("%s is valid\n", path)

	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		os.Exit(1)
	}
}

func cmdVersion() {
	fmt.Printf("clueless %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				fmt.Printf("revision %s\n", s.Value)
			}
		}
	}
}
