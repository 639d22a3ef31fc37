// Command-line front end for the celled annotation editing server.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/server"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to a TOML configuration file.
	configFile = flag.String("config", "", "")

	// Address for http communication, overriding the config.
	httpAddress = flag.String("http", "", "")
)

const helpMessage = `
celled is a server for interactive editing of cell annotation label stacks

Usage: celled [options]

      -config     =string   Path to TOML configuration file.
      -http       =string   Address for HTTP communication, overrides config.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		celled.SetLogMode(celled.DebugMode)
	}

	var cfg *server.Config
	var err error
	if *configFile != "" {
		if cfg, err = server.LoadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = server.DefaultConfig()
	}
	if *httpAddress != "" {
		cfg.Server.Address = *httpAddress
	}

	svc, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start service: %v\n", err)
		os.Exit(1)
	}

	// Capture ctrl+c and other interrupts, then handle graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Serve(ctx); err != nil {
		celled.Criticalf("web server failed: %v\n", err)
	}
	svc.Close()
	celled.LogShutdown()
}
