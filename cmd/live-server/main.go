package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	appserver "live-core/internal/app/server"
	"live-core/internal/config"
	"live-core/internal/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file (default: search live.yaml / server.yaml)")
		showVersion = flag.Bool("version", false, "Show version information")
		quiet       = flag.Bool("quiet", false, "Do not print the startup banner")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Live Push Server")
		fmt.Fprintln(os.Stderr, "Usage: live-server [options]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  live-server                         # defaults + environment")
		fmt.Fprintln(os.Stderr, "  live-server -config ./live.yaml")
		fmt.Fprintln(os.Stderr, "  BROKER_TYPE=redis REDIS_ADDRS=localhost:6379 live-server")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("Live Server %s\n", version.GetVersion())
		return
	}

	cfg, configFile, err := config.LoadFile(*configPath, config.AppTypeServer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	srv, err := appserver.New(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		srv.DisplayStartupBanner(os.Stdout, configFile)
	}

	if err := srv.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Server exited with error: %v\n", err)
		os.Exit(1)
	}
}
