// Command aggregator runs a standalone secure aggregation server.
//
// The server hosts the committee and the round state machine for one of the
// two protocol variants and exposes them over HTTP.
//
// # Configuration File
//
// Create a YAML file with server settings:
//
//	http_addr: ":8080"
//	mode: "eagle"          # or "owl"
//	tick_interval: 1s
//	params:
//	  vector_length: 16
//	  committee_size: 5
//	  threshold: 3
//	  min_online: 2
//	  round_deadline: 10s
//	  window_min_contributions: 3
//	  window_max_age: 30s
//
// # Usage
//
//	go run ./cmd/aggregator --config=aggregator.yaml
//	go run ./cmd/aggregator --addr=:8080 --mode=owl
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtaiello/let-them-drop/api/httpserver"
	"github.com/rtaiello/let-them-drop/cmd/common"
	"github.com/rtaiello/let-them-drop/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		mode        = flag.String("mode", "", "Protocol variant: eagle or owl")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
		logJSON     = flag.Bool("log-json", false, "Log in JSON format")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	var err error
	if *configPath != "" {
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Command-line flags override config file
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *logJSON {
		cfg.LogJSON = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	log := common.NewLogger(cfg.LogJSON)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var registrar httpserver.RouteRegistrar
	switch cfg.Mode {
	case "eagle":
		svc, err := services.NewEagleService(cfg.Params, log)
		if err != nil {
			fmt.Printf("Create service error: %v\n", err)
			os.Exit(1)
		}
		go svc.Run(ctx, cfg.TickInterval)
		registrar = svc
	case "owl":
		svc, err := services.NewOwlService(cfg.Params, log)
		if err != nil {
			fmt.Printf("Create service error: %v\n", err)
			os.Exit(1)
		}
		go svc.Run(ctx, cfg.TickInterval)
		registrar = svc
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, registrar)
	if err != nil {
		fmt.Printf("Create server error: %v\n", err)
		os.Exit(1)
	}

	log.Info("aggregator starting", "addr", cfg.HTTPAddr, "mode", cfg.Mode)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	srv.Shutdown()
}
