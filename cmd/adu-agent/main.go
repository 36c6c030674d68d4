// Command adu-agent is the Device Update agent.
//
// The agent connects to the Device Update service over MQTT v5, keeps the
// service-to-device topic subscribed and enrolls the device with the
// service. Enrollment is re-checked periodically so revocation is noticed.
//
// Usage:
//
//	adu-agent [flags]
//
// Flags:
//
//	-config string        Configuration file path (default "/etc/adu/du-config.yaml")
//	-device-id string     External device id (overrides agent.externalDeviceId)
//	-state-file string    State Store file (overrides stateFile)
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-metrics-addr string  Prometheus listen address (overrides metricsAddress)
//	-log-level string     Log level: debug, info, warn, error
//	-interval duration    Module polling interval (default 1s)
//	-interactive          Start the interactive console
//
// Examples:
//
//	# Run with the default configuration
//	adu-agent
//
//	# Run against a local broker with an interactive console
//	adu-agent -config ./du-config.yaml -device-id dev-1 -interactive
//
//	# Capture a protocol trace for adu-log
//	adu-agent -protocol-log /tmp/agent.alog -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geebinge/iot-hub-device-update/cmd/adu-agent/interactive"
	"github.com/geebinge/iot-hub-device-update/pkg/config"
	mlog "github.com/geebinge/iot-hub-device-update/pkg/log"
	"github.com/geebinge/iot-hub-device-update/pkg/module"
)

// Flags holds the command-line settings.
type Flags struct {
	ConfigFile  string
	DeviceID    string
	StateFile   string
	ProtocolLog string
	MetricsAddr string
	LogLevel    string
	Interval    time.Duration
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", config.DefaultPath, "Configuration file path")
	flag.StringVar(&flags.DeviceID, "device-id", "", "External device id (overrides agent.externalDeviceId)")
	flag.StringVar(&flags.StateFile, "state-file", "", "State Store file (overrides stateFile)")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Prometheus listen address (overrides metricsAddress)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.DurationVar(&flags.Interval, "interval", module.DefaultInterval, "Module polling interval")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive console")
}

func main() {
	flag.Parse()

	file, err := config.Load(flags.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyFlags(file)

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		out = console.Stderr()
	}

	logger := setupLogging(out, file.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Device Update agent starting",
		"config", flags.ConfigFile,
		"agent", file.Agent.Name,
		"connection_type", file.Agent.ConnectionType)

	var fileLog mlog.Logger
	if file.ProtocolLog != "" {
		fl, err := mlog.NewFileLogger(file.ProtocolLog, mlog.WithMaxSize(file.ProtocolLogMaxSize))
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		defer fl.Close()
		fileLog = fl
		logger.Info("protocol logging enabled", "path", file.ProtocolLog, "max_size", file.ProtocolLogMaxSize)
	}
	var consoleLog mlog.Logger
	if file.LogLevel == "debug" {
		consoleLog = mlog.NewSlogAdapter(logger.With("component", "protocol"))
	}
	plog := mlog.Combine(fileLog, consoleLog)

	a, err := newAgent(file, agentOptions{
		DeviceID:       flags.DeviceID,
		Interval:       flags.Interval,
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if file.MetricsAddress != "" {
		srv := serveMetrics(file.MetricsAddress, logger)
		defer srv.Close()
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if console != nil {
		console.Attach(a.store, a.channel, a.enrollment.Operation())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}

	if err := <-done; err != nil {
		logger.Error("agent stopped", "error", err)
	}

	logger.Info("shutting down")
	if err := a.Close(); err != nil {
		logger.Error("saving state", "error", err)
	}
}

// applyFlags overrides configuration values given on the command line.
func applyFlags(file *config.File) {
	if flags.StateFile != "" {
		file.StateFile = flags.StateFile
	}
	if flags.ProtocolLog != "" {
		file.ProtocolLog = flags.ProtocolLog
	}
	if flags.MetricsAddr != "" {
		file.MetricsAddress = flags.MetricsAddr
	}
	if flags.LogLevel != "" {
		file.LogLevel = flags.LogLevel
	}
}

func setupLogging(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(fmt.Sprintf("metrics server: %v", err))
		}
	}()
	return srv
}
