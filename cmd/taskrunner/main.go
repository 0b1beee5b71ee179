package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tasks "github.com/hugolhafner/go-tasks"
	"github.com/hugolhafner/go-tasks/config"
	_ "github.com/hugolhafner/go-tasks/examples/clickcounter"
	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/hugolhafner/go-tasks/logger"
	tasksotel "github.com/hugolhafner/go-tasks/otel"
	"github.com/hugolhafner/go-tasks/plugins/zaplogger"
	"github.com/hugolhafner/go-tasks/storage"
	"github.com/hugolhafner/go-tasks/task"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("taskrunner", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	listTasks := fs.Bool("list-tasks", false, "print registered tasks and exit")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *listTasks {
		for _, name := range task.Default().Names() {
			fmt.Println(name)
		}
		return nil
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}

	zl, err := zaplogger.Build(logger.ParseLevel(cfg.LogLevel), cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	l := zaplogger.New(zl)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			l.Error("Failed to close storage", "error", err)
		}
	}()

	client, err := kafka.NewKgoClient(
		kafka.WithBootstrapServers(cfg.Brokers),
		kafka.WithClientID(cfg.ClientID),
		kafka.WithLogger(l),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	tel, err := tasksotel.NewTelemetry(otel.GetTracerProvider(), otel.GetMeterProvider(), nil)
	if err != nil {
		return fmt.Errorf("create telemetry: %w", err)
	}

	app, err := tasks.NewApplication(
		client, backend, task.Default(), cfg.Assignments(),
		tasks.WithLogger(l),
		tasks.WithTelemetry(tel),
		tasks.WithMaxInstances(cfg.MaxInstances),
		tasks.WithRuntimeOptions(cfg.RuntimeOptions()...),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info(
		"Starting task runner",
		"version", tasks.Version,
		"brokers", cfg.Brokers,
		"storage", cfg.Storage,
		"state_dir", cfg.StateDir,
		"instances", len(cfg.Assignments()),
	)

	return app.Run(ctx)
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage {
	case "pebble":
		return storage.NewPebbleBackend(filepath.Join(cfg.StateDir, "pebble"))
	default:
		return storage.NewFileBackend(cfg.StateDir)
	}
}
