package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/runtime"
	"github.com/hugolhafner/go-tasks/storage"
	"github.com/hugolhafner/go-tasks/task"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

// Application runs one runtime per assignment. Instances share the broker client
// and storage backend but no state; a failing instance never stops its siblings.
type Application struct {
	client      kafka.Client
	backend     storage.Backend
	registry    *task.Registry
	assignments []Assignment
	config      Config

	logger logger.Logger

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewApplication(
	client kafka.Client,
	backend storage.Backend,
	registry *task.Registry,
	assignments []Assignment,
	opts ...ConfigOption,
) (*Application, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(client, backend, registry, assignments, config)
}

func NewApplicationWithConfig(
	client kafka.Client,
	backend storage.Backend,
	registry *task.Registry,
	assignments []Assignment,
	config Config,
) (*Application, error) {
	if len(assignments) == 0 {
		return nil, errors.New("no task assignments")
	}
	if config.MaxInstances > 0 && len(assignments) > config.MaxInstances {
		return nil, fmt.Errorf("%d assignments exceed max instances %d", len(assignments), config.MaxInstances)
	}

	type instance struct {
		task      string
		partition int32
	}

	seen := make(map[instance]struct{}, len(assignments))
	for _, a := range assignments {
		if _, err := registry.Lookup(a.Task); err != nil {
			return nil, err
		}

		id := instance{task: a.Task, partition: a.Partition}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("task %s partition %d assigned twice", a.Task, a.Partition)
		}
		seen[id] = struct{}{}
	}

	return &Application{
		client:      client,
		backend:     backend,
		registry:    registry,
		assignments: assignments,
		config:      config,
		logger:      config.Logger.With("component", "application"),
		closedCh:    make(chan struct{}),
	}, nil
}

// Run starts every instance and blocks until all of them stopped, either because
// ctx was cancelled, Close was called or they failed. Instance failures are
// combined into the returned error.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}

	runtimes := make([]*runtime.Runtime, len(a.assignments))
	for i, as := range a.assignments {
		rt, err := a.newRuntime(as)
		if err != nil {
			return err
		}
		runtimes[i] = rt
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	a.logger.Info("Application started", "instances", len(runtimes), "version", Version)

	var (
		g      errgroup.Group
		errMu  sync.Mutex
		runErr error
	)

	for i, rt := range runtimes {
		as := a.assignments[i]

		// never return an error to the group, it would not cancel siblings anyway
		g.Go(
			func() error {
				if err := rt.Run(runCtx); err != nil {
					a.logger.Error(
						"Task instance stopped with error",
						"task", as.Task, "partition", as.Partition, "error", err,
					)

					errMu.Lock()
					runErr = multierr.Append(runErr, fmt.Errorf("task %s partition %d: %w", as.Task, as.Partition, err))
					errMu.Unlock()
				}
				return nil
			},
		)
	}

	_ = g.Wait()

	a.logger.Info("Application stopped", "failed_instances", len(multierr.Errors(runErr)))
	return runErr
}

func (a *Application) newRuntime(as Assignment) (*runtime.Runtime, error) {
	factory, err := a.registry.Lookup(as.Task)
	if err != nil {
		return nil, err
	}

	opts := append(
		append([]runtime.Option(nil), a.config.RuntimeOptions...),
		runtime.WithTask(as.Task, as.Partition),
		runtime.WithSettings(as.Settings),
		runtime.WithLogger(a.config.Logger),
		runtime.WithTelemetry(a.config.Telemetry),
	)

	rt, err := runtime.New(factory(), a.client, a.backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("create runtime for task %s partition %d: %w", as.Task, as.Partition, err)
	}
	return rt, nil
}

// Close stops a running application. It is safe to call more than once.
func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
