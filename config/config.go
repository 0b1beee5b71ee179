package config

import (
	"time"

	tasks "github.com/hugolhafner/go-tasks"
	"github.com/hugolhafner/go-tasks/reader"
	"github.com/hugolhafner/go-tasks/runtime"
)

// Config is the process configuration of a task runner.
type Config struct {
	Brokers        []string `mapstructure:"brokers" validate:"required,min=1,dive,required"`
	ClientID       string   `mapstructure:"client_id" validate:"required"`
	StateDir       string   `mapstructure:"state_dir" validate:"required"`
	Storage        string   `mapstructure:"storage" validate:"required,oneof=file pebble"`
	LogLevel       string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDevelopment bool     `mapstructure:"log_development"`
	MaxInstances   int      `mapstructure:"max_instances" validate:"gte=0"`

	Runtime RuntimeConfig `mapstructure:"runtime"`
	Reader  ReaderConfig  `mapstructure:"reader"`
	Tasks   []TaskConfig  `mapstructure:"tasks" validate:"required,min=1,dive"`
}

type RuntimeConfig struct {
	CommitInterval time.Duration `mapstructure:"commit_interval" validate:"gt=0"`
	CommitMaxCount int           `mapstructure:"commit_max_count" validate:"gte=0"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout" validate:"gt=0"`
	QueueSize      int           `mapstructure:"queue_size" validate:"gt=0"`
}

type ReaderConfig struct {
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gt=0"`
	Backoff     BackoffConfig `mapstructure:"backoff"`
	WarnAfter   time.Duration `mapstructure:"warn_after" validate:"gte=0"`
	ErrorAfter  time.Duration `mapstructure:"error_after" validate:"gtefield=WarnAfter"`
}

type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial" validate:"gt=0"`
	Max        time.Duration `mapstructure:"max" validate:"gtefield=Initial"`
	Multiplier float64       `mapstructure:"multiplier" validate:"gte=1"`
}

// TaskConfig assigns partitions to a registered task. Settings are passed to the
// task's Init.
type TaskConfig struct {
	Name       string         `mapstructure:"name" validate:"required"`
	Partitions []int32        `mapstructure:"partitions" validate:"required,min=1,unique,dive,gte=0"`
	Settings   map[string]any `mapstructure:"settings"`
}

// Assignments expands every configured task into one assignment per partition.
func (c *Config) Assignments() []tasks.Assignment {
	var out []tasks.Assignment
	for _, t := range c.Tasks {
		for _, p := range t.Partitions {
			out = append(out, tasks.Assignment{Task: t.Name, Partition: p, Settings: t.Settings})
		}
	}
	return out
}

func (c *Config) RuntimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithCommitInterval(c.Runtime.CommitInterval),
		runtime.WithCommitMaxCount(c.Runtime.CommitMaxCount),
		runtime.WithDequeueTimeout(c.Runtime.DequeueTimeout),
		runtime.WithQueueSize(c.Runtime.QueueSize),
		runtime.WithReaderOptions(
			reader.WithPollTimeout(c.Reader.PollTimeout),
			reader.WithBackoff(c.Reader.Backoff.Initial, c.Reader.Backoff.Max, c.Reader.Backoff.Multiplier),
			reader.WithEscalation(c.Reader.WarnAfter, c.Reader.ErrorAfter),
		),
	}
}
