package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TASKRUNNER"

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"brokers":   "brokers",
	"state-dir": "state_dir",
	"storage":   "storage",
	"log-level": "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("brokers", []string{"localhost:9092"})
	v.SetDefault("client_id", "taskrunner")
	v.SetDefault("state_dir", "./state")
	v.SetDefault("storage", "file")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("max_instances", 0)

	v.SetDefault("runtime.commit_interval", "5s")
	v.SetDefault("runtime.commit_max_count", 0)
	v.SetDefault("runtime.dequeue_timeout", "1s")
	v.SetDefault("runtime.queue_size", 1000)

	v.SetDefault("reader.poll_timeout", "1s")
	v.SetDefault("reader.backoff.initial", "100ms")
	v.SetDefault("reader.backoff.max", "10s")
	v.SetDefault("reader.backoff.multiplier", 2.0)
	v.SetDefault("reader.warn_after", "10s")
	v.SetDefault("reader.error_after", "1m")
}

// Load reads configuration from defaults, the optional file at path, TASKRUNNER_
// environment variables and changed flags, in increasing precedence. The result is
// validated before it is returned.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RegisterFlags adds the flags Load binds to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("brokers", nil, "bootstrap brokers")
	fs.String("state-dir", "", "directory for offsets and state")
	fs.String("storage", "", "storage backend: file or pebble")
	fs.String("log-level", "", "log level: debug, info, warn or error")
}
