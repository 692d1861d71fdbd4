package config

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	Agents     *string
}

// RegisterFlags declares the override flags on fs. Used by the cobra root
// command and by ParseFlags.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to YAML config")
	fs.StringP("port", "p", "", "HTTP port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("dsn", "", "PostgreSQL DSN")
	fs.String("nats-url", "", "NATS URL")
	fs.String("agents", "", "comma-separated agent queues to consume")
}

// FlagsFrom collects the flags that were explicitly set on fs.
func FlagsFrom(fs *pflag.FlagSet) CLIFlags {
	var out CLIFlags
	pick := func(name string) *string {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			return nil
		}
		v := f.Value.String()
		return &v
	}
	out.ConfigPath = pick("config")
	out.Port = pick("port")
	out.LogLevel = pick("log-level")
	out.DSN = pick("dsn")
	out.NatsURL = pick("nats-url")
	out.Agents = pick("agents")
	return out
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (CLIFlags, error) {
	fs := pflag.NewFlagSet("conductor", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}
	return FlagsFrom(fs), nil
}

// LoadWithCLI loads defaults < YAML < ENV < CLI and returns the config
// together with the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, f CLIFlags) {
	if f.Port != nil {
		cfg.Server.Port = *f.Port
	}
	if f.LogLevel != nil {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.DSN != nil {
		cfg.Postgres.DSN = *f.DSN
	}
	if f.NatsURL != nil {
		cfg.NATS.URL = *f.NatsURL
	}
	if f.Agents != nil {
		cfg.Worker.Agents = splitList(*f.Agents)
	}
}
