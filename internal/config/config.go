// Package config builds the server's CLI surface: a cobra command that
// preserves the positional `<binary> [port] [session_timeout_seconds]`
// contract while layering pflag/viper for flag and environment overrides.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort           = 8888
	DefaultSessionTimeout = time.Hour
	DefaultDataDir        = "data"
	DefaultListenBacklog  = 64
)

// Config is the resolved set of knobs a server instance runs with.
type Config struct {
	Port           int
	SessionTimeout time.Duration
	DataDir        string
}

// Bind registers the server's flags on cmd and wires a viper instance
// that layers: positional args > flags > CHAT_* environment > defaults.
// Resolve, called from cmd's RunE, performs the actual merge.
func Bind(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("chat")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	flags.Int("port", DefaultPort, "TCP port to listen on")
	flags.Duration("session-timeout", DefaultSessionTimeout, "session idle timeout")
	flags.String("data-dir", DefaultDataDir, "directory for persistent storage")

	bindFlag(v, flags, "port")
	bindFlag(v, flags, "session-timeout")
	bindFlag(v, flags, "data-dir")

	return v
}

func bindFlag(v *viper.Viper, flags *pflag.FlagSet, name string) {
	if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("config: bind flag %q: %v", name, err))
	}
}

// Resolve merges viper's flag/env layer with the legacy positional
// arguments `[port] [session_timeout_seconds]`, which win when present
// (spec.md §6.2's startup contract predates the flag surface and must
// keep working unchanged).
func Resolve(v *viper.Viper, args []string) (Config, error) {
	cfg := Config{
		Port:           v.GetInt("port"),
		SessionTimeout: v.GetDuration("session-timeout"),
		DataDir:        v.GetString("data-dir"),
	}

	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("config: invalid port %q", args[0])
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		secs, err := strconv.Atoi(args[1])
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid session_timeout_seconds %q", args[1])
		}
		if secs > 0 {
			cfg.SessionTimeout = time.Duration(secs) * time.Second
		} else {
			cfg.SessionTimeout = DefaultSessionTimeout
		}
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	return cfg, nil
}
