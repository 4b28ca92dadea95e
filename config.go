package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	port          int
	mongoURI      string
	mongoDatabase string
	mongoTLS      bool
	memory        bool
	sessionTTL    time.Duration
	sweepInterval time.Duration
	clockSync     bool
	verbose       bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if !c.memory && c.mongoURI == "" {
		return errors.New("--mongodb-uri is required unless --memory is set")
	}
	if c.sessionTTL <= 0 {
		return fmt.Errorf("invalid session ttl: %s", c.sessionTTL)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("invalid sweep interval: %s", c.sweepInterval)
	}
	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STOP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	serve := func(cmd *cobra.Command, args []string) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		return Serve(cmd.Context(), cfg)
	}

	cmd := &cobra.Command{
		Use:     "stop-trivia",
		Short:   "Session gateway for multiplayer rounds of Stop.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		RunE:    serve,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket gateway (default)",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete abandoned sessions once and exit",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return SweepOnce(cmd.Context(), cfg)
		},
	})

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STOP_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 5000, "port to listen on (env: STOP_PORT)")
	fs.StringVar(&cfg.mongoURI, "mongodb-uri", "", "MongoDB connection string, must point at a replica set (env: STOP_MONGODB_URI)")
	fs.StringVar(&cfg.mongoDatabase, "mongodb-database", "stop", "MongoDB database name (env: STOP_MONGODB_DATABASE)")
	fs.BoolVar(&cfg.mongoTLS, "mongodb-tls", false, "connect to MongoDB over TLS (env: STOP_MONGODB_TLS)")
	fs.BoolVar(&cfg.memory, "memory", false, "keep sessions in process memory instead of MongoDB (env: STOP_MEMORY)")
	fs.DurationVar(&cfg.sessionTTL, "session-ttl", 24*time.Hour, "age after which sessions are swept (env: STOP_SESSION_TTL)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", 10*time.Minute, "time between sweeps (env: STOP_SWEEP_INTERVAL)")
	fs.BoolVar(&cfg.clockSync, "clock-sync", false, "estimate the store clock offset on create and join (env: STOP_CLOCK_SYNC)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: STOP_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("stop-trivia v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
