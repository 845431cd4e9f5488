package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/retrixe/glassarch/internal/config"
)

const version = "1.0.0-dev"

type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

type app struct {
	opts globalOptions
	log  *logrus.Logger
}

func newApp() *app {
	return &app{log: logrus.New()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "glassArch",
		Short: "Install Arch Linux to a disk, optionally with an encrypted root.",
		Long: "glassArch installs a minimal Arch Linux system to a target disk: it partitions the disk,\n" +
			"optionally encrypts the root partition with LUKS2, installs the base system with pacstrap\n" +
			"and configures it in a chroot. All data on the target disk is ERASED.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setupLogging(cmd)
		},
	}
	root.SetVersionTemplate("glassArch version v{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configFile, "config", "", "Path to a config file (YAML, TOML or JSON)")
	flags.StringVar(&a.opts.envFile, "env-file", "", "Path to a file of GLASSARCH_* KEY=VALUE lines")
	flags.StringVar(&a.opts.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.StringVar(&a.opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		a.installCmd(),
		a.wizardCmd(),
		a.tuiCmd(),
		a.disksCmd(),
		a.configCmd(),
	)

	return root
}

func (a *app) setupLogging(cmd *cobra.Command) error {
	level, err := logrus.ParseLevel(a.opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	a.log.SetLevel(level)
	a.log.SetOutput(cmd.ErrOrStderr())

	switch strings.ToLower(a.opts.logFormat) {
	case "text":
		a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		a.log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (available options: text, json)", a.opts.logFormat)
	}

	return nil
}

// loadConfig reads the configuration for cmd. Flags of cmd override every
// other source.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()

	if err := config.LoadFiles(v, a.opts.configFile, a.opts.envFile); err != nil {
		return nil, err
	}

	var bindErr error
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if _, ok := config.Defaults()[f.Name]; !ok {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	if a.log.IsLevelEnabled(logrus.DebugLevel) {
		a.log.Debugf("effective configuration: %s", litter.Sdump(cfg.Redacted()))
	}

	return cfg, nil
}

// signalContext is cancelled on SIGINT and SIGTERM, aborting the running
// command. Cleanup still runs.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	a := newApp()

	if err := a.rootCmd().ExecuteContext(context.Background()); err != nil {
		var shown *silentError
		if !errors.As(err, &shown) {
			a.log.Error(err)
		}
		os.Exit(1)
	}
}

// silentError is returned when the error was already shown to the user.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }
