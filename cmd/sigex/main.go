package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/config"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// app carries state shared by the commands of one invocation.
type app struct {
	v          *viper.Viper
	home       string
	configPath string
	cfg        appConfig
	logger     *zap.Logger
	closeLog   func()
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if a.closeLog != nil {
		a.closeLog()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sigex",
		Short: "sigex - extract signals from log files",
		Long: `sigex turns text logs (CSV, line patterns, JSON, YAML, XML) into
records of named signals with positioned, severity-tagged samples.
Inputs are described by profiles; results go to DuckDB or a msgpack stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	a.home = home
	a.v = newViper(home)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default is $HOME/.config/sigex/config.yml)")
	flags.String("log-level", defaultLogLevel, "log level: debug, info, warn, error")
	flags.Bool("log-stderr", false, "log to stderr instead of the log file")
	flags.String("profiles", "", "profile file merged over the built-in profiles")
	for _, name := range []string{"log-level", "log-stderr", "profiles"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newRunCmd(a),
		newImportCmd(a),
		newServeCmd(a),
		newLog4jCmd(a),
		newProfilesCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the config and builds the logger once per invocation.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, a.home, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, closeLog, err := configureRuntimeLogger(cfg)
	if err != nil {
		return err
	}
	a.logger = logger.With(zap.String("cmd", cmd.Name()))
	a.closeLog = closeLog
	return nil
}

// profiles returns the built-in catalogue merged with the configured file.
func (a *app) profiles() (*config.File, error) {
	builtin := config.Builtin()
	if a.cfg.Profiles == "" {
		return builtin, nil
	}
	f, err := config.Load(a.cfg.Profiles)
	if err != nil {
		return nil, err
	}
	return builtin.Merge(f), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "sigex - log signal extraction\n")
	fmt.Fprintf(w, "  Version:    %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", buildTime)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
}
