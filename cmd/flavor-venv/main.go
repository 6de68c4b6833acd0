package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	"github.com/provide-io/flavor/go/venv/internal/config"
	"github.com/provide-io/flavor/go/venv/pkg/logging"
	"github.com/provide-io/flavor/go/venv/pkg/shellparse"
	"github.com/provide-io/flavor/go/venv/pkg/venv"
	"github.com/provide-io/flavor/go/venv/pkg/venv/bootstrap"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

const (
	progName      = "flavor-venv"
	defaultTarget = ".venv"
	argsEnv       = "FLAVOR_VENV_ARGS"
)

type flags struct {
	python             string
	bare               bool
	noPip              bool
	noSetuptools       bool
	noWheel            bool
	systemSitePackages bool
	clear              bool
	prompt             string
	jobs               int
	offline            bool
	logLevel           string
	configPath         string
	version            bool
}

func getBuildTimestamp() string {
	// Try to get vcs.time from build info
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	// Fallback to binary modification time
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	extra, err := shellparse.Split(os.Getenv(argsEnv))
	if err != nil {
		err = venverrors.Wrap(venverrors.ErrInvalidArgs, err, "invalid %s", argsEnv)
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return venverrors.ExitCode(err)
	}
	args = append(extra, args...)

	cmd := newRootCmd(stdout, stderr, args)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", progName, err)
		return venverrors.ExitCode(err)
	}
	return 0
}

func invalidArgs(err error) error {
	if err == nil || venverrors.Category(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %w", venverrors.ErrInvalidArgs, err)
}

func newRootCmd(stdout, stderr io.Writer, argv []string) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           progName + " [path]",
		Short:         "Create an isolated Python environment",
		Long:          `Create an isolated Python environment with pip, setuptools and wheel at path (default .venv)`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			return invalidArgs(cobra.MaximumNArgs(1)(cmd, args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.version {
				fmt.Fprintf(stdout, "%s %s\n", progName, venv.Version)
				fmt.Fprintf(stdout, "Built: %s\n", getBuildTimestamp())
				return nil
			}
			target := defaultTarget
			if len(args) == 1 {
				target = args[0]
			}
			return create(cmd, f, target, append([]string{progName}, argv...), stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidArgs(err)
	})

	fl := cmd.Flags()
	fl.StringVarP(&f.python, "python", "p", "", "Interpreter to base the environment on (name, version or path)")
	fl.BoolVar(&f.bare, "bare", false, "Do not install any seed package")
	fl.BoolVar(&f.noPip, "no-pip", false, "Do not install pip")
	fl.BoolVar(&f.noSetuptools, "no-setuptools", false, "Do not install setuptools")
	fl.BoolVar(&f.noWheel, "no-wheel", false, "Do not install wheel")
	fl.BoolVar(&f.systemSitePackages, "system-site-packages", false, "Give the environment access to the system site-packages")
	fl.BoolVar(&f.clear, "clear", false, "Remove the contents of a non-empty target first")
	fl.StringVar(&f.prompt, "prompt", "", "Prompt prefix for activated shells (. uses the current directory name)")
	fl.IntVar(&f.jobs, "jobs", 0, "Install seed packages with up to N concurrent workers")
	fl.BoolVar(&f.offline, "offline", false, "Never download seed packages")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fl.StringVar(&f.configPath, "config", "", "Path to the configuration file")
	fl.BoolVarP(&f.version, "version", "V", false, "Show version information")

	cmd.AddCommand(newEmbedWheelCmd(stderr))
	return cmd
}

func create(cmd *cobra.Command, f *flags, target string, commandLine []string, stdout, stderr io.Writer) error {
	configPath := f.configPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return venverrors.Wrap(venverrors.ErrInvalidArgs, err, "loading configuration")
	}

	fl := cmd.Flags()
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("jobs") {
		if f.jobs < 0 {
			return venverrors.Wrap(venverrors.ErrInvalidArgs, nil, "--jobs must not be negative, got %d", f.jobs)
		}
		cfg.Jobs = f.jobs
	}
	if fl.Changed("offline") {
		cfg.Offline = f.offline
	}
	cache := cachedir.New(cfg.CacheDir)
	logger := logging.NewLogger(progName, cfg.LogLevel, stderr)
	logger.Debug("🔧 Configuration loaded",
		"config", configPath,
		"jobs", cfg.Jobs,
		"offline", cfg.Offline,
		"cache", cache.Path(),
		"index_url", cfg.IndexURL)

	engine := venv.NewEngine(
		venv.WithLogger(logger),
		venv.WithStrategy(bootstrap.StrategyFor(cfg.Jobs)),
		venv.WithCache(cache),
		venv.WithIndexURL(cfg.IndexURL),
		venv.WithOffline(cfg.Offline),
		venv.WithDefaultPython(cfg.DefaultPython),
		venv.WithQueryTimeout(cfg.QueryTimeout),
	)

	result, err := engine.Create(cmd.Context(), venv.Request{
		Target: target,
		Python: f.python,
		Options: venv.Options{
			SystemSitePackages: f.systemSitePackages,
			NoPip:              f.noPip,
			NoSetuptools:       f.noSetuptools,
			NoWheel:            f.noWheel,
			Bare:               f.bare,
			Clear:              f.clear,
			Prompt:             f.prompt,
		},
		CommandLine: commandLine,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("⚠️ Interrupted, the environment may be incomplete", "target", target)
		}
		return err
	}

	fmt.Fprintf(stdout, "created virtual environment %s in %dms\n",
		result.Interpreter.Spec(), result.Elapsed.Milliseconds())
	return nil
}

func newEmbedWheelCmd(stderr io.Writer) *cobra.Command {
	var exePath, wheelPath, logLevel string

	cmd := &cobra.Command{
		Use:   "embed-wheel",
		Short: "Store a wheel as an RCDATA resource of a Windows executable",
		Args: func(cmd *cobra.Command, args []string) error {
			return invalidArgs(cobra.NoArgs(cmd, args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if exePath == "" || wheelPath == "" {
				return venverrors.Wrap(venverrors.ErrInvalidArgs, nil, "--exe and --wheel are required")
			}
			if logLevel == "" {
				logLevel = logging.GetLogLevel()
			}
			logger := logging.NewLogger(progName, logLevel, stderr)
			return bootstrap.EmbedWheelResource(exePath, wheelPath, logger)
		},
	}
	cmd.Flags().StringVar(&exePath, "exe", "", "Executable to modify (required)")
	cmd.Flags().StringVar(&wheelPath, "wheel", "", "Wheel archive to embed (required)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	return cmd
}
