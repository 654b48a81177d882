// Command cgt inspects, verifies, converts and exports crystal growth
// tracking projects.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cgtracker/cgt/internal/config"
	"github.com/cgtracker/cgt/internal/logging"
	intOtel "github.com/cgtracker/cgt/internal/otel"
	"github.com/cgtracker/cgt/internal/project"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const usage = `usage: cgt [global flags] <command> [flags]

commands:
  init           create an empty project in the configured storage
  summary        print displacement totals and velocities per family
  verify         load the project and report integrity problems
  convert        copy the project into another storage backend
  export-influx  write displacement series to InfluxDB
  version        print the version

global flags:
`

// exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitVerifyFail = 3
)

var errVerifyFailed = errors.New("project failed verification")

// app holds what every command needs
type app struct {
	out        io.Writer
	log        *slog.Logger
	zlog       zerolog.Logger
	logManager *logging.SlogManager
	closers    []io.Closer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"init":          runInit,
	"summary":       runSummary,
	"verify":        runVerify,
	"convert":       runConvert,
	"export-influx": runExportInflux,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("cgt", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	configDir := flags.String("config-dir", ".", "directory containing "+config.FileName)
	logLevel := flags.String("log-level", "", "log level override (debug, info, warn, error)")
	logsDir := flags.String("logs-dir", "", "directory for session log files")
	quiet := flags.BoolP("quiet", "q", false, "do not log to the console")
	storageType := flags.String("storage", "", "storage backend override (csv, sqlite, postgres)")
	dir := flags.String("dir", "", "project directory for csv storage")
	dbPath := flags.String("db-path", "", "database file for sqlite storage")
	projectName := flags.String("project", "", "project name for database storage")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return exitUsage
	}

	name, cmdArgs := flags.Arg(0), flags.Args()[1:]
	if name == "version" {
		fmt.Fprintf(stdout, "cgt %s (built %s)\n", Version, BuildDate)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		flags.Usage()
		return exitUsage
	}

	configErr := config.Load(*configDir)
	overrides := map[string]string{
		"logLevel":            *logLevel,
		"logsDir":             *logsDir,
		"storage.type":        *storageType,
		"storage.csv.dir":     *dir,
		"storage.sqlite.path": *dbPath,
		"storage.project":     *projectName,
	}
	for key, value := range overrides {
		if value != "" {
			config.Set(key, value)
		}
	}

	var console io.Writer = stderr
	if *quiet {
		console = nil
	}
	a, err := newApp(stdout, console)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	defer a.close()

	if configErr != nil {
		a.log.Warn("Failed to load config, using defaults", "error", configErr)
	} else {
		a.log.Debug("Loaded config", "dir", *configDir)
	}

	start := time.Now()
	err = cmd(ctx, a, cmdArgs)
	switch {
	case err == nil:
		a.log.Debug("Command finished", "command", name, "took", time.Since(start))
		return exitOK
	case errors.Is(err, errVerifyFailed):
		a.log.Warn("Verification failed", "command", name)
		return exitVerifyFail
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	default:
		a.log.Error("Command failed", "command", name, "error", err)
		return exitError
	}
}

// newApp sets up the session log file, the console and optional Graylog
// output, and the zerolog logger used by the database and influx managers.
func newApp(stdout, console io.Writer) (*app, error) {
	a := &app{out: stdout, logManager: logging.NewSlogManager()}

	sessionStart := time.Now()
	logFile, err := logging.OpenLogFile(config.GetString("logsDir"), project.Program, sessionStart)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, logFile)

	opts := logging.Options{
		Level:   config.GetString("logLevel"),
		Console: console,
		File:    logFile,
	}
	if config.GetBool("graylog.enabled") {
		gelfWriter, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintln(logFile, err)
		} else {
			opts.GELF = gelfWriter
		}
	}
	a.logManager.Setup(opts)
	a.log = a.logManager.Logger()

	if config.GetBool("metrics.enabled") {
		if err := a.setupMetrics(sessionStart); err != nil {
			a.log.Warn("Failed to set up metrics export", "error", err)
		}
	}

	zlevel, err := zerolog.ParseLevel(strings.ToLower(config.GetString("logLevel")))
	if err != nil || zlevel == zerolog.NoLevel {
		zlevel = zerolog.InfoLevel
	}
	a.zlog = zerolog.New(logFile).Level(zlevel).With().Timestamp().Logger()
	return a, nil
}

// setupMetrics exports otel metrics to a JSON file next to the session log
func (a *app) setupMetrics(sessionStart time.Time) error {
	path := strings.TrimSuffix(logging.LogFilePath(config.GetString("logsDir"), project.Program, sessionStart), ".log") + ".metrics.json"
	metricFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:        true,
		ServiceName:    project.Program,
		ExportInterval: config.GetDuration("metrics.exportInterval"),
		MetricWriter:   metricFile,
	})
	if err != nil {
		_ = metricFile.Close()
		return err
	}
	// provider is closed first so its final export reaches the file
	a.track(metricFile)
	a.track(provider)
	a.log.Debug("Metrics export enabled", "path", path)
	return nil
}

// track registers c to be closed when the command returns
func (a *app) track(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}
