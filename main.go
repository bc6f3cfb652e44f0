package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	batchcli "github.com/batchocr/batchocr/internal/cli"
	"github.com/batchocr/batchocr/internal/config"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// parseLogLevel parses the LOG_LEVEL environment variable and returns the
// appropriate logrus level. Defaults to WarnLevel if not set or invalid.
func parseLogLevel() logrus.Level {
	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		return logrus.WarnLevel
	}

	switch strings.ToLower(strings.TrimSpace(logLevelStr)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

// configureLogger routes log output to the log file under the config
// directory plus stderr. Reports go to stdout, so they stay clean either way.
func configureLogger(logger *logrus.Logger, quiet, debug bool) func() {
	level := parseLogLevel()
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	writers := []io.Writer{}
	if !quiet {
		writers = append(writers, os.Stderr)
	}

	cleanup := func() {}
	if dir, err := config.Dir(); err == nil {
		logDir := filepath.Join(dir, "logs")
		if err := os.MkdirAll(logDir, 0700); err == nil {
			logPath := filepath.Join(logDir, "batchocr.log")
			if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
				writers = append(writers, file)
				cleanup = func() { _ = file.Close() }
			}
		}
	}

	if len(writers) == 0 {
		logger.SetOutput(io.Discard)
	} else {
		logger.SetOutput(io.MultiWriter(writers...))
	}
	return cleanup
}

// buildConfig layers the defaults file under ~/.batchocr over the built-in
// defaults, then applies any flag the user actually set.
func buildConfig(cmd *cli.Command, logger *logrus.Logger) (config.Config, error) {
	cfg := config.Default()

	if path, err := config.DefaultsPath(); err == nil {
		if err := cfg.ApplyFile(path); err != nil {
			return cfg, err
		}
	} else {
		logger.WithError(err).Debug("No config directory, using built-in defaults")
	}

	if cmd.IsSet("dpi") {
		cfg.DPI = cmd.Int("dpi")
	}
	if cmd.IsSet("pages") {
		cfg.Pages = cmd.Int("pages")
	}
	if cmd.IsSet("words") {
		cfg.Words = cmd.Int("words")
	}
	if cmd.IsSet("text") {
		cfg.TextPercent = cmd.Float("text")
	}
	if cmd.IsSet("image") {
		cfg.ImagePercent = cmd.Float("image")
	}
	if cmd.IsSet("force") {
		cfg.Force = cmd.Bool("force")
	}
	if cmd.IsSet("unsearchable") {
		cfg.MaxUnsearchable = cmd.Int("unsearchable")
	}
	if cmd.IsSet("concurrency") {
		cfg.Concurrency = cmd.Int("concurrency")
	}
	if cmd.IsSet("ocr-cmd") {
		cfg.OCRCommand = cmd.String("ocr-cmd")
	}
	if cmd.IsSet("quiet") {
		cfg.Quiet = cmd.Bool("quiet")
	}
	if cmd.IsSet("debug") {
		cfg.Debug = cmd.Bool("debug")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func outputFormat(cmd *cli.Command) (batchcli.OutputFormat, error) {
	switch cmd.String("output") {
	case "", "text":
		return batchcli.OutputText, nil
	case "json":
		return batchcli.OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (want text or json)", cmd.String("output"))
	}
}

func main() {
	// Load .env from the working directory if present; real environment wins.
	_ = godotenv.Load()

	// Create context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	run := func(mode func(*batchcli.Runner, context.Context, []string) error) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := buildConfig(cmd, logger)
			if err != nil {
				return err
			}
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cleanup := configureLogger(logger, cfg.Quiet, cfg.Debug)
			defer cleanup()

			args := cmd.Args().Slice()
			if len(args) == 0 {
				return fmt.Errorf("no input files given")
			}
			runner := batchcli.NewRunner(cfg, logger, format, os.Stdout, os.Stdin)
			return mode(runner, ctx, args)
		}
	}

	app := &cli.Command{
		Name:    "batchocr",
		Usage:   "Batch OCR conversion for unsearchable PDFs",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "dpi",
				Value:   config.DefaultDPI,
				Usage:   "Resolution passed to the OCR engine",
				Sources: cli.EnvVars("BATCHOCR_DPI"),
			},
			&cli.IntFlag{
				Name:    "pages",
				Aliases: []string{"p"},
				Value:   config.DefaultPages,
				Usage:   "Maximum number of leading pages to analyze",
				Sources: cli.EnvVars("BATCHOCR_PAGES"),
			},
			&cli.IntFlag{
				Name:    "words",
				Aliases: []string{"w"},
				Value:   config.DefaultWords,
				Usage:   "Minimum qualifying words for a text region to count",
				Sources: cli.EnvVars("BATCHOCR_WORDS"),
			},
			&cli.FloatFlag{
				Name:    "text",
				Value:   config.DefaultTextPercent,
				Usage:   "Text coverage percentage at or below which a page is unsearchable",
				Sources: cli.EnvVars("BATCHOCR_TEXT"),
			},
			&cli.FloatFlag{
				Name:    "image",
				Value:   config.DefaultImagePercent,
				Usage:   "Image coverage percentage above which a page is unsearchable",
				Sources: cli.EnvVars("BATCHOCR_IMAGE"),
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Convert without analysis and replace existing candidates",
				Sources: cli.EnvVars("BATCHOCR_FORCE"),
			},
			&cli.IntFlag{
				Name:    "unsearchable",
				Aliases: []string{"u"},
				Value:   0,
				Usage:   "Unsearchable pages tolerated before a document needs conversion",
				Sources: cli.EnvVars("BATCHOCR_UNSEARCHABLE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Value:   config.DefaultConcurrency,
				Usage:   "Maximum documents processed in parallel",
				Sources: cli.EnvVars("BATCHOCR_CONCURRENCY"),
			},
			&cli.StringFlag{
				Name:    "ocr-cmd",
				Usage:   "OCR command template ({{input}}, {{outbase}}, {{output}}, {{dpi}})",
				Sources: cli.EnvVars("BATCHOCR_OCR_CMD"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "text",
				Usage:   "Report format (text or json)",
				Sources: cli.EnvVars("BATCHOCR_OUTPUT"),
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress log output to stderr",
				Sources: cli.EnvVars("BATCHOCR_QUIET"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("BATCHOCR_DEBUG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("batchocr version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:      "analyze",
				Usage:     "Classify pages and report searchability, without converting",
				ArgsUsage: "FILES...",
				Action:    run((*batchcli.Runner).Analyze),
			},
			{
				Name:      "convert",
				Usage:     "Analyze and OCR unsearchable documents into candidate files",
				ArgsUsage: "FILES...",
				Action:    run((*batchcli.Runner).Convert),
			},
			{
				Name:      "commit",
				Usage:     "Replace originals with their candidate files",
				ArgsUsage: "FILES...",
				Action:    run((*batchcli.Runner).Commit),
			},
			{
				Name:      "rollback",
				Usage:     "Delete candidate files, leaving originals untouched",
				ArgsUsage: "FILES...",
				Action:    run((*batchcli.Runner).Rollback),
			},
		},
		// Bare invocation with files behaves like convert.
		Action: run((*batchcli.Runner).Convert),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger.WithError(err).Error("Batch failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
