package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffyaml"
	"github.com/schollz/progressbar/v3"

	"github.com/zombor/gst-invoice-extractor/internal/batch"
	"github.com/zombor/gst-invoice-extractor/internal/config"
	"github.com/zombor/gst-invoice-extractor/internal/invoice"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	provider  *string
	apiKey    *string
	baseURL   *string
	model     *string
	geminiKey *string
	timeout   *time.Duration
	logLevel  *string
	logFile   *string

	logger *slog.Logger
	close  func() error
}

func (c *rootConfig) providerConfig() config.Provider {
	return config.Provider{
		Name:      *c.provider,
		APIKey:    *c.apiKey,
		BaseURL:   *c.baseURL,
		Model:     *c.model,
		GeminiKey: *c.geminiKey,
		Timeout:   *c.timeout,
	}.WithEnvFallbacks(os.Getenv)
}

func (c *rootConfig) setupLogger() error {
	level, err := config.ParseLevel(*c.logLevel)
	if err != nil {
		return err
	}
	c.logger, c.close = config.SetupLogger(*c.logFile, level)
	slog.SetDefault(c.logger)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := &rootConfig{}
	rootFlags := ff.NewFlagSet("invoice-extractor")
	root.provider = rootFlags.StringLong("provider", config.ProviderClaude, "Extraction provider: 'claude' or 'gemini'")
	root.apiKey = rootFlags.StringLong("api-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
	root.baseURL = rootFlags.StringLong("base-url", "", "Anthropic API base URL (or set ANTHROPIC_BASE_URL env var)")
	root.model = rootFlags.StringLong("model", "", "Model name (or set ANTHROPIC_MODEL env var)")
	root.geminiKey = rootFlags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	root.timeout = rootFlags.DurationLong("timeout", 0, "Per-invoice extraction timeout (default 60s)")
	root.logLevel = rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn, error")
	root.logFile = rootFlags.StringLong("log-file", "", "Also write JSON logs to this file")
	_ = rootFlags.StringLong("config", "", "YAML config file (optional)")

	rootCmd := &ff.Command{
		Name:      "invoice-extractor",
		Usage:     "invoice-extractor [FLAGS] <SUBCOMMAND>",
		ShortHelp: "extract GST invoice data from images",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			extractCommand(root, rootFlags, stdout),
			serveCommand(root, rootFlags),
			versionCommand(stdout),
		},
	}

	err := rootCmd.Parse(args,
		ff.WithEnvVarPrefix("INVOICE_EXTRACTOR"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parse),
		ff.WithConfigAllowMissingFile(),
	)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", ffhelp.Command(rootCmd.GetSelected()))
		if errors.Is(err, ff.ErrHelp) {
			return nil
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return err
	}

	if err := rootCmd.Run(ctx); err != nil {
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(stderr, "%s\n", ffhelp.Command(rootCmd))
			return err
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func versionCommand(stdout io.Writer) *ff.Command {
	return &ff.Command{
		Name:      "version",
		Usage:     "invoice-extractor version",
		ShortHelp: "print the version",
		Exec: func(context.Context, []string) error {
			fmt.Fprintln(stdout, version)
			return nil
		},
	}
}

func serveCommand(root *rootConfig, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(parent)
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "invoices.db", "Database file path")
		storagePath = fs.StringLong("storage", "./uploaded_files", "Storage directory path")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		concurrency = fs.IntLong("concurrency", batch.DefaultLimit, "Maximum concurrent extraction calls per batch")
	)

	return &ff.Command{
		Name:      "serve",
		Usage:     "invoice-extractor serve [FLAGS]",
		ShortHelp: "run the invoice manager web app",
		Flags:     fs,
		Exec: func(ctx context.Context, _ []string) error {
			if err := root.setupLogger(); err != nil {
				return err
			}
			defer root.close()
			logger := root.logger

			logger.Info("Initializing database...", "path", *dbPath)
			db, err := invoice.NewBoltDB(*dbPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer db.Close()

			logger.Info("Initializing storage...", "path", *storagePath)
			store, err := invoice.NewLocalStorage(*storagePath)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}

			extractor, err := config.NewExtractor(ctx, root.providerConfig(), logger)
			if err != nil {
				return err
			}
			defer extractor.Close()

			service := invoice.NewService(db, extractor, store)
			service.SetConcurrency(*concurrency)
			service.SetLogger(logger)
			defer service.Close()

			server := invoice.NewServer(service, invoice.BasicAuth{
				Username: *authUser,
				Password: *authPass,
			})

			addr := fmt.Sprintf(":%d", *port)
			logger.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
			if *authUser != "" || *authPass != "" {
				logger.Info("Basic auth enabled", "user", *authUser)
			}

			if err := server.Start(ctx, addr); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			logger.Info("Shutting down...")
			return nil
		},
	}
}

func extractCommand(root *rootConfig, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	fs := ff.NewFlagSet("extract").SetParent(parent)
	var (
		dir         = fs.StringLong("dir", "", "Process every invoice image in this directory")
		concurrency = fs.IntLong("concurrency", batch.DefaultLimit, "Maximum concurrent extraction calls")
		output      = fs.StringLong("output", batch.DefaultOutputFile, "JSON results file")
		csvPath     = fs.StringLong("csv", "", "Also export successful records as CSV")
		xlsxPath    = fs.StringLong("xlsx", "", "Also export successful records as XLSX")
		noProgress  = fs.BoolLong("no-progress", "Disable the progress bar")
	)

	return &ff.Command{
		Name:      "extract",
		Usage:     "invoice-extractor extract [FLAGS] [FILE...]",
		ShortHelp: "extract invoice data from image files",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := root.setupLogger(); err != nil {
				return err
			}
			defer root.close()
			logger := root.logger

			paths := args
			if *dir != "" {
				found, err := batch.ListImages(*dir)
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}
			if len(paths) == 0 {
				return errors.New("no invoice files given: pass paths or --dir")
			}

			extractor, err := config.NewExtractor(ctx, root.providerConfig(), logger)
			if err != nil {
				return err
			}
			defer extractor.Close()

			opts := []batch.Option{
				batch.WithLimit(*concurrency),
				batch.WithLogger(logger),
			}
			var bar *progressbar.ProgressBar
			if !*noProgress {
				bar = progressbar.NewOptions(len(paths),
					progressbar.OptionSetDescription("Processing invoices"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "=",
						SaucerHead:    ">",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
				)
				opts = append(opts, batch.WithObserver(func(e batch.Event) {
					if e.Checkpoint == batch.Finished {
						_ = bar.Add(1)
					}
				}))
			}

			orchestrator := batch.New(extractor, opts...)
			fmt.Fprintf(stdout, "Found %d invoices to process\n", len(paths))
			fmt.Fprintf(stdout, "Processing with max %d concurrent API calls...\n", orchestrator.Limit())

			result, err := orchestrator.Run(ctx, paths)
			if err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(stdout)
			}

			if err := batch.WriteSummary(stdout, result); err != nil {
				return err
			}

			if err := batch.WriteJSONFile(*output, result); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Results saved to: %s\n", *output)

			records := result.Records()
			if *csvPath != "" {
				if err := writeExport(*csvPath, records, invoice.WriteCSV); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "CSV saved to: %s\n", *csvPath)
			}
			if *xlsxPath != "" {
				if err := writeExport(*xlsxPath, records, invoice.WriteXLSX); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "XLSX saved to: %s\n", *xlsxPath)
			}

			logger.Info("Extraction complete",
				"files", len(result),
				"succeeded", result.Succeeded(),
				"failed", result.Failed(),
			)
			return nil
		},
	}
}

func writeExport[T any](path string, records T, write func(io.Writer, T) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
