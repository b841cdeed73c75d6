// Command sof-extract pulls timestamped events out of Statement-of-Facts
// documents from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/sof-events/internal/async"
	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/docs"
	"github.com/joseph-ayodele/sof-events/internal/events"
	"github.com/joseph-ayodele/sof-events/internal/export"
	"github.com/joseph-ayodele/sof-events/internal/ingest"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
	"github.com/joseph-ayodele/sof-events/internal/repository"
)

var (
	// Global flags
	cfgFile   string
	formatStr string
	verbose   bool

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sof-extract",
	Short: "Extract timestamped port events from SoF documents (.pdf, .docx)",
	Long: `sof-extract reads Statement-of-Facts documents and prints the operational
events they record (loading, berthing, anchorage, ...) with their start and
end times, as JSON, CSV or XLSX.

Configuration comes from an optional YAML file, a .env file and the
environment (DB_URL, DOCS_MAX_PAGES, LOG_LEVEL, ...).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = common.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// logs go to stderr so stdout stays clean for the events
		logger = common.NewLoggerTo(os.Stderr, cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: env only)")
	rootCmd.PersistentFlags().StringVarP(&formatStr, "format", "f", "json", "output format: json, csv or xlsx")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(extractCmd(), batchCmd(), watchCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newProcessor wires the extractor and, when DB_URL is set, the job store.
func newProcessor(ctx context.Context) (*pipeline.Processor, *repository.Store, error) {
	store, err := repository.InitStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	extractor := docs.New(docs.Config{MaxFileSize: cfg.Docs.MaxFileBytes, MaxPages: cfg.Docs.MaxPages}, logger)
	return pipeline.NewProcessor(extractor, store.JobRepo(), logger), store, nil
}

func extractCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "extract <file.pdf|file.docx|->",
		Short: "Extract events from one document, or from plain text on stdin with '-'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatStr)
			if err != nil {
				return err
			}

			var recs []events.Record
			if args[0] == "-" {
				text, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				recs = events.Extract(string(text))
			} else {
				proc, store, err := newProcessor(cmd.Context())
				if err != nil {
					return err
				}
				defer store.Close(logger)
				res, err := proc.ProcessFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				recs = res.Events
			}

			if out == "" {
				return export.Write(cmd.OutOrStdout(), format, recs)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := export.Write(f, format, recs); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		outDir        string
		includeHidden bool
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Extract events from every .pdf and .docx under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			proc, store, err := newProcessor(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close(logger)

			results, stats, err := ingest.Directory(cmd.Context(), args[0], !includeHidden,
				func(ctx context.Context, path string) error {
					res, err := proc.ProcessFile(ctx, path)
					if err != nil {
						return err
					}
					_, err = ingest.WriteOutput(path, outDir, format, res.Events)
					return err
				})
			for _, r := range results {
				if r.Err != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAILED %s: %s\n", r.Path, r.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d succeeded=%d failed=%d\n",
				stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed)
			if err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d documents failed", stats.Failed, stats.Matched)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for output files (default: next to each document)")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also process dot files and dot directories")
	return cmd
}

func watchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Watch directories and extract events from documents as they arrive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Watch.OutputDir
			}
			ctx := cmd.Context()
			proc, store, err := newProcessor(ctx)
			if err != nil {
				return err
			}
			defer store.Close(logger)

			paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
				Roots:       args,
				InitialScan: true,
				SkipHidden:  true,
				Debounce:    cfg.Watch.Debounce,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			queue := async.NewProcessorQueue(proc, logger,
				async.WithWorkers(cfg.Watch.Workers),
				async.WithProcessTimeout(cfg.Server.ProcessTimeout),
				async.WithResultHandler(func(job async.Job, res pipeline.Result, err error) {
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "FAILED %s: %v\n", job.Path, err)
						return
					}
					dst, err := ingest.WriteOutput(job.Path, outDir, format, res.Events)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "FAILED %s: %v\n", job.Path, err)
						return
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d events)\n", job.Path, dst, len(res.Events))
				}),
			)
			async.Feed(ctx, queue, paths, errs, logger)
			queue.Shutdown(context.Background())
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for output files (default: WATCH_OUTPUT_DIR, else next to each document)")
	return cmd
}
