package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meterwatch/meterwatch/internal/run"
	"github.com/meterwatch/meterwatch/internal/store"
	"github.com/meterwatch/meterwatch/pkg/assets"
	"github.com/meterwatch/meterwatch/pkg/constants"
	"github.com/meterwatch/meterwatch/pkg/logging"
	"github.com/meterwatch/meterwatch/pkg/quality"
)

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	var (
		incremental bool
		dryRun      bool
		partition   string
		device      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one quality run",
		Long: `Run loads the asset metadata, reconciles loggers against meters,
aggregates readings for every testable meter channel, and applies the
quality rules. Findings are written to the database, or held in memory
and printed with --dry-run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			var sink quality.Sink
			var mem *store.Memory
			if dryRun {
				mem = store.NewMemory()
				sink = mem
			} else {
				db, err := a.Database(ctx)
				if err != nil {
					return err
				}
				sink = db
			}

			var opts []run.OrchestratorOption
			if partition != "" {
				opts = append(opts, run.WithPartition(partition))
			}
			if device != "" {
				opts = append(opts, run.WithDevice(device))
			}
			orchestrator, err := a.Orchestrator(sink, opts...)
			if err != nil {
				return err
			}

			mode := run.ModeFull
			if incremental {
				mode = run.ModeIncremental
			}

			rctx, cancel := context.WithTimeout(ctx, constants.RunTimeout)
			defer cancel()
			summary, err := orchestrator.Run(rctx, mode)
			if summary != nil {
				printSummary(cmd, summary)
			}
			if mem != nil {
				printDefects(cmd, mem.Defects())
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&incremental, "incremental", false, "query only the current month's partitions")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate without writing to the database and print findings")
	cmd.Flags().StringVar(&partition, "partition", "", "restrict the run to one named partition, e.g. bms-jan-2017")
	cmd.Flags().StringVar(&device, "device", "", "restrict the run to meters on one logger asset code")
	return cmd
}

// NewScheduleCommand creates the schedule command.
func (a *App) NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run incrementally every day at the configured time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			db, err := a.Database(ctx)
			if err != nil {
				return err
			}
			orchestrator, err := a.Orchestrator(db)
			if err != nil {
				return err
			}
			scheduler, err := run.NewScheduler(orchestrator, a.config.ScheduleAt)
			if err != nil {
				return err
			}

			if a.config.MetricsAddr != "" {
				go a.serveMetrics(ctx)
			}

			a.logger.Info().Str("at", a.config.ScheduleAt).Msg("Scheduler started")
			if err := scheduler.Start(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&a.config.ScheduleAt, "at", a.config.ScheduleAt, "daily run time, HH:MM local")
	cmd.Flags().StringVar(&a.config.MetricsAddr, "metrics-addr", a.config.MetricsAddr, "listen address for Prometheus metrics (empty disables)")
	return cmd
}

// serveMetrics exposes the Prometheus endpoint until the context ends.
func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info().Str("addr", a.config.MetricsAddr).Msg("Metrics endpoint listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error().Err(err).Msg("Metrics endpoint failed")
	}
}

// NewInitDBCommand creates the initdb command.
func (a *App) NewInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema and seed the error-type lookup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)
			db, err := a.Database(ctx)
			if err != nil {
				return err
			}
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info().Msg("Database schema ready")
			return nil
		},
	}
}

// NewShowCommand creates the show command.
func (a *App) NewShowCommand() *cobra.Command {
	var (
		defects   int
		summaries int
		buildings bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show flagged assets, recent defects, run summaries, or buildings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			if buildings {
				return a.showBuildings(cmd, ctx)
			}

			db, err := a.Database(ctx)
			if err != nil {
				return err
			}

			switch {
			case defects > 0:
				found, err := db.RecentDefects(ctx, defects)
				if err != nil {
					return err
				}
				printDefects(cmd, found)
			case summaries > 0:
				found, err := db.Summaries(ctx, summaries)
				if err != nil {
					return err
				}
				printSummaries(cmd, found)
			default:
				flagged, err := db.Flagged(ctx)
				if err != nil {
					return err
				}
				printFlagged(cmd, flagged)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&defects, "defects", 0, "show the N most recent defects instead")
	cmd.Flags().IntVar(&summaries, "summaries", 0, "show the N most recent run summaries instead")
	cmd.Flags().BoolVar(&buildings, "buildings", false, "list the buildings named in the logger metadata")
	return cmd
}

// showBuildings loads the metadata and lists the distinct buildings.
func (a *App) showBuildings(cmd *cobra.Command, ctx context.Context) error {
	catalog, err := a.Catalog()
	if err != nil {
		return err
	}
	mctx, cancel := context.WithTimeout(ctx, constants.MetadataLoadTimeout)
	defer cancel()
	assetStore, err := assets.Load(mctx, catalog)
	if err != nil {
		return err
	}
	for _, building := range assetStore.Buildings() {
		cmd.Println(building)
	}
	return nil
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("meterwatch %s (commit %s, built %s)\n", a.version, a.commit, a.date)
		},
	}
}

func printSummary(cmd *cobra.Command, s *quality.RunSummary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "run\t%s\n", s.RunID)
	fmt.Fprintf(w, "assets\t%d\n", s.TotalAssets)
	fmt.Fprintf(w, "erroneous\t%d\n", s.ErroneousAssets)
	fmt.Fprintf(w, "defects\t%d\n", s.DefectCount)
	fmt.Fprintf(w, "untestable\t%d\n", s.Untestable)
	fmt.Fprintf(w, "partitions failed\t%d\n", s.PartitionsFailed)
	fmt.Fprintf(w, "duration\t%s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	_ = w.Flush()
}

func printDefects(cmd *cobra.Command, defects []quality.Defect) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tDEVICE\tCHANNEL\tOCCURRED\tDESCRIPTION")
	for _, d := range defects {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			int(d.Kind), d.DeviceID, d.Channel,
			d.OccurredAt.Format(time.RFC3339), d.Kind.Description())
	}
	_ = w.Flush()
}

func printFlagged(cmd *cobra.Command, flagged []quality.FlaggedAsset) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tIDENTITY\tCHANNEL\tUTILITY\tLAST ERROR")
	for _, f := range flagged {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.Kind, f.IdentityCode, f.Channel, f.UtilityType,
			f.MostRecentErrorAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func printSummaries(cmd *cobra.Command, summaries []quality.RunSummary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tASSETS\tERRONEOUS\tDEFECTS\tUNTESTABLE\tFAILED PARTS")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			s.RunID, s.StartedAt.Format(time.RFC3339),
			s.TotalAssets, s.ErroneousAssets, s.DefectCount,
			s.Untestable, s.PartitionsFailed)
	}
	_ = w.Flush()
}
