// geo-ingest runs ingestion against the configured store without starting the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"health-geo/internal/app"
	"health-geo/internal/config"
	"health-geo/internal/ingest"
	"health-geo/internal/logger"
	"health-geo/internal/migrate"
	"health-geo/internal/models"
	"health-geo/internal/utils"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOpts struct {
	configDir string
	output    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "geo-ingest",
		Short:         "Ingest health facility, worker and boundary datasets",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "Directory holding .env and config.yaml")
	root.PersistentFlags().StringVar(&opts.output, "output", "text", "Output format: text or json")
	root.AddCommand(newRunCmd(opts), newCountsCmd(opts), newMigrateCmd(opts))
	return root
}

func (o *rootOpts) load() (config.Config, error) {
	cfg, err := config.Load(o.configDir)
	if err != nil {
		return cfg, err
	}
	logger.SetupWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newRunCmd(opts *rootOpts) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every category, or one with --category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			p, _, err := app.Pipeline(ctx, cfg, st)
			if err != nil {
				return err
			}
			if category != "" {
				cat, err := models.ParseCategory(category)
				if err != nil {
					return err
				}
				rep, runErr := p.RunCategory(ctx, cat)
				if err := printReport(cmd.OutOrStdout(), opts.output, rep); err != nil {
					return err
				}
				return runErr
			}
			counts, runErr := p.RunFull(ctx)
			if err := printCounts(cmd.OutOrStdout(), opts.output, counts); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "facilities, osm_facilities, boundaries, workers or standardized_facilities")
	return cmd
}

func newCountsCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print the live record count of every category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			p := ingest.NewPipeline(st, nil)
			counts, err := p.Counts(cmd.Context())
			if err != nil {
				return err
			}
			return printCounts(cmd.OutOrStdout(), opts.output, counts)
		},
	}
}

func newMigrateCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != "postgres" {
				return errors.New("migrate needs STORE_DRIVER=postgres")
			}
			dsn := cfg.Postgres.DSN
			if dsn == "" {
				p := cfg.Postgres
				dsn = utils.BuildPostgresDSN(p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
			}
			db, err := utils.OpenPostgres(cmd.Context(), utils.PostgresOptions{DSN: dsn, MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrate.EnsureSchema(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCounts(w io.Writer, format string, c ingest.Counts) error {
	if format == "json" {
		return printJSON(w, c)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tRECORDS")
	fmt.Fprintf(tw, "%s\t%d\n", models.CategoryFacilities, c.Facilities)
	fmt.Fprintf(tw, "%s\t%d\n", models.CategoryOSMFacilities, c.OSMFacilities)
	fmt.Fprintf(tw, "%s\t%d\n", models.CategoryBoundaries, c.Boundaries)
	fmt.Fprintf(tw, "%s\t%d\n", models.CategoryWorkers, c.Workers)
	fmt.Fprintf(tw, "%s\t%d\n", models.CategoryStandardized, c.Standardized)
	return tw.Flush()
}

func printReport(w io.Writer, format string, r ingest.Report) error {
	if format == "json" {
		return printJSON(w, r)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "category\t%s\n", r.Category)
	fmt.Fprintf(tw, "source\t%s\n", r.Source)
	fmt.Fprintf(tw, "records\t%d\n", r.Count)
	fmt.Fprintf(tw, "seed\t%t\n", r.UsedSeed)
	for _, a := range r.Attempts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", a.State, a.Adapter, a.Outcome, a.Records)
	}
	fmt.Fprintf(tw, "duration\t%s\n", r.Duration)
	return tw.Flush()
}
