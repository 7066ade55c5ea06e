// CLAUDE:SUMMARY Entry point: cobra CLI with `serve` (HTTP feed service), `make` (one feed to stdout) and `stats` (build metrics).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/fulltext/dbopen"
	"github.com/hazyhaar/fulltext/fulltext"
	"github.com/hazyhaar/fulltext/idgen"
	"github.com/hazyhaar/fulltext/kit"
	"github.com/hazyhaar/fulltext/observability"
	"github.com/hazyhaar/fulltext/shield"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:          "fulltext",
		Short:        "Turn summary feeds into full-text RSS feeds",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// Logs go to stderr: `make` writes the feed to stdout.
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: parseLevel(f.logLevel)}))
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", env("FULLTEXT_CONFIG", ""), "YAML config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	root.AddCommand(newServeCmd(&f), newMakeCmd(&f), newStatsCmd(&f))
	return root
}

func newServeCmd(f *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the full-text feed endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context(), cfg, slog.Default())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides the config)")
	return cmd
}

func serve(ctx context.Context, cfg *fulltext.Config, logger *slog.Logger) error {
	svc, err := fulltext.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	var rl *shield.RateLimiter
	if cfg.RateLimit.PerMinute > 0 {
		rl = shield.NewRateLimiter(cfg.RateLimit.PerMinute/60, cfg.RateLimit.Burst, "/healthz")
		rl.StartGC(ctx.Done())
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Handler(rl),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("fulltext: listening", "addr", cfg.Listen, "caching", cfg.Caching, "mcp", cfg.MCP.Enabled)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("fulltext: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMakeCmd(f *rootFlags) *cobra.Command {
	var (
		req  fulltext.Request
		exc  bool
		html bool
	)
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Build one full-text feed and write it to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			svc, err := fulltext.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			req.Exclude, req.HTML = exc, html
			req.HasMax = req.Max > 0
			req.HasWhat = cmd.Flags().Changed("what")
			plan, _, err := svc.Plan(req)
			if err != nil {
				return err
			}
			ctx := kit.WithRequestID(kit.WithTransport(cmd.Context(), kit.TransportCLI), idgen.Request())
			out, err := svc.MakeFeed(ctx, plan)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out.Body)
			return err
		},
	}
	cmd.Flags().StringVarP(&req.URL, "url", "u", "", "feed or page URL")
	cmd.Flags().IntVar(&req.Max, "max", 0, "maximum number of items (0: tier default)")
	cmd.Flags().StringVar(&req.Links, "links", "preserve", "preserve, footnotes or remove")
	cmd.Flags().StringVar(&req.What, "what", "", "extraction pattern")
	cmd.Flags().StringVar(&req.Key, "key", "", "API key")
	cmd.Flags().BoolVar(&exc, "exc", false, "drop items whose content could not be extracted")
	cmd.Flags().BoolVar(&html, "html", false, "treat the URL as a web page")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newStatsCmd(f *rootFlags) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded feed-build metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Metrics.DBPath); err != nil {
				return fmt.Errorf("metrics db %s: %w", cfg.Metrics.DBPath, err)
			}
			db, err := dbopen.Open(cfg.Metrics.DBPath, dbopen.WithSchema(observability.Schema))
			if err != nil {
				return err
			}
			defer db.Close()
			rec := observability.NewRecorder(db, observability.WithLogger(slog.Default()))
			defer rec.Close()

			sums, err := rec.Summarize(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METRIC\tUNIT\tCOUNT\tAVG\tMIN\tMAX")
			for _, s := range sums {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.1f\t%.1f\n", s.Name, s.Unit, s.Count, s.Avg, s.Min, s.Max)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "summary window")
	return cmd
}

func loadConfig(path string) (*fulltext.Config, error) {
	if path == "" {
		cfg := fulltext.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return fulltext.LoadConfig(path)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
