package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basel-ax/watchimage/internal/config"
	"github.com/basel-ax/watchimage/internal/domain"
	"github.com/basel-ax/watchimage/internal/infrastructure/openai"
	"github.com/basel-ax/watchimage/internal/repository"
	"github.com/basel-ax/watchimage/internal/service"
	"github.com/basel-ax/watchimage/internal/transport/httpapi"
	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("no image found")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "watchimage",
		Short:        "Resolve official product images for luxury watches",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	root.AddCommand(
		newServeCmd(&verbose),
		newResolveCmd(&verbose),
		newBackfillCmd(&verbose),
	)
	return root
}

// app bundles what every command needs
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	resolver *service.ImageResolverService
}

func setup(verbose bool) (*app, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
		logger.SetReportCaller(true)
	}
	logger.SetLevel(level)

	verifier := service.NewImageVerifier(service.VerifierOptions{
		Timeout:   cfg.CheckTimeout,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})

	var suggester domain.URLSuggester
	if cfg.FallbackEnabled() {
		suggester = openai.NewClient(openai.Options{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Timeout:     cfg.OpenAI.Timeout,
		})
	} else {
		logger.Info("OPENAI_API_KEY not set, fallback lookup disabled")
	}

	resolver := service.NewImageResolverService(service.NewCatalog(time.Now), verifier, suggester, logger)
	return &app{cfg: cfg, logger: logger, resolver: resolver}, nil
}

// openDB opens the PostgreSQL pool used by the backfill workflow
func (a *app) openDB() (*sql.DB, error) {
	if err := a.cfg.RequireDB(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", a.cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(a.cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(a.cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.DB.ConnMaxLifetime)
	a.logger.Info("database connection established", "host", a.cfg.DB.Host, "database", a.cfg.DB.Database)
	return db, nil
}

// backfillService prepares the image columns and builds the backfill service
func (a *app) backfillService(ctx context.Context, db *sql.DB) (*service.ImageBackfillService, error) {
	repo := repository.NewPostgresWatchImageRepository(db)
	if err := repo.EnsureImageColumns(ctx); err != nil {
		return nil, err
	}
	return service.NewImageBackfillService(repo, a.resolver, a.cfg.BackfillBatch, a.cfg.BackfillRetryAfter, a.logger), nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(verbose *bool) *cobra.Command {
	var withBackfill bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := setup(*verbose)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if withBackfill {
				db, err := a.openDB()
				if err != nil {
					a.logger.Error("backfill requested but database is unavailable", "error", err)
					return err
				}
				defer db.Close()

				backfill, err := a.backfillService(ctx, db)
				if err != nil {
					a.logger.Error("failed to prepare image backfill", "error", err)
					return err
				}
				scheduler, err := backfill.Schedule(ctx, a.cfg.BackfillSchedule)
				if err != nil {
					return err
				}
				scheduler.Start()
				a.logger.Info("image backfill scheduled", "schedule", a.cfg.BackfillSchedule)
				defer func() {
					<-scheduler.Stop().Done()
					a.logger.Info("image backfill scheduler stopped")
				}()
			}

			e := httpapi.NewServer(httpapi.NewImageHandler(a.resolver, a.logger), a.logger)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("HTTP server listening", "addr", a.cfg.HTTPAddr)
				if err := e.Start(a.cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down gracefully...")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return e.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&withBackfill, "backfill", false, "Also run the scheduled image backfill (requires database settings)")
	return cmd
}

func newResolveCmd(verbose *bool) *cobra.Command {
	var req domain.ImageRequest

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a single watch image URL and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(*verbose)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			imageURL, ok := a.resolver.Resolve(ctx, req)
			if !ok {
				a.logger.Error("could not find official image for this watch", "manufacturer", req.Manufacturer, "model", req.Model)
				return errNotFound
			}
			fmt.Fprintln(cmd.OutOrStdout(), imageURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Manufacturer, "manufacturer", "", "Watch manufacturer, e.g. Rolex")
	cmd.Flags().StringVar(&req.Model, "model", "", "Watch model, e.g. GMT-Master II")
	cmd.Flags().StringVar(&req.ReferenceNumber, "reference", "", "Reference number, e.g. 126710BLRO-0001")
	_ = cmd.MarkFlagRequired("manufacturer")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newBackfillCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Resolve images for stored criteria and listings once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(*verbose)
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				a.logger.Error("database is unavailable", "error", err)
				return err
			}
			defer db.Close()

			ctx, cancel := signalContext()
			defer cancel()

			backfill, err := a.backfillService(ctx, db)
			if err != nil {
				a.logger.Error("failed to prepare image backfill", "error", err)
				return err
			}
			stats, err := backfill.RunOnce(ctx)
			if err != nil {
				a.logger.Error("image backfill failed", "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d updated=%d missing=%d failed=%d\n",
				stats.Checked, stats.Updated, stats.Missing, stats.Failed)
			return nil
		},
	}
}
