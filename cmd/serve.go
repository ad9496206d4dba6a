package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/api"
	"github.com/receiptdesk/receiptdesk/internal/cache"
	"github.com/receiptdesk/receiptdesk/internal/config"
	"github.com/receiptdesk/receiptdesk/internal/database"
	"github.com/receiptdesk/receiptdesk/internal/metrics"
	"github.com/receiptdesk/receiptdesk/internal/receipts"
	"github.com/receiptdesk/receiptdesk/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const sweepJobID = "receipt-sweep"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the receiptdesk server",
	Long:  `Start the HTTP API. On first start the admin account is created from the admin config section.`,
	Example: `receiptdesk serve --config config.yml
receiptdesk serve -c /path/to/config.yml --log-level debug
`,
	RunE: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if _, err := database.EnsureAdmin(cmd.Context(), db, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return err
	}

	store, err := openStorage(cfg.Receipts)
	if err != nil {
		return fmt.Errorf("failed to initialize receipt storage: %w", err)
	}

	m := metrics.New()
	gateway := receipts.NewGateway(store, db, m)

	deps := api.Deps{
		DB:        db,
		SessionDB: db.Gorm(),
		Receipts:  gateway,
		Cache:     cache.New(cfg.Cache),
		Metrics:   m,
	}

	var sched *scheduler.Scheduler
	if cfg.Receipts.SweepSchedule != "" {
		if sched, err = newSweepScheduler(cfg.Receipts, gateway); err != nil {
			return err
		}
		deps.Jobs = sched
	}

	server, err := api.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return server.Run(ctx)
	})

	if sched != nil {
		sched.Start()
		g.Go(func() error {
			<-ctx.Done()
			return sched.Stop()
		})
	}

	log.Info("receiptdesk started successfully", "listen", cfg.Listen, "environment", cfg.Environment)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("receiptdesk stopped")
	return nil
}

func newSweepScheduler(cfg *config.ReceiptsConfig, gateway *receipts.Gateway) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New()
	if err != nil {
		return nil, err
	}
	err = sched.AddCronJob(sweepJobID, "Orphaned receipt sweep", cfg.SweepSchedule, func(ctx context.Context) error {
		_, err := gateway.Sweep(ctx, cfg.SweepGrace)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule receipt sweep: %w", err)
	}
	return sched, nil
}
