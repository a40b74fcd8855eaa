package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/taskboard/api"
	"example.com/taskboard/internal/cache"
	"example.com/taskboard/internal/consumer"
	"example.com/taskboard/internal/database"
	"example.com/taskboard/internal/events"
	"example.com/taskboard/internal/metrics"
	"example.com/taskboard/internal/repositories"
	"example.com/taskboard/internal/services"
	"example.com/taskboard/internal/tracing"
)

var notificationCmd = &cobra.Command{
	Use:   "notification",
	Short: "Start the notification service",
	Long:  `Consume reminder events and emit structured notification log lines`,
	RunE:  runNotification,
}

func init() {
	rootCmd.AddCommand(notificationCmd)
}

func runNotification(cmd *cobra.Command, args []string) error {
	cfg.ServiceName = "notification-service"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close(db)

	metricsCollector := metrics.NewMetrics()

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}
	defer tracer.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis, cfg.ServiceName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	ledger := repositories.NewLedgerRepository(db, cfg.ServiceName)
	notificationService := services.NewNotificationService(ledger)
	cons := consumer.New(ledger, notificationService, redisCache, metricsCollector, tracer)

	server := api.NewServer(cfg, db, metricsCollector)
	server.RegisterConsumer(events.TopicReminders, events.TopicReminders, cons)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Notification service error")
		return err
	}

	log.Info().Msg("Notification service exited properly")
	return nil
}
