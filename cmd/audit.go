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
	"example.com/taskboard/internal/search"
	"example.com/taskboard/internal/services"
	"example.com/taskboard/internal/tracing"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Start the audit service",
	Long:  `Consume task lifecycle events and record them as immutable audit entries`,
	RunE:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg.ServiceName = "audit-service"

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

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		elasticClient = nil
	}

	ledger := repositories.NewLedgerRepository(db, cfg.ServiceName)
	auditRepo := repositories.NewAuditRepository(db)
	auditService := services.NewAuditService(ledger, auditRepo, elasticClient)
	cons := consumer.New(ledger, auditService, redisCache, metricsCollector, tracer)

	server := api.NewServer(cfg, db, metricsCollector)
	server.RegisterConsumer(events.TopicTaskEvents, events.TopicTaskEvents, cons)
	server.RegisterAuditRoutes(auditRepo)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Audit service error")
		return err
	}

	log.Info().Msg("Audit service exited properly")
	return nil
}
