package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/taskboard/api"
	"example.com/taskboard/internal/broker"
	"example.com/taskboard/internal/database"
	"example.com/taskboard/internal/metrics"
	"example.com/taskboard/internal/repositories"
	"example.com/taskboard/internal/scheduler"
	"example.com/taskboard/internal/services"
	"example.com/taskboard/internal/tracing"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Start the backend event worker",
	Long:  `Host the event publisher, the reminder job lifecycle and the scheduler callback endpoint`,
	RunE:  runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)
}

func runBackend(cmd *cobra.Command, args []string) error {
	cfg.ServiceName = "taskboard-backend"

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

	brokerClient := broker.NewClient(cfg.Broker, metricsCollector, tracer)
	publisher := broker.NewPublisher(brokerClient, cfg.Broker.QueueSize)
	defer publisher.Close()

	schedulerClient := scheduler.NewClient(cfg.Scheduler, metricsCollector)

	taskRepo := repositories.NewTaskRepository(db)
	reminderRepo := repositories.NewReminderRepository(db)
	reminderService := services.NewReminderService(reminderRepo, taskRepo, schedulerClient, publisher)

	server := api.NewServer(cfg, db, metricsCollector)
	server.RegisterReminderRoutes(reminderService)
	server.RegisterEventRoutes(publisher, taskRepo)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.Start)

	// Fallback sweep: re-issue scheduler jobs for reminders firing soon,
	// covering jobs lost between the reminder commit and the original
	// schedule call.
	if cfg.Sweep.Enabled {
		g.Go(func() error {
			sched, err := gocron.NewScheduler()
			if err != nil {
				return err
			}

			_, err = sched.NewJob(
				gocron.DurationJob(cfg.Sweep.Interval),
				gocron.NewTask(func() {
					if err := reminderService.SweepDue(ctx, cfg.Sweep.Horizon); err != nil {
						log.Error().Err(err).Msg("Reminder sweep failed")
					}
				}),
			)
			if err != nil {
				return err
			}

			sched.Start()
			<-ctx.Done()
			return sched.Shutdown()
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Backend worker error")
		return err
	}

	log.Info().Msg("Backend worker exited properly")
	return nil
}
