package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaiso/Sharder/internal/api"
	"github.com/shaiso/Sharder/internal/config"
	"github.com/shaiso/Sharder/internal/domain"
	"github.com/shaiso/Sharder/internal/gateway"
	"github.com/shaiso/Sharder/internal/mq"
	"github.com/shaiso/Sharder/internal/notify"
	"github.com/shaiso/Sharder/internal/orchestrator"
	"github.com/shaiso/Sharder/internal/process"
	"github.com/shaiso/Sharder/internal/repo"
	"github.com/shaiso/Sharder/internal/telemetry"
)

func newRunCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the orchestrator and its workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, *configPath)
			if err != nil {
				return err
			}
			return runOrchestrator(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.Int("shards", 0, "Total shard count (0 = recommended by gateway)")
	f.Int("workers", 0, "Number of worker processes (default: CPU count)")
	f.Int("guilds-per-shard", 0, "Guilds per shard for automatic shard count")
	f.String("token", "", "Bot token")
	f.Bool("debug", false, "Forward worker debug logs")
	f.Bool("stats", false, "Collect stats on schedule")
	f.String("http-addr", "", "HTTP listen address")
	f.String("amqp-url", "", "RabbitMQ URL (empty = disabled)")
	f.String("db-url", "", "PostgreSQL DSN for the stats archive (empty = disabled)")

	return cmd
}

// runOrchestrator собирает зависимости и работает до сигнала завершения.
func runOrchestrator(parent context.Context, cfg *config.Config) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Debug)
	logger.Info("starting sharder", "version", version, "name", cfg.Name, "workers", cfg.Workers)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gw := gateway.NewClient(cfg.Gateway.URL, cfg.Token)
	webhook := notify.NewWebhook(gw, cfg.WebhookTargets(), logger)
	notifiers := notify.Multi{webhook}
	var sinks []orchestrator.StatsSink

	// RabbitMQ (опционально)
	var (
		mqConn *mq.Connection
		broker *notify.Broker
	)
	if cfg.AMQP.URL != "" {
		conn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, broker integration disabled", "error", err)
		} else {
			mqConn = conn
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			publisher := mq.NewPublisher(mqConn, logger)
			broker = notify.NewBroker(publisher, logger)
			notifiers = append(notifiers, broker)
			sinks = append(sinks, orchestrator.StatsSinkFunc(func(ctx context.Context, s domain.ClusterStats) error {
				return publisher.PublishStats(ctx, s)
			}))
		}
	}

	// PostgreSQL (опционально)
	var history api.StatsHistory
	if cfg.DB.URL != "" {
		pool, err := repo.NewPool(ctx, cfg.DB.URL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		statsRepo := repo.NewStatsRepo(pool)
		if err := statsRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, statsRepo)
		history = statsRepo
	}

	var clientOptions json.RawMessage
	if len(cfg.ClientOptions) > 0 {
		raw, err := json.Marshal(cfg.ClientOptions)
		if err != nil {
			return fmt.Errorf("marshal client_options: %w", err)
		}
		clientOptions = raw
	}

	schedule := ""
	if cfg.Stats.Enabled {
		schedule = cfg.Stats.Schedule
	}

	orch := orchestrator.New(orchestrator.Config{
		Spawner: &process.ExecSpawner{
			Command: cfg.Worker.Command,
			Args:    cfg.Worker.Args,
			Env:     []string{"SHARDER_TOKEN=" + cfg.Token},
			Logger:  logger,
		},
		Gateway:        gw,
		Notifier:       notifiers,
		Metrics:        telemetry.NewMetrics(prometheus.DefaultRegisterer),
		StatsSinks:     sinks,
		Shards:         cfg.Shards,
		Workers:        cfg.Workers,
		GuildsPerShard: cfg.GuildsPerShard,
		StepsPerSecond: cfg.Launch.StepsPerSecond,
		ClientOptions:  clientOptions,
		Debug:          cfg.Debug,
		ReadyTimeout:   cfg.Launch.ReadyTimeout,
		MaxRestarts:    cfg.Supervisor.MaxRestarts,
		RestartWindow:  cfg.Supervisor.RestartWindow,
		SpawnRetries:   cfg.Supervisor.SpawnRetries,
		SpawnBackoff:   cfg.Supervisor.SpawnBackoff,
		StopGrace:      cfg.Supervisor.StopGrace,
		FetchTimeout:   cfg.Fetch.Timeout,
		StatsSchedule:  schedule,
		StatsTimeout:   cfg.Stats.Timeout,
		Logger:         logger,
	})

	// Запускаем orchestrator
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	// Внешние broadcast-команды из sharder.control
	var consumer *mq.Consumer
	if mqConn != nil {
		consumer = mq.NewConsumer(mqConn, logger, mq.QueueControlBroadcast, broadcastHandler(orch, logger))
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("control consumer stopped", "error", err)
			}
		}()
	}

	// HTTP: API + /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Cluster: orch,
		History: history,
		Logger:  logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if consumer != nil {
		consumer.Stop()
	}

	orch.Stop()
	webhook.Wait()
	if broker != nil {
		broker.Wait()
	}

	logger.Info("sharder stopped")
	return nil
}

// broadcastHandler пересылает команды из очереди управления всем воркерам.
func broadcastHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		cmd, err := mq.ParsePayload[mq.BroadcastCommand](msg)
		if err != nil {
			return err
		}
		n, err := orch.Broadcast(ctx, cmd.Message)
		if err != nil {
			return err
		}
		logger.Info("broadcast command delivered", "message_id", msg.ID, "recipients", n)
		return nil
	}
}
