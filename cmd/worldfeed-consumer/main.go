package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ironhaven/worldserver/internal/infra"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worldfeed consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// With Kafka enabled the world server's outbox poller owns publishing,
	// so this process tails the feed topic instead of the outbox table.
	if cfg.KafkaEnabled {
		return consumeKafka(ctx, cfg, logger)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("worldfeed-consumer connected to postgres")

	pollInterval := 2 * time.Second
	if s := os.Getenv("OUTBOX_POLL_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			pollInterval = d
		}
	}

	batchSize := 100
	if s := os.Getenv("OUTBOX_BATCH_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			batchSize = n
		}
	}

	repo := repository.NewOutboxRepository()
	logger.Info("worldfeed-consumer starting", "poll_interval", pollInterval, "batch_size", batchSize)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worldfeed-consumer shutting down")
			return nil
		case <-ticker.C:
			if err := poll(ctx, pool, repo, logger, batchSize); err != nil {
				logger.Error("poll error", "error", err)
			}
		}
	}
}

func consumeKafka(ctx context.Context, cfg *infra.Config, logger *slog.Logger) error {
	topic := os.Getenv("WORLDFEED_TOPIC")
	if topic == "" {
		topic = "worldfeed.calendar"
	}
	groupID := os.Getenv("WORLDFEED_GROUP_ID")
	if groupID == "" {
		groupID = "worldfeed-consumer"
	}

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, topic, groupID, true, logger)
	defer consumer.Close()
	logger.Info("worldfeed-consumer tailing kafka", "topic", topic, "group_id", groupID)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("worldfeed-consumer shutting down")
				return nil
			}
			logger.Error("kafka read error", "error", err)
			continue
		}
		logger.Info("world event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"payload", string(msg.Value),
		)
	}
}

func poll(ctx context.Context, pool *pgxpool.Pool, repo repository.OutboxRepository, logger *slog.Logger, limit int) error {
	rows, err := repo.FetchUnpublished(ctx, pool, limit)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		logger.Info("world event",
			"seq_id", row.SeqID,
			"event_id", row.EventID,
			"aggregate_type", row.AggregateType,
			"event_type", row.EventType,
			"aggregate_id", row.AggregateID,
		)
		ids = append(ids, row.SeqID)
	}

	if err := repo.MarkPublished(ctx, pool, ids); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	logger.Info("processed world feed batch", "count", len(ids))
	return nil
}
