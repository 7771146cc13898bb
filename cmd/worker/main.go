// Worker consumes activity events from Kafka and pushes them to Loki in batches.
// Offsets are committed only after Loki accepted the batch.
// Requires KAFKA_BROKERS and LOKI_URL; ACTIVITY_KAFKA_TOPIC and KAFKA_GROUP_ID have defaults.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"onego-security/backend/internal/config"
	"onego-security/backend/internal/logger"
	"onego-security/backend/internal/telemetry/loki"
)

const (
	maxBatch     = 100
	flushEvery   = 2 * time.Second
	pushTimeout  = 10 * time.Second
	maxRetryWait = 30 * time.Second
)

// messageSource is the part of *kafka.Reader the worker uses.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type pusher interface {
	Push(ctx context.Context, entries []loki.Entry) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.WithComponent(logger.New(cfg.LogLevel, cfg.Env), "worker")
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		log.Fatal("LOKI_URL is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.ActivityKafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("consuming activity events",
		zap.String("topic", cfg.ActivityKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.String("loki", cfg.LokiURL))
	run(ctx, reader, loki.NewClient(cfg.LokiURL), log)
	log.Info("stopped")
}

// run forwards batches until ctx is done.
func run(ctx context.Context, src messageSource, dst pusher, log *zap.Logger) {
	for ctx.Err() == nil {
		batch, err := fetchBatch(ctx, src)
		if len(batch) > 0 && forward(ctx, src, dst, batch, log) != nil {
			return
		}
		if err != nil && ctx.Err() == nil {
			log.Warn("kafka fetch failed", zap.Error(err))
			sleep(ctx, time.Second)
		}
	}
}

// fetchBatch collects up to maxBatch messages, returning early once flushEvery has passed.
func fetchBatch(ctx context.Context, src messageSource) ([]kafka.Message, error) {
	fctx, cancel := context.WithTimeout(ctx, flushEvery)
	defer cancel()
	var batch []kafka.Message
	for len(batch) < maxBatch {
		msg, err := src.FetchMessage(fctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// forward pushes batch to Loki, retrying with backoff until it succeeds or ctx is done, then
// commits the offsets. It returns ctx.Err() when interrupted.
func forward(ctx context.Context, src messageSource, dst pusher, batch []kafka.Message, log *zap.Logger) error {
	now := time.Now().UTC()
	entries := make([]loki.Entry, len(batch))
	for i, m := range batch {
		entries[i] = loki.EntryFromEvent(m.Value, now)
	}
	wait := time.Second
	for {
		pctx, cancel := context.WithTimeout(ctx, pushTimeout)
		err := dst.Push(pctx, entries)
		cancel()
		if err == nil {
			break
		}
		log.Warn("loki push failed; retrying",
			zap.Int("batch", len(batch)), zap.Int64("first_offset", batch[0].Offset), zap.Duration("wait", wait), zap.Error(err))
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		wait = min(wait*2, maxRetryWait)
	}
	if err := src.CommitMessages(ctx, batch...); err != nil {
		// Uncommitted messages are redelivered; Loki drops exact duplicates.
		log.Warn("kafka commit failed", zap.Error(err))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
