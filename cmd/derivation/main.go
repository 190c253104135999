package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/previewflow/internal/derivation"
	"github.com/your-org/previewflow/internal/media"
	"github.com/your-org/previewflow/pkg/config"
	"github.com/your-org/previewflow/pkg/kafka"
	"github.com/your-org/previewflow/pkg/logger"
	"github.com/your-org/previewflow/pkg/storage/objectstore"
	"github.com/your-org/previewflow/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, "derivation")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	keys, err := derivation.NewKeyStrategy(
		cfg.Pipeline.KeyStrategy,
		cfg.Pipeline.VideosNamespace,
		cfg.Pipeline.ThumbnailsNamespace,
	)
	if err != nil {
		logr.Fatal("init key strategy", zap.Error(err))
	}

	pipeline := derivation.NewPipeline(derivation.Params{
		Store:  store,
		Prober: media.NewProber(cfg.Pipeline.FFprobePath, cfg.Pipeline.ExecTimeout),
		Transcoder: media.NewTranscoder(media.TranscoderConfig{
			FFmpegPath: cfg.Pipeline.FFmpegPath,
			TempDir:    cfg.Pipeline.TempDir,
			Timeout:    cfg.Pipeline.ExecTimeout,
		}),
		Previews: media.NewGenerator(media.GeneratorConfig{
			FFmpegPath:         cfg.Pipeline.FFmpegPath,
			TempDir:            cfg.Pipeline.TempDir,
			Height:             cfg.Pipeline.PreviewHeight,
			FPS:                cfg.Pipeline.AnimatedFPS,
			Duration:           cfg.Pipeline.AnimatedDuration,
			SpeedMultiplier:    cfg.Pipeline.AnimatedSpeed,
			CleanupPalette:     cfg.Pipeline.CleanupPalette,
			StillOffsetPercent: cfg.Pipeline.StillOffsetPercent,
			Timeout:            cfg.Pipeline.ExecTimeout,
		}),
		Keys:               keys,
		Validator:          derivation.NewValidator(cfg.Pipeline.RequiredPrefix),
		Guard:              derivation.NewGuard(),
		Logger:             logr,
		MinCompressionDiff: cfg.Pipeline.MinCompressionDiff,
		SignedURLTTL:       cfg.Pipeline.SignedURLTTL,
	})

	var listener *derivation.Listener
	if cfg.Kafka.ListenerEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.ResultsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.EventsTopic,
			GroupID:  cfg.Kafka.GroupID,
			MinBytes: cfg.Kafka.MinBytes,
			MaxBytes: cfg.Kafka.MaxBytes,
		})

		listener = derivation.NewListener(derivation.ListenerParams{
			Consumer: consumer,
			Producer: producer,
			Pipeline: pipeline,
			Logger:   logr,
		})

		go func() {
			if err := listener.Run(ctx); err != nil {
				logr.Error("kafka listener stopped", zap.Error(err))
				stop()
			}
		}()
	}

	handler := derivation.NewHTTPHandler(pipeline, logr)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if listener != nil {
			if err := listener.Close(); err != nil {
				logr.Error("listener shutdown failed", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			logr.Error("object store shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("derivation service starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
