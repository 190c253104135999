package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for a previewflow service.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Kafka    KafkaConfig
	Storage  StorageConfig
	Tracing  TracingConfig
	Pipeline PipelineConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"previewflow-derivation"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"previewflow.storage-events"`
	ResultsTopic     string        `env:"KAFKA_RESULTS_TOPIC" envDefault:"previewflow.derivation-results"`
	GroupID          string        `env:"KAFKA_GROUP_ID" envDefault:"previewflow-derivation"`
	ListenerEnabled  bool          `env:"KAFKA_LISTENER_ENABLED" envDefault:"true"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	MinBytes         int           `env:"KAFKA_MIN_BYTES" envDefault:"1"`
	MaxBytes         int           `env:"KAFKA_MAX_BYTES" envDefault:"10485760"`
}

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"minio"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"STORAGE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"STORAGE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=previewflow"`
}

// PipelineConfig holds the derivation policy knobs: which keys are accepted,
// where derived assets land, preview geometry, and the compression threshold.
type PipelineConfig struct {
	TempDir             string        `env:"PIPELINE_TEMP_DIR" envDefault:"/tmp"`
	RequiredPrefix      string        `env:"PIPELINE_REQUIRED_PREFIX" envDefault:"VID"`
	VideosNamespace     string        `env:"PIPELINE_VIDEOS_NAMESPACE" envDefault:"videos"`
	ThumbnailsNamespace string        `env:"PIPELINE_THUMBNAILS_NAMESPACE" envDefault:"thumbnails"`
	KeyStrategy         string        `env:"PIPELINE_KEY_STRATEGY" envDefault:"sibling-folder"`
	PreviewHeight       int           `env:"PIPELINE_PREVIEW_HEIGHT" envDefault:"480"`
	AnimatedFPS         int           `env:"PIPELINE_ANIMATED_FPS" envDefault:"5"`
	AnimatedDuration    time.Duration `env:"PIPELINE_ANIMATED_DURATION" envDefault:"4s"`
	AnimatedSpeed       float64       `env:"PIPELINE_ANIMATED_SPEED" envDefault:"1.0"`
	CleanupPalette      bool          `env:"PIPELINE_CLEANUP_PALETTE" envDefault:"true"`
	StillOffsetPercent  int           `env:"PIPELINE_STILL_OFFSET_PERCENT" envDefault:"15"`
	MinCompressionDiff  int64         `env:"PIPELINE_MIN_COMPRESSION_DIFF" envDefault:"512000"`
	SignedURLTTL        time.Duration `env:"PIPELINE_SIGNED_URL_TTL" envDefault:"1000s"`
	ExecTimeout         time.Duration `env:"PIPELINE_EXEC_TIMEOUT" envDefault:"5m"`
	FFmpegPath          string        `env:"PIPELINE_FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath         string        `env:"PIPELINE_FFPROBE_PATH" envDefault:"ffprobe"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
